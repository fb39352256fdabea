package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/futureCreator/minilun/internal/pipeline"
)

var (
	genOutput    string
	genKeepImage bool
	genPipeline  string
	genVerbose   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <prompt...>",
	Short: "Generate a video from a prompt (text → image → video)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "Output path for the generated video (default from config)")
	generateCmd.Flags().BoolVar(&genKeepImage, "keep-image", false, "Keep the intermediate generated image")
	generateCmd.Flags().StringVarP(&genPipeline, "pipeline", "p", "", "Pipeline to use (default from config)")
	generateCmd.Flags().BoolVarP(&genVerbose, "verbose", "v", false, "Debug logging and plain stage lines")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	prompt := strings.Join(args, " ")

	disp := pipeline.NewDisplay(cmd.OutOrStdout(), "TRIPLE STAGE ARCHITECTURE ACTIVE", genVerbose)
	s, err := openSession(ctx, genPipeline, genVerbose, disp)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	output := genOutput
	if output == "" {
		output = s.cfg.Output
	}

	disp.Header()
	_, err = s.execute(ctx, pipeline.Request{
		Prompt: prompt,
		Output: output,
		Retain: genKeepImage,
	})
	return err
}
