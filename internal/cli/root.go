package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/futureCreator/minilun/pkg/version"
)

// configPath is an extra config file merged on top of user and project config.
var configPath string

var rootCmd = &cobra.Command{
	Use:           "minilun",
	Short:         "Text-to-image-to-video pipeline CLI",
	Long:          `minilun refines a prompt, renders an image from it and animates the image into a video, one stage after another.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Errors are returned for the caller to print.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Extra config file merged last")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(modelsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "minilun %s\n", version.Version)
	},
}
