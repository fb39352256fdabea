package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/futureCreator/minilun/internal/config"
	"github.com/futureCreator/minilun/internal/models"
)

var scriptOutput string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and provision model weights",
}

var modelsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report which manifest entries exist under models.dir",
	RunE:  runModelsCheck,
}

var modelsScriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Write the Python download helper for the model manifest",
	Long:  "Renders a huggingface_hub download script. The script is written, never executed.",
	RunE:  runModelsScript,
}

func init() {
	modelsScriptCmd.Flags().StringVarP(&scriptOutput, "output", "o", models.ScriptName, "Script path, - for stdout")
	modelsCmd.AddCommand(modelsCheckCmd)
	modelsCmd.AddCommand(modelsScriptCmd)
}

func runModelsCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	out := cmd.OutOrStdout()
	statuses := models.Check(cfg.Models.Dir, cfg.Models.Files)
	for _, st := range statuses {
		mark := "✅"
		switch {
		case st.Present:
		case st.Optional:
			mark = "⚠️ "
		default:
			mark = "❌"
		}
		fmt.Fprintf(out, "%s %-8s %s\n", mark, st.Name, st.Path)
	}
	if missing := models.MissingRequired(statuses); len(missing) > 0 {
		return fmt.Errorf("%d required model(s) missing", len(missing))
	}
	return nil
}

func runModelsScript(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	script, err := models.Script(cfg.Models.Dir, cfg.Models.Files)
	if err != nil {
		return err
	}
	if scriptOutput == "-" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), script)
		return err
	}
	if err := os.WriteFile(scriptOutput, []byte(script), 0644); err != nil {
		return fmt.Errorf("writing script: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s. Review it, then run: python3 %s\n", scriptOutput, scriptOutput)
	return nil
}
