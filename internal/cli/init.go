package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/futureCreator/minilun/internal/assets"
	"github.com/futureCreator/minilun/internal/config"
)

var initMinimal bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize minilun configuration",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "Write the config without explanatory comments")
}

func runInit(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("getting home dir: %w", err)
	}

	configDir := filepath.Join(home, config.Dir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Config already exists: %s\n", configPath)
		return nil
	}

	name := "config.yaml"
	if initMinimal {
		name = "config.minimal.yaml"
	}
	content, err := assets.LoadTemplate(name)
	if err != nil {
		return fmt.Errorf("loading config template: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", configPath)
	fmt.Fprintln(cmd.OutOrStdout(), "Run `minilun models check` to see which model weights are still missing.")
	return nil
}
