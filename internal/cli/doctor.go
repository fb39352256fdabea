package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/futureCreator/minilun/internal/config"
	"github.com/futureCreator/minilun/internal/models"
	"github.com/futureCreator/minilun/internal/pipeline"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check minilun prerequisites and configuration",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	allOK := true

	check := func(label string, ok bool, hint string) {
		if ok {
			fmt.Fprintf(out, "✅ %s\n", label)
		} else {
			fmt.Fprintf(out, "❌ %s — %s\n", label, hint)
			allOK = false
		}
	}

	// 1. config
	cfg, cfgErr := config.Load(configPath)
	check("config loadable", cfgErr == nil, fmt.Sprintf("fix config: %v", cfgErr))
	if cfgErr != nil {
		return doctorResult(out, false)
	}
	validateErr := cfg.Validate()
	check("config valid", validateErr == nil, fmt.Sprintf("%v", validateErr))

	// 2. work dir
	workDir := cfg.ResolveWorkDir()
	check(fmt.Sprintf("work dir writable (%s)", workDir), writable(workDir), "set work_dir to a writable directory")

	// 3. pipeline
	ppl, pplErr := loadPipeline(cfg.DefaultPipeline)
	check(fmt.Sprintf("pipeline %q valid", cfg.DefaultPipeline), pplErr == nil, fmt.Sprintf("%v", pplErr))

	// 4. models
	for _, st := range models.Check(cfg.Models.Dir, cfg.Models.Files) {
		label := fmt.Sprintf("model %s (%s)", st.Name, st.Path)
		switch {
		case st.Present:
			check(label, true, "")
		case st.Optional:
			fmt.Fprintf(out, "⚠️  %s — optional, not found\n", label)
		default:
			check(label, false, "run `minilun models script` and execute the helper")
		}
	}

	// 5. service key, only needed when a stage talks to the service
	if ppl != nil && usesAdapter(ppl, "http") {
		check(fmt.Sprintf("%s set", cfg.Service.APIKeyEnv), cfg.APIKey() != "",
			fmt.Sprintf("set environment variable %s", cfg.Service.APIKeyEnv))
	}

	return doctorResult(out, allOK)
}

func doctorResult(out io.Writer, ok bool) error {
	fmt.Fprintln(out)
	if ok {
		fmt.Fprintln(out, "All checks passed. minilun is ready.")
		return nil
	}
	fmt.Fprintln(out, "Some checks failed. Fix the issues above before running minilun.")
	return fmt.Errorf("doctor found problems")
}

func usesAdapter(p *pipeline.Pipeline, name string) bool {
	for _, st := range p.Stages {
		if st.Adapter == name {
			return true
		}
	}
	return false
}

func writable(dir string) bool {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".minilun-doctor-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	return os.Remove(name) == nil
}
