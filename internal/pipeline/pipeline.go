package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/futureCreator/minilun/internal/config"
	"github.com/futureCreator/minilun/internal/types"
)

// ErrInvalidPipeline is wrapped by every pipeline validation failure.
var ErrInvalidPipeline = errors.New("invalid pipeline")

// Pipeline represents a named sequence of stages.
type Pipeline struct {
	Name   string        `yaml:"name"`
	Stages []types.Stage `yaml:"stages"`
}

// Parse decodes and validates a pipeline from YAML bytes.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseFile reads and parses a pipeline YAML file.
func ParseFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks that stages form a chain the engine can run: the first
// stage consumes the prompt, each later stage consumes its predecessor's
// output, and no stage turns a media kind into the same kind (which would
// hold two live artifacts of that kind at once).
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return invalidf("pipeline must have a name")
	}
	if len(p.Stages) == 0 {
		return invalidf("pipeline %q has no stages", p.Name)
	}
	seen := map[string]bool{}
	for i, st := range p.Stages {
		switch {
		case st.Name == "":
			return invalidf("stage %d has no name", i+1)
		case seen[st.Name]:
			return invalidf("duplicate stage name %q", st.Name)
		case st.Adapter == "":
			return invalidf("stage %q has no adapter", st.Name)
		case !st.Input.Valid():
			return invalidf("stage %q: unknown input kind %q", st.Name, st.Input)
		case !st.Output.Valid():
			return invalidf("stage %q: unknown output kind %q", st.Name, st.Output)
		case st.Input == st.Output && st.Output != types.KindText:
			return invalidf("stage %q maps %s to %s", st.Name, st.Input, st.Output)
		}
		seen[st.Name] = true

		want := types.KindText
		if i > 0 {
			want = p.Stages[i-1].Output
		}
		if st.Input != want {
			return invalidf("stage %q expects %s input but receives %s", st.Name, st.Input, want)
		}
		if st.Timeout != "" {
			if _, err := time.ParseDuration(st.Timeout); err != nil {
				return invalidf("stage %q: invalid timeout %q", st.Name, st.Timeout)
			}
		}
	}
	return nil
}

// Final returns the kind of artifact the pipeline delivers.
func (p *Pipeline) Final() types.Kind {
	return p.Stages[len(p.Stages)-1].Output
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPipeline, fmt.Sprintf(format, args...))
}

// LoadPipeline resolves a pipeline by name from project or user overrides.
// Embedded defaults are handled by the caller.
func LoadPipeline(name string) (*Pipeline, error) {
	// 1. project-level override
	projectPath := filepath.Join(config.Dir, "pipelines", name+".yaml")
	if _, err := os.Stat(projectPath); err == nil {
		return ParseFile(projectPath)
	}

	// 2. user-level override
	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, config.Dir, "pipelines", name+".yaml")
		if _, err := os.Stat(userPath); err == nil {
			return ParseFile(userPath)
		}
	}

	return nil, fmt.Errorf("pipeline %q not found: %w", name, os.ErrNotExist)
}
