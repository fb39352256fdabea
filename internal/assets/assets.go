// Package assets provides embedded default pipelines and file templates.
package assets

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/futureCreator/minilun/internal/config"
)

//go:embed pipelines/*.yaml
var pipelinesFS embed.FS

//go:embed templates/*
var templatesFS embed.FS

// LoadPipeline returns the embedded pipeline YAML by name. Project and user
// overrides are resolved by pipeline.LoadPipeline before falling back here.
func LoadPipeline(name string) ([]byte, error) {
	data, err := pipelinesFS.ReadFile(path.Join("pipelines", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("pipeline %q not found", name)
	}
	return data, nil
}

// PipelineNames lists the embedded pipelines.
func PipelineNames() []string {
	entries, err := fs.ReadDir(pipelinesFS, "pipelines")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// LoadTemplate returns a file template by name.
// Override lookup order: project .minilun/templates/ > user ~/.minilun/templates/ > embedded.
func LoadTemplate(name string) (string, error) {
	return loadWithOverride("templates", name, templatesFS)
}

// RenderTemplate loads a template and executes it with data.
func RenderTemplate(name string, data any) (string, error) {
	content, err := LoadTemplate(name)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Funcs(template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}).Parse(content)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.String(), nil
}

func loadWithOverride(dir, filename string, embedded embed.FS) (string, error) {
	// 1. project-level override
	projectPath := filepath.Join(config.Dir, dir, filename)
	if data, err := os.ReadFile(projectPath); err == nil {
		return string(data), nil
	}

	// 2. user-level override
	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, config.Dir, dir, filename)
		if data, err := os.ReadFile(userPath); err == nil {
			return string(data), nil
		}
	}

	// 3. embedded default
	data, err := embedded.ReadFile(path.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("%s %q not found", dir, filename)
	}
	return string(data), nil
}
