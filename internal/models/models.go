// Package models checks the local model manifest and renders the download
// helper for it. Nothing here fetches weights.
package models

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/futureCreator/minilun/internal/assets"
	"github.com/futureCreator/minilun/internal/config"
	"github.com/futureCreator/minilun/pkg/version"
)

// ScriptName is the default file name of the rendered download helper.
const ScriptName = "download_helper.py"

// Status is the presence of one manifest entry on disk.
type Status struct {
	config.ModelFile
	Path    string
	Present bool
}

// Check reports which manifest entries exist under dir.
func Check(dir string, files []config.ModelFile) []Status {
	out := make([]Status, 0, len(files))
	for _, f := range files {
		p := Path(dir, f)
		st := Status{ModelFile: f, Path: p}
		if info, err := os.Stat(p); err == nil {
			// A folder entry must be a directory; a file entry must not be.
			st.Present = info.IsDir() == (f.File == "")
		}
		out = append(out, st)
	}
	return out
}

// Path returns where a manifest entry is expected to live.
func Path(dir string, f config.ModelFile) string {
	return filepath.Join(dir, f.Folder, f.File)
}

// MissingRequired returns the non-optional entries that are absent.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Present && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}

// Script renders the Python download helper for the manifest.
func Script(dir string, files []config.ModelFile) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving models dir: %w", err)
	}
	data := struct {
		Version    string
		ScriptName string
		ModelsDir  string
		Files      []config.ModelFile
	}{
		Version:    version.Version,
		ScriptName: ScriptName,
		ModelsDir:  abs,
		Files:      files,
	}
	return assets.RenderTemplate(ScriptName+".tmpl", data)
}
