// Package types holds shared data structures used across packages.
package types

// Kind tags the content of an artifact passed between stages.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo:
		return true
	}
	return false
}

// Ext returns the file extension used for artifacts of this kind.
func (k Kind) Ext() string {
	switch k {
	case KindImage:
		return ".png"
	case KindVideo:
		return ".mp4"
	default:
		return ".txt"
	}
}

// Stage is a single unit of transformation in a pipeline.
type Stage struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Adapter     string            `yaml:"adapter"`
	Model       string            `yaml:"model,omitempty"`
	Input       Kind              `yaml:"input"`
	Output      Kind              `yaml:"output"`
	Retainable  bool              `yaml:"retainable,omitempty"`
	Timeout     string            `yaml:"timeout,omitempty"`
	Options     map[string]string `yaml:"options,omitempty"`
}

// Option returns the named option or def when it is unset.
func (s Stage) Option(name, def string) string {
	if v, ok := s.Options[name]; ok && v != "" {
		return v
	}
	return def
}
