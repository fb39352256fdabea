// Package adapter implements the stage adapters the pipeline engine invokes:
// template rendering, a remote inference service and external commands.
package adapter

import (
	"context"
	"io"
	"os"

	"github.com/futureCreator/minilun/internal/artifact"
	"github.com/futureCreator/minilun/internal/types"
)

// Adapter performs one stage's transformation, writing its output artifact to w.
type Adapter interface {
	Invoke(ctx context.Context, req *Request, w io.Writer) error
}

// Request carries all inputs for a stage invocation.
type Request struct {
	RunID    string
	Stage    types.Stage // Model is already resolved
	Prompt   string      // latest text: the raw prompt or the refined one
	Original string      // prompt as given by the user
	Input    *artifact.Artifact
	Progress func(fraction float64)
}

// ReportProgress forwards a completion fraction in [0, 1] to the engine.
func (r *Request) ReportProgress(fraction float64) {
	if r.Progress == nil {
		return
	}
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	r.Progress(fraction)
}

// InputBytes returns the content of the input artifact, or the current text
// when the stage consumes text.
func (r *Request) InputBytes() ([]byte, error) {
	if r.Input == nil {
		return []byte(r.Prompt), nil
	}
	return os.ReadFile(r.Input.Path)
}

// InputKind returns the kind of data the stage receives.
func (r *Request) InputKind() types.Kind {
	if r.Input == nil {
		return types.KindText
	}
	return r.Input.Kind
}
