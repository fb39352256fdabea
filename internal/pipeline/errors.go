package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned before any stage runs when a request is unusable.
var ErrInvalidRequest = errors.New("invalid request")

// StageFailure reports that a stage's adapter failed, timed out or could not
// be resolved. Cause is the adapter's error, unchanged.
type StageFailure struct {
	Stage string
	Index int
	Cause error
}

func (e *StageFailure) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Cause)
}

func (e *StageFailure) Unwrap() error { return e.Cause }
