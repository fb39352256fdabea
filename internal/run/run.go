package run

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/futureCreator/minilun/internal/types"
)

// Status is the state of a run or stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Result is the outcome of one end-to-end pipeline execution.
type Result struct {
	ID        string        `json:"id"`
	Pipeline  string        `json:"pipeline"`
	Prompt    string        `json:"prompt"`
	Output    string        `json:"output,omitempty"`
	Retained  []string      `json:"retained,omitempty"`
	Stages    []StageResult `json:"stages"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Status    Status        `json:"status"`
	Current   int           `json:"current"` // index of the running stage, -1 when not running
	Error     string        `json:"error,omitempty"`
}

// StageResult records the outcome of a single stage.
type StageResult struct {
	Name     string        `json:"name"`
	Ordinal  int           `json:"ordinal"`
	Status   Status        `json:"status"`
	Kind     types.Kind    `json:"kind"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// New starts a pending result for the given pipeline and prompt.
func New(pipeline, prompt string) *Result {
	now := time.Now()
	return &Result{
		ID:        NewID(now),
		Pipeline:  pipeline,
		Prompt:    prompt,
		StartedAt: now,
		Status:    StatusPending,
		Current:   -1,
	}
}

// NewID returns a sortable identifier that is unique across concurrent runs.
func NewID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.Format("20060102-150405"), uuid.NewString()[:8])
}

// Begin moves the run into the running state at stage i.
func (r *Result) Begin(i int) error {
	if r.Status.Terminal() {
		return fmt.Errorf("run %s already %s", r.ID, r.Status)
	}
	r.Status = StatusRunning
	r.Current = i
	return nil
}

// AddStage appends a stage outcome.
func (r *Result) AddStage(sr StageResult) {
	r.Stages = append(r.Stages, sr)
}

// Succeed marks the run as succeeded.
func (r *Result) Succeed(output string) {
	r.Status = StatusSucceeded
	r.Output = output
	r.Current = -1
	r.Elapsed = time.Since(r.StartedAt)
}

// Fail marks the run as failed with an error message.
func (r *Result) Fail(err error) {
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.Current = -1
	r.Elapsed = time.Since(r.StartedAt)
}

var nonAlphanumRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug converts a prompt into a short filesystem-friendly name.
func Slug(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = s[:40]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		s = "run"
	}
	return s
}
