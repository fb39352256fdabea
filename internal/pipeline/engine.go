package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/futureCreator/minilun/internal/adapter"
	"github.com/futureCreator/minilun/internal/artifact"
	"github.com/futureCreator/minilun/internal/config"
	vlog "github.com/futureCreator/minilun/internal/log"
	"github.com/futureCreator/minilun/internal/run"
	"github.com/futureCreator/minilun/internal/types"
)

const tracerName = "github.com/futureCreator/minilun/internal/pipeline"

// Request is the input of one run. The engine only reads it.
type Request struct {
	Prompt string
	Output string
	Retain bool // keep intermediates of retainable stages
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is empty", ErrInvalidRequest)
	}
	if r.Output == "" {
		return fmt.Errorf("%w: output path is empty", ErrInvalidRequest)
	}
	return nil
}

// Engine orchestrates pipeline stage execution. It keeps no per-run state,
// so one Engine may serve concurrent runs.
type Engine struct {
	Pipeline     *Pipeline
	Adapters     map[string]adapter.Adapter
	Roles        config.RolesConfig
	WorkDir      string
	StageTimeout time.Duration // used when a stage sets no timeout
	Sink         Sink
	Tracer       trace.Tracer
}

// Run executes every stage in order and promotes the last artifact to
// req.Output. The result is returned on failure too, with status failed.
func (e *Engine) Run(ctx context.Context, req Request) (*run.Result, error) {
	res := run.New(e.Pipeline.Name, req.Prompt)
	if err := req.validate(); err != nil {
		res.Fail(err)
		return res, err
	}
	dest, err := filepath.Abs(req.Output)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		res.Fail(err)
		return res, err
	}

	ctx, span := e.tracer().Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("minilun.run_id", res.ID),
		attribute.String("minilun.pipeline", e.Pipeline.Name),
	))
	defer span.End()

	store := artifact.NewStore(e.WorkDir, res.ID)
	total := len(e.Pipeline.Stages)
	retain := func(a *artifact.Artifact) bool {
		return req.Retain && e.retainable(a.Stage)
	}
	fail := func(err error) (*run.Result, error) {
		return e.fail(span, res, store, retain, err)
	}

	e.emit(Event{Type: EventRunStarted, RunID: res.ID, Pipeline: e.Pipeline.Name, Total: total})

	var (
		prev *artifact.Artifact
		text = req.Prompt
	)
	for i, st := range e.Pipeline.Stages {
		if err := res.Begin(i); err != nil {
			return fail(err)
		}
		st.Model = e.resolveModel(st.Model)

		out, dur, err := e.runStage(ctx, store, res.ID, i, total, st, text, req.Prompt, prev)
		sr := run.StageResult{Name: st.Name, Ordinal: i + 1, Kind: st.Output, Duration: dur}
		if err != nil {
			sr.Status = run.StatusFailed
			sr.Error = err.Error()
			res.AddStage(sr)
			e.emit(Event{Type: EventStageFailed, RunID: res.ID, Stage: st.Name, Model: e.stepDisplayModel(st),
				Index: i, Total: total, Duration: dur, Err: err})
			return fail(err)
		}

		if prev != nil {
			keep := retain(prev)
			if err := store.Release(prev, keep); err != nil {
				return fail(err)
			}
			if keep {
				res.Retained = append(res.Retained, prev.Path)
			}
			prev = nil
		}

		ev := Event{Type: EventStageCompleted, RunID: res.ID, Stage: st.Name, Model: e.stepDisplayModel(st),
			Index: i, Total: total, Duration: dur, Artifact: out.Path}
		if out.Kind == types.KindText && i < total-1 {
			// Text travels in memory; its file is not kept live.
			data, err := store.ReadAll(out)
			if err != nil {
				return fail(err)
			}
			text = string(data)
			if err := store.Release(out, false); err != nil {
				return fail(err)
			}
			ev.Artifact = ""
			ev.Preview = text
		} else {
			prev = out
		}

		sr.Status = run.StatusSucceeded
		res.AddStage(sr)
		e.emit(ev)
	}

	if err := store.Promote(prev, dest); err != nil {
		return fail(err)
	}
	res.Succeed(dest)
	span.SetStatus(codes.Ok, "")
	e.emit(Event{Type: EventRunCompleted, RunID: res.ID, Pipeline: e.Pipeline.Name, Total: total,
		Artifact: dest, Retained: res.Retained, Duration: res.Elapsed})
	return res, nil
}

func (e *Engine) runStage(ctx context.Context, store *artifact.Store, runID string, i, total int,
	st types.Stage, text, original string, input *artifact.Artifact) (*artifact.Artifact, time.Duration, error) {

	e.emit(Event{Type: EventStageStarted, RunID: runID, Stage: st.Name, Description: st.Description,
		Model: e.stepDisplayModel(st), Index: i, Total: total})

	ctx, span := e.tracer().Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("minilun.stage", st.Name),
		attribute.String("minilun.adapter", st.Adapter),
		attribute.Int("minilun.stage_index", i),
	))
	defer span.End()

	start := time.Now()
	out, err := e.invoke(ctx, store, runID, i, total, st, text, original, input)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, dur, err
	}
	return out, dur, nil
}

func (e *Engine) invoke(ctx context.Context, store *artifact.Store, runID string, i, total int,
	st types.Stage, text, original string, input *artifact.Artifact) (*artifact.Artifact, error) {

	ad, ok := e.Adapters[st.Adapter]
	if !ok {
		return nil, &StageFailure{Stage: st.Name, Index: i, Cause: fmt.Errorf("unknown adapter %q", st.Adapter)}
	}

	stageCtx, cancel := e.stageContext(ctx, st)
	defer cancel()

	req := &adapter.Request{
		RunID:    runID,
		Stage:    st,
		Prompt:   text,
		Original: original,
		Input:    input,
		Progress: func(f float64) {
			e.emit(Event{Type: EventStageProgress, RunID: runID, Stage: st.Name, Index: i, Total: total, Progress: f})
		},
	}

	var adapterErr error
	out, err := store.Create(stageCtx, st.Output, st.Name, func(w io.Writer) error {
		adapterErr = ad.Invoke(stageCtx, req, w)
		return adapterErr
	})
	if err != nil {
		var aerr *artifact.Error
		if adapterErr == nil && errors.As(err, &aerr) {
			return nil, err
		}
		return nil, &StageFailure{Stage: st.Name, Index: i, Cause: err}
	}

	// An adapter that ignored its deadline still missed it.
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		if rerr := store.Release(out, false); rerr != nil {
			vlog.Warn("failed to remove late artifact", "path", out.Path, "err", rerr)
		}
		return nil, &StageFailure{Stage: st.Name, Index: i, Cause: context.DeadlineExceeded}
	}
	return out, nil
}

func (e *Engine) fail(span trace.Span, res *run.Result, store *artifact.Store,
	retain func(*artifact.Artifact) bool, err error) (*run.Result, error) {

	for _, a := range store.Live() {
		if retain(a) {
			res.Retained = append(res.Retained, a.Path)
		}
	}
	sort.Strings(res.Retained)
	if cerr := store.ReleaseAll(retain); cerr != nil {
		vlog.Warn("cleanup after failed run", "run", res.ID, "err", cerr)
	}

	res.Fail(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.emit(Event{Type: EventRunFailed, RunID: res.ID, Pipeline: e.Pipeline.Name, Total: len(e.Pipeline.Stages),
		Retained: res.Retained, Duration: res.Elapsed, Err: err})
	return res, err
}

func (e *Engine) stageContext(ctx context.Context, st types.Stage) (context.Context, context.CancelFunc) {
	d := e.StageTimeout
	if st.Timeout != "" {
		if parsed, err := time.ParseDuration(st.Timeout); err == nil {
			d = parsed
		}
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (e *Engine) retainable(stage string) bool {
	for _, st := range e.Pipeline.Stages {
		if st.Name == stage {
			return st.Retainable
		}
	}
	return false
}

func (e *Engine) emit(ev Event) {
	if e.Sink == nil {
		return
	}
	ev.Time = time.Now()
	e.Sink.Emit(ev)
}

func (e *Engine) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return otel.Tracer(tracerName)
}

// stepDisplayModel returns a human-readable label for the stage's model,
// suitable for the terminal output model column.
func (e *Engine) stepDisplayModel(st types.Stage) string {
	switch {
	case st.Model != "":
		return e.resolveModel(st.Model)
	case st.Adapter != "":
		return st.Adapter
	default:
		return "—"
	}
}

// resolveModel replaces role placeholders ($refiner, $image, $video)
// with the corresponding model ID from config. If the model string is not a
// placeholder, it is returned unchanged.
func (e *Engine) resolveModel(model string) string {
	switch strings.ToLower(model) {
	case "$refiner":
		return e.Roles.Refiner
	case "$image":
		return e.Roles.Image
	case "$video":
		return e.Roles.Video
	}
	return model
}
