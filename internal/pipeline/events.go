package pipeline

import (
	"time"

	vlog "github.com/futureCreator/minilun/internal/log"
)

// EventType identifies what happened during a run.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventStageStarted   EventType = "stage_started"
	EventStageProgress  EventType = "stage_progress"
	EventStageCompleted EventType = "stage_completed"
	EventStageFailed    EventType = "stage_failed"
	EventRunCompleted   EventType = "run_completed"
	EventRunFailed      EventType = "run_failed"
)

// Event is one entry of the stream a run emits. Stage fields are zero for
// run-level events.
type Event struct {
	Type        EventType
	RunID       string
	Pipeline    string
	Stage       string
	Description string
	Model       string
	Index       int // zero-based stage position
	Total       int
	Progress    float64
	Artifact    string
	Preview     string // text output of the stage, when it produced text
	Retained    []string
	Duration    time.Duration
	Err         error
	Time        time.Time
}

// Sink consumes pipeline events. Emit may be called from adapter goroutines
// for progress events, so implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Sinks fans every event out to each non-nil sink in order.
type Sinks []Sink

func (s Sinks) Emit(ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ev)
		}
	}
}

// LogSink writes lifecycle events to the debug log. Progress ticks are
// dropped; the terminal already shows failures.
var LogSink = SinkFunc(func(ev Event) {
	switch ev.Type {
	case EventStageProgress:
		return
	case EventStageFailed, EventRunFailed:
		vlog.Debug(string(ev.Type), "run", ev.RunID, "stage", ev.Stage, "err", ev.Err)
	default:
		vlog.Debug(string(ev.Type), "run", ev.RunID, "stage", ev.Stage,
			"artifact", ev.Artifact, "duration", ev.Duration)
	}
})
