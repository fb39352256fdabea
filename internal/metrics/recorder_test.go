package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/futureCreator/minilun/internal/pipeline"
)

func TestRecorder_SuccessfulRun(t *testing.T) {
	r := NewRecorder(zap.NewNop())

	r.Emit(pipeline.Event{Type: pipeline.EventRunStarted, Pipeline: "default"})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsActive))

	for _, stage := range []string{"Refine", "Image", "Video"} {
		r.Emit(pipeline.Event{Type: pipeline.EventStageStarted, Stage: stage})
		r.Emit(pipeline.Event{Type: pipeline.EventStageProgress, Stage: stage, Progress: 0.5})
		r.Emit(pipeline.Event{Type: pipeline.EventStageCompleted, Stage: stage, Duration: 2 * time.Second})
	}
	r.Emit(pipeline.Event{Type: pipeline.EventRunCompleted, Pipeline: "default", Duration: 6 * time.Second})

	assert.Equal(t, 0.0, testutil.ToFloat64(r.runsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("default", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stagesTotal.WithLabelValues("Image", "succeeded")))
	assert.Equal(t, 3, testutil.CollectAndCount(r.stagesTotal))
	assert.Equal(t, 3, testutil.CollectAndCount(r.stageDuration))
}

func TestRecorder_FailedRun(t *testing.T) {
	r := NewRecorder(nil)

	r.Emit(pipeline.Event{Type: pipeline.EventRunStarted, Pipeline: "default"})
	r.Emit(pipeline.Event{Type: pipeline.EventStageCompleted, Stage: "Refine"})
	r.Emit(pipeline.Event{Type: pipeline.EventStageFailed, Stage: "Image", Err: errors.New("boom")})
	r.Emit(pipeline.Event{Type: pipeline.EventRunFailed, Pipeline: "default", Err: errors.New("boom")})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("default", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stagesTotal.WithLabelValues("Image", "failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.runsActive))
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	a, b := NewRecorder(nil), NewRecorder(nil)
	a.Emit(pipeline.Event{Type: pipeline.EventRunCompleted, Pipeline: "p"})

	assert.Equal(t, 1.0, testutil.ToFloat64(a.runsTotal.WithLabelValues("p", "succeeded")))
	assert.Equal(t, 0, testutil.CollectAndCount(b.runsTotal))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder(nil)
	r.Emit(pipeline.Event{Type: pipeline.EventRunCompleted, Pipeline: "default", Duration: time.Second})

	path := filepath.Join(t.TempDir(), "nested", "minilun.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `minilun_runs_total{pipeline="default",status="succeeded"} 1`), text)
	assert.Contains(t, text, "# TYPE minilun_run_duration_seconds histogram")
}
