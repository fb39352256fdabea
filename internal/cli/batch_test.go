package cli

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futureCreator/minilun/internal/pipeline"
	"github.com/futureCreator/minilun/internal/run"
	"github.com/futureCreator/minilun/internal/types"
)

func TestParsePrompts(t *testing.T) {
	in := strings.NewReader(`# storyboard
a cat on a skateboard

   a lighthouse at dusk   
#skip me
neon city in the rain
`)
	prompts, err := parsePrompts(in)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"a cat on a skateboard",
		"a lighthouse at dusk",
		"neon city in the rain",
	}, prompts)
}

func TestPlanBatch(t *testing.T) {
	jobs := planBatch([]string{"A Cat!", "a lighthouse at dusk"}, "out", types.KindVideo.Ext())
	require.Len(t, jobs, 2)
	assert.Equal(t, filepath.Join("out", "01-a-cat.mp4"), jobs[0].Output)
	assert.Equal(t, filepath.Join("out", "02-a-lighthouse-at-dusk.mp4"), jobs[1].Output)
	assert.Equal(t, 2, jobs[1].N)
}

func TestPlanBatch_UsesPipelineOutputKind(t *testing.T) {
	jobs := planBatch([]string{"a cat"}, "out", types.KindImage.Ext())
	assert.Equal(t, filepath.Join("out", "01-a-cat.png"), jobs[0].Output)
}

func TestPrintBatchSummary(t *testing.T) {
	plan := planBatch([]string{"one", "two", "three"}, "out", ".mp4")

	ok := run.New("default", "one")
	ok.Succeed("/abs/out/01-one.mp4")
	bad := run.New("default", "two")
	bad.Fail(errors.New(`stage "Image" failed: boom`))

	var buf bytes.Buffer
	failed := printBatchSummary(&buf, plan, []*run.Result{ok, bad, nil})

	assert.Equal(t, 2, failed)
	out := buf.String()
	assert.Contains(t, out, "/abs/out/01-one.mp4")
	assert.Contains(t, out, `stage "Image" failed: boom`)
	assert.Contains(t, out, "not run")
}

func TestBatchSink(t *testing.T) {
	var buf bytes.Buffer
	s := &batchSink{w: &buf}

	s.Emit(pipeline.Event{Type: pipeline.EventStageStarted, RunID: "r1", Stage: "Image"})
	s.Emit(pipeline.Event{Type: pipeline.EventStageProgress, RunID: "r1", Progress: 0.5})
	assert.Empty(t, buf.String())

	s.Emit(pipeline.Event{Type: pipeline.EventRunCompleted, RunID: "r1", Artifact: "out.mp4", Duration: 1500 * time.Millisecond})
	s.Emit(pipeline.Event{Type: pipeline.EventStageFailed, RunID: "r2", Stage: "Video", Err: errors.New("boom")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "r1 → out.mp4 (1.5s)")
	assert.Contains(t, lines[1], "r2 Video: boom")
}
