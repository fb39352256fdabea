package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"

	"github.com/futureCreator/minilun/internal/adapter"
	"github.com/futureCreator/minilun/internal/config"
	"github.com/futureCreator/minilun/internal/run"
)

// Whatever stage fails and whether intermediates are kept, a run leaves at most
// the retained image behind and the output exists only on success.
func TestRun_ArtifactLifecycleProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		prompt := rapid.StringMatching(`[a-z][a-zA-Z0-9 ]{0,40}`).Draw(rt, "prompt")
		failAt := rapid.IntRange(-1, 2).Draw(rt, "failAt")
		retain := rapid.Bool().Draw(rt, "retain")

		root, err := os.MkdirTemp("", "minilun-prop-")
		if err != nil {
			rt.Fatalf("tempdir: %v", err)
		}
		defer os.RemoveAll(root)
		work := filepath.Join(root, "work")
		out := filepath.Join(root, "out", "final.mp4")

		boom := errors.New("stage broke")
		e := &Engine{
			Pipeline: testPipeline(),
			Adapters: map[string]adapter.Adapter{
				"echo": &echoAdapter{},
				"fail": failAdapter{err: boom},
			},
			Roles:   config.RolesConfig{Refiner: "r", Image: "i", Video: "v"},
			WorkDir: work,
		}
		if failAt >= 0 {
			e.Pipeline.Stages[failAt].Adapter = "fail"
		}

		res, err := e.Run(context.Background(), Request{Prompt: prompt, Output: out, Retain: retain})

		imageKept := retain && (failAt == -1 || failAt == 2)
		left, _ := os.ReadDir(work)
		if imageKept != (len(left) == 1) || len(left) > 1 {
			rt.Fatalf("work dir has %d entries, image kept = %v", len(left), imageKept)
		}
		if len(res.Retained) != len(left) {
			rt.Fatalf("reported %d retained, found %d", len(res.Retained), len(left))
		}

		if failAt == -1 {
			if err != nil {
				rt.Fatalf("unexpected error: %v", err)
			}
			data, rerr := os.ReadFile(out)
			if rerr != nil {
				rt.Fatalf("read output: %v", rerr)
			}
			if want := fmt.Sprintf("Video(Image(Refine(%s)))", prompt); string(data) != want {
				rt.Fatalf("output = %q, want %q", data, want)
			}
			return
		}

		var sf *StageFailure
		if !errors.As(err, &sf) || !errors.Is(err, boom) {
			rt.Fatalf("want stage failure wrapping %v, got %v", boom, err)
		}
		if want := e.Pipeline.Stages[failAt].Name; sf.Stage != want {
			rt.Fatalf("failed stage = %q, want %q", sf.Stage, want)
		}
		if res.Status != run.StatusFailed || len(res.Stages) != failAt+1 {
			rt.Fatalf("status %s with %d stage results", res.Status, len(res.Stages))
		}
		if _, serr := os.Stat(out); !os.IsNotExist(serr) {
			rt.Fatalf("output must not exist after failure")
		}
	})
}
