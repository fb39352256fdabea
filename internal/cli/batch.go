package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/futureCreator/minilun/internal/pipeline"
	"github.com/futureCreator/minilun/internal/run"
)

var (
	batchOutDir    string
	batchKeepImage bool
	batchPipeline  string
	batchJobs      int
)

var batchCmd = &cobra.Command{
	Use:   "batch <prompts-file>",
	Short: "Generate one video per prompt line, several at a time",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchOutDir, "out-dir", "out", "Directory for generated videos")
	batchCmd.Flags().BoolVar(&batchKeepImage, "keep-image", false, "Keep the intermediate generated images")
	batchCmd.Flags().StringVarP(&batchPipeline, "pipeline", "p", "", "Pipeline to use (default from config)")
	batchCmd.Flags().IntVarP(&batchJobs, "jobs", "j", 0, "Concurrent runs (default from config)")
}

// batchJob is one prompt of a batch file.
type batchJob struct {
	N      int
	Prompt string
	Output string
}

// parsePrompts reads one prompt per line. Blank lines and lines starting
// with # are skipped.
func parsePrompts(r io.Reader) ([]string, error) {
	var prompts []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return prompts, nil
}

// planBatch assigns each prompt its output path <dir>/<NN>-<slug><ext>.
func planBatch(prompts []string, dir, ext string) []batchJob {
	jobs := make([]batchJob, len(prompts))
	for i, p := range prompts {
		jobs[i] = batchJob{
			N:      i + 1,
			Prompt: p,
			Output: filepath.Join(dir, fmt.Sprintf("%02d-%s%s", i+1, run.Slug(p), ext)),
		}
	}
	return jobs
}

// batchSink prints one line per finished run; stage detail would interleave.
type batchSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (b *batchSink) Emit(ev pipeline.Event) {
	var line string
	switch ev.Type {
	case pipeline.EventStageFailed:
		line = fmt.Sprintf("   ❌ %s %s: %v", ev.RunID, ev.Stage, ev.Err)
	case pipeline.EventRunCompleted:
		line = fmt.Sprintf("   ✅ %s → %s (%.1fs)", ev.RunID, ev.Artifact, ev.Duration.Seconds())
	default:
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintln(b.w, line)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening prompts file: %w", err)
	}
	prompts, err := parsePrompts(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("reading prompts file: %w", err)
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts in %s", args[0])
	}

	s, err := openSession(ctx, batchPipeline, false, &batchSink{w: out})
	if err != nil {
		return err
	}
	defer s.close(ctx)

	jobs := batchJobs
	if jobs < 1 {
		jobs = s.cfg.Batch.Concurrency
	}

	plan := planBatch(prompts, batchOutDir, s.engine.Pipeline.Final().Ext())
	results := make([]*run.Result, len(plan))
	start := time.Now()
	fmt.Fprintf(out, "🎬 %d prompts, %d at a time\n", len(plan), jobs)

	// Runs are independent: one failure does not cancel the others.
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, job := range plan {
		g.Go(func() error {
			res, _ := s.execute(ctx, pipeline.Request{
				Prompt: job.Prompt,
				Output: job.Output,
				Retain: batchKeepImage,
			})
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	failed := printBatchSummary(out, plan, results)
	fmt.Fprintf(out, "\n%d/%d succeeded in %.1fs\n", len(plan)-failed, len(plan), time.Since(start).Seconds())
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(plan))
	}
	return nil
}

func printBatchSummary(w io.Writer, plan []batchJob, results []*run.Result) int {
	failed := 0
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w)
	fmt.Fprintln(tw, "#\tSTATUS\tTIME\tOUTPUT / ERROR")
	for i, job := range plan {
		res := results[i]
		if res == nil || res.Status != run.StatusSucceeded {
			failed++
			msg := "not run"
			if res != nil {
				msg = res.Error
			}
			fmt.Fprintf(tw, "%02d\t%s\t%s\t%s\n", job.N, run.StatusFailed, elapsed(res), msg)
			continue
		}
		fmt.Fprintf(tw, "%02d\t%s\t%s\t%s\n", job.N, res.Status, elapsed(res), res.Output)
	}
	tw.Flush()
	return failed
}

func elapsed(res *run.Result) string {
	if res == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fs", res.Elapsed.Seconds())
}
