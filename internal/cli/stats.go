package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/futureCreator/minilun/internal/config"
	"github.com/futureCreator/minilun/internal/history"
)

var statsLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run history statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 10, "Number of recent runs to list")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.History.Path == "" {
		fmt.Fprintln(out, "Run history is disabled (history.path is empty).")
		return nil
	}
	if _, err := os.Stat(cfg.History.Path); os.IsNotExist(err) {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	sum, err := store.Summary(ctx)
	if err != nil {
		return err
	}
	if sum.Total == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	fmt.Fprintf(out, "Runs: %d total, %d succeeded, %d failed\n", sum.Total, sum.Succeeded, sum.Failed)
	if sum.Succeeded > 0 {
		fmt.Fprintf(out, "Average successful run: %s\n", msDuration(sum.AvgMS))
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Stage\tRuns\tFailed\tAvg")
	for _, st := range sum.Stages {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", st.Name, st.Count, st.Failures, msDuration(st.AvgMS))
	}
	tw.Flush()

	recent, err := store.Recent(ctx, statsLimit)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Run ID\tStatus\tTime\tPrompt")
	for _, r := range recent {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Status, msDuration(float64(r.ElapsedMS)), clip(r.Prompt, 50))
	}
	tw.Flush()
	return nil
}

func msDuration(ms float64) string {
	return (time.Duration(ms) * time.Millisecond).Round(100 * time.Millisecond).String()
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
