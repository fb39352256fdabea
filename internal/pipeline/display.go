package pipeline

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const logo = `
  __  __ _       _   _                    _   ___  __     ___     _
 |  \/  (_)_ __ (_) | |   _   _ _ __     / \ |_ _| \ \   / (_) __| | ___  ___
 | |\/| | | '_ \| | | |  | | | | '_ \   / _ \ | |   \ \ / /| |/ _` + "`" + ` |/ _ \/ _ \
 | |  | | | | | | | | |__| |_| | | | | / ___ \| |    \ V / | | (_| |  __/ (_) |
 |_|  |_|_|_| |_|_| |_____\__,_|_| |_|/_/   \_\___|    \_/  |_|\__,_|\___|\___/
`

// Display renders pipeline events on a terminal. It is the only component
// that writes progress to the screen.
type Display struct {
	w       io.Writer
	title   string
	verbose bool

	mu         sync.Mutex
	stop       chan struct{}
	done       chan struct{}
	inProgress bool
}

// NewDisplay creates a display that writes to w, or stdout when w is nil.
func NewDisplay(w io.Writer, title string, verbose bool) *Display {
	if w == nil {
		w = os.Stdout
	}
	return &Display{w: w, title: title, verbose: verbose}
}

// modelColumnWidth is the fixed display width reserved for the model column.
var modelColumnWidth = 30

// progressBarWidth is the number of cells in the progress bar.
const progressBarWidth = 10

// ansiEscapeRe matches ANSI terminal escape sequences and C0/DEL control characters.
var ansiEscapeRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|[\x00-\x1f\x7f]`)

// sanitizeModel strips ANSI escape sequences and control characters from a model name.
func sanitizeModel(name string) string {
	return ansiEscapeRe.ReplaceAllString(name, "")
}

// truncateModel sanitizes and truncates model to fit within modelColumnWidth runes,
// appending an ellipsis if truncation occurs.
func truncateModel(model string) string {
	model = sanitizeModel(model)
	if utf8.RuneCountInString(model) <= modelColumnWidth {
		return model
	}
	runes := []rune(model)
	return string(runes[:modelColumnWidth-1]) + "…"
}

// progressBar renders a fraction as a fixed-width bar of full and empty cells.
func progressBar(fraction float64) string {
	filled := int(fraction * progressBarWidth)
	if filled < 0 {
		filled = 0
	}
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
}

// Header prints the banner.
func (d *Display) Header() {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprint(d.w, logo)
	fmt.Fprintln(d.w, strings.Repeat("─", 76))
	fmt.Fprintf(d.w, "  Mini Lun AI Video — %s\n", d.title)
	fmt.Fprintln(d.w, strings.Repeat("─", 76))
}

// Emit implements Sink.
func (d *Display) Emit(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch ev.Type {
	case EventStageStarted:
		d.stageStart(ev)
	case EventStageProgress:
		d.stageProgress(ev)
	case EventStageCompleted:
		d.stageDone(ev)
	case EventStageFailed:
		d.stageFailed(ev)
	case EventRunCompleted:
		d.summary(ev)
	case EventRunFailed:
		d.failed(ev)
	}
}

// stageStart prints the stage header and a running line. In non-verbose mode
// the line is updated in place every second with elapsed time until the
// adapter reports progress.
func (d *Display) stageStart(ev Event) {
	fmt.Fprintf(d.w, "\n[STAGE %d/%d] %s", ev.Index+1, ev.Total, ev.Stage)
	if ev.Description != "" {
		fmt.Fprintf(d.w, ": %s...", ev.Description)
	}
	fmt.Fprintln(d.w)

	model := truncateModel(ev.Model)
	d.inProgress = false
	if d.verbose {
		fmt.Fprintf(d.w, "⏳ %-12s %-30s running...\n", ev.Stage, model)
		return
	}
	// No trailing newline so the ticker can overwrite in place.
	fmt.Fprintf(d.w, "⏳ %-12s %-30s running...", ev.Stage, model)

	stop := make(chan struct{})
	done := make(chan struct{})
	d.stop = stop
	d.done = done
	start := time.Now()
	name := ev.Stage

	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.mu.Lock()
				fmt.Fprintf(d.w, "\r⏳ %-12s %-30s running... %.0fs",
					name, model, time.Since(start).Seconds())
				d.mu.Unlock()
			}
		}
	}()
}

func (d *Display) stageProgress(ev Event) {
	if d.verbose {
		return
	}
	d.stopTicker()
	d.inProgress = true
	fmt.Fprintf(d.w, "\r   %-12s [%s] %3.0f%%", ev.Stage, progressBar(ev.Progress), ev.Progress*100)
}

// stopTicker stops the elapsed time goroutine and waits for it to finish.
// Callers hold d.mu; it is released while waiting so the ticker can exit.
func (d *Display) stopTicker() {
	if d.stop == nil {
		return
	}
	stop, done := d.stop, d.done
	d.stop = nil
	d.done = nil
	close(stop)
	d.mu.Unlock()
	<-done
	d.mu.Lock()
}

// maxPreviewLines is the default number of artifact lines shown after stage completion.
const maxPreviewLines = 10

func (d *Display) lineStart() string {
	if d.verbose {
		return ""
	}
	if d.inProgress {
		d.inProgress = false
		return "\n"
	}
	return "\r"
}

func (d *Display) stageDone(ev Event) {
	d.stopTicker()
	detail := ev.Artifact
	if detail == "" && ev.Preview != "" {
		detail = "text"
	}
	fmt.Fprintf(d.w, "%s✅ %-12s %-30s %-28s %.1fs\n",
		d.lineStart(), ev.Stage, truncateModel(ev.Model), detail, ev.Duration.Seconds())

	if ev.Preview == "" {
		return
	}
	lines := strings.Split(ev.Preview, "\n")
	// Drop the trailing empty element that Split adds for a newline-terminated string.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	previewLines := lines
	truncated := false
	if len(lines) > maxPreviewLines {
		previewLines = lines[:maxPreviewLines]
		truncated = true
	}
	for _, l := range previewLines {
		fmt.Fprintf(d.w, "  │ %s\n", l)
	}
	if truncated {
		fmt.Fprintf(d.w, "  │ ... (%d more lines)\n", len(lines)-maxPreviewLines)
	}
}

func (d *Display) stageFailed(ev Event) {
	d.stopTicker()
	fmt.Fprintf(d.w, "%s❌ %-12s %-30s %-28s %.1fs\n",
		d.lineStart(), ev.Stage, truncateModel(ev.Model), "failed", ev.Duration.Seconds())
}

func (d *Display) summary(ev Event) {
	fmt.Fprintln(d.w)
	fmt.Fprintln(d.w, strings.Repeat("─", 76))
	fmt.Fprintf(d.w, "✨ SUCCESS! Pipeline Complete in %.1fs\n", ev.Duration.Seconds())
	fmt.Fprintf(d.w, "📹 Final output: %s\n", ev.Artifact)
	for _, p := range ev.Retained {
		fmt.Fprintf(d.w, "🖼️  Kept: %s\n", p)
	}
	fmt.Fprintln(d.w, strings.Repeat("─", 76))
	fmt.Fprintln(d.w)
}

func (d *Display) failed(ev Event) {
	d.stopTicker()
	fmt.Fprintln(d.w, strings.Repeat("─", 76))
	// The cause itself is reported once, by the caller.
	fmt.Fprintf(d.w, "❌ PIPELINE ERROR after %.1fs\n", ev.Duration.Seconds())
	for _, p := range ev.Retained {
		fmt.Fprintf(d.w, "🖼️  Kept: %s\n", p)
	}
	fmt.Fprintln(d.w)
}
