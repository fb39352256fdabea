package adapter

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/template"
	"time"
)

// TemplateAdapter renders the stage's "template" option. With "steps" and
// "interval" set it reports simulated progress before writing, which is how
// the stub image and video stages behave.
type TemplateAdapter struct{}

type templateData struct {
	Prompt   string
	Original string
	Input    string
	Stage    string
	Model    string
}

func (a *TemplateAdapter) Invoke(ctx context.Context, req *Request, w io.Writer) error {
	tmpl, err := template.New(req.Stage.Name).
		Option("missingkey=error").
		Parse(req.Stage.Option("template", "{{.Prompt}}"))
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}

	steps, err := strconv.Atoi(req.Stage.Option("steps", "0"))
	if err != nil || steps < 0 {
		return fmt.Errorf("invalid steps option %q", req.Stage.Option("steps", ""))
	}
	interval, err := time.ParseDuration(req.Stage.Option("interval", "0s"))
	if err != nil {
		return fmt.Errorf("invalid interval option: %w", err)
	}

	input, err := req.InputBytes()
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	if err := simulateProgress(ctx, req, steps, interval); err != nil {
		return err
	}

	return tmpl.Execute(w, templateData{
		Prompt:   req.Prompt,
		Original: req.Original,
		Input:    string(input),
		Stage:    req.Stage.Name,
		Model:    req.Stage.Model,
	})
}

func simulateProgress(ctx context.Context, req *Request, steps int, interval time.Duration) error {
	if steps == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C
	for i := 0; i <= steps; i++ {
		req.ReportProgress(float64(i) / float64(steps))
		if i == steps {
			break
		}
		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
