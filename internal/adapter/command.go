package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// CommandAdapter runs the stage's "command" option through sh and stores its
// stdout as the artifact. Inputs are passed as MINILUN_* environment variables.
type CommandAdapter struct {
	ModelsDir string
}

func (e *CommandAdapter) Invoke(ctx context.Context, req *Request, w io.Writer) error {
	command := req.Stage.Option("command", "")
	if command == "" {
		return fmt.Errorf("command adapter: no command specified for stage %q", req.Stage.Name)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = append(os.Environ(), e.env(req)...)
	if dir := req.Stage.Option("dir", ""); dir != "" {
		cmd.Dir = dir
	}

	var stderr bytes.Buffer
	cmd.Stdout = w
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		msg := strings.Join(strings.Fields(stderr.String()), " ")
		if msg == "" {
			return fmt.Errorf("command failed: %w", err)
		}
		return fmt.Errorf("command failed: %w: %s", err, msg)
	}
	return nil
}

func (e *CommandAdapter) env(req *Request) []string {
	input := ""
	if req.Input != nil {
		input = req.Input.Path
	}
	return []string{
		"MINILUN_RUN_ID=" + req.RunID,
		"MINILUN_STAGE=" + req.Stage.Name,
		"MINILUN_MODEL=" + req.Stage.Model,
		"MINILUN_PROMPT=" + req.Prompt,
		"MINILUN_ORIGINAL_PROMPT=" + req.Original,
		"MINILUN_INPUT=" + input,
		"MINILUN_INPUT_KIND=" + string(req.InputKind()),
		"MINILUN_OUTPUT_KIND=" + string(req.Stage.Output),
		"MINILUN_MODELS_DIR=" + e.ModelsDir,
	}
}
