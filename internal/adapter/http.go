package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/futureCreator/minilun/internal/config"
	vlog "github.com/futureCreator/minilun/internal/log"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 4096

// HTTPAdapter calls a remote inference service. The request is JSON and the
// response body is the artifact itself.
type HTTPAdapter struct {
	Config     *config.Config
	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

// NewHTTPAdapter builds an adapter whose calls share one rate limiter.
func NewHTTPAdapter(cfg *config.Config) *HTTPAdapter {
	a := &HTTPAdapter{
		Config:     cfg,
		HTTPClient: &http.Client{Timeout: cfg.ServiceTimeout()},
	}
	if cfg.Service.RateLimit > 0 {
		burst := cfg.Service.Burst
		if burst < 1 {
			burst = 1
		}
		a.Limiter = rate.NewLimiter(rate.Limit(cfg.Service.RateLimit), burst)
	}
	return a
}

type invokeRequest struct {
	RunID          string `json:"run_id"`
	Stage          string `json:"stage"`
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	OriginalPrompt string `json:"original_prompt"`
	InputKind      string `json:"input_kind"`
	Input          []byte `json:"input,omitempty"` // base64 in JSON
	OutputKind     string `json:"output_kind"`
}

func (a *HTTPAdapter) Invoke(ctx context.Context, req *Request, w io.Writer) error {
	if a.Limiter != nil {
		if err := a.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	payload := invokeRequest{
		RunID:          req.RunID,
		Stage:          req.Stage.Name,
		Model:          req.Stage.Model,
		Prompt:         req.Prompt,
		OriginalPrompt: req.Original,
		InputKind:      string(req.InputKind()),
		OutputKind:     string(req.Stage.Output),
	}
	if req.Input != nil {
		data, err := req.InputBytes()
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		payload.Input = data
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := strings.TrimRight(a.Config.Service.Endpoint, "/") +
		req.Stage.Option("path", "/v1/"+string(req.Stage.Output))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := a.Config.APIKey(); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: a.Config.ServiceTimeout()}
	}

	req.ReportProgress(0)
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("service returned an empty %s artifact", req.Stage.Output)
	}
	vlog.Debug("service response stored", "stage", req.Stage.Name, "bytes", n)
	req.ReportProgress(1)
	return nil
}
