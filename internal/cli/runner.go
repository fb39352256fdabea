package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/futureCreator/minilun/internal/adapter"
	"github.com/futureCreator/minilun/internal/assets"
	"github.com/futureCreator/minilun/internal/config"
	"github.com/futureCreator/minilun/internal/history"
	vlog "github.com/futureCreator/minilun/internal/log"
	"github.com/futureCreator/minilun/internal/metrics"
	"github.com/futureCreator/minilun/internal/pipeline"
	"github.com/futureCreator/minilun/internal/run"
	"github.com/futureCreator/minilun/internal/telemetry"
)

// session holds everything one CLI invocation needs to execute runs.
type session struct {
	cfg      *config.Config
	engine   *pipeline.Engine
	recorder *metrics.Recorder
	history  *history.Store
	tel      *telemetry.Providers
	logFile  *os.File
}

// openSession loads config, sets up logging and observability, and builds
// an engine for the named pipeline. An empty name selects the configured
// default. Events go to sink as well as to metrics and the debug log.
func openSession(ctx context.Context, pipelineName string, verbose bool, sink pipeline.Sink) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &session{cfg: cfg}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	s.logFile = openLogFile()
	if s.logFile != nil {
		vlog.Init(level, s.logFile)
	} else {
		vlog.Init(level, nil)
	}

	s.tel, err = telemetry.Init(ctx, cfg.Telemetry, vlog.Logger())
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	if pipelineName == "" {
		pipelineName = cfg.DefaultPipeline
	}
	ppl, err := loadPipeline(pipelineName)
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("loading pipeline %q: %w", pipelineName, err)
	}

	if cfg.History.Path != "" {
		if s.history, err = history.Open(cfg.History.Path); err != nil {
			vlog.Warn("run history unavailable", "path", cfg.History.Path, "err", err)
		}
	}

	s.recorder = metrics.NewRecorder(vlog.Logger())
	s.engine = &pipeline.Engine{
		Pipeline:     ppl,
		Adapters:     buildAdapters(cfg),
		Roles:        cfg.Roles,
		WorkDir:      cfg.ResolveWorkDir(),
		StageTimeout: cfg.StageTimeoutDuration(),
		Sink:         pipeline.Sinks{sink, s.recorder, pipeline.LogSink},
	}
	return s, nil
}

// execute runs one request and records the outcome in history.
func (s *session) execute(ctx context.Context, req pipeline.Request) (*run.Result, error) {
	res, err := s.engine.Run(ctx, req)
	if s.history != nil && res != nil {
		// The run context may already be cancelled; the record should still land.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if herr := s.history.Record(rctx, res); herr != nil {
			vlog.Warn("recording run history", "run", res.ID, "err", herr)
		}
		cancel()
	}
	return res, err
}

// close flushes metrics, history, traces and the log file. Failures are
// logged only.
func (s *session) close(ctx context.Context) {
	if s.recorder != nil && s.cfg.Metrics.Textfile != "" {
		if err := s.recorder.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
			vlog.Warn("writing metrics", "err", err)
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			vlog.Warn("closing run history", "err", err)
		}
	}
	if s.tel != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.tel.Shutdown(sctx); err != nil {
			vlog.Warn("shutting down telemetry", "err", err)
		}
		cancel()
	}
	vlog.Sync()
	if s.logFile != nil {
		vlog.Init(s.cfg.LogLevel, nil)
		s.logFile.Close()
	}
}

func loadPipeline(name string) (*pipeline.Pipeline, error) {
	// Try filesystem first (project/user overrides)
	ppl, err := pipeline.LoadPipeline(name)
	if err == nil {
		return ppl, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	// Fall back to embedded
	data, err := assets.LoadPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q not found", name)
	}
	return pipeline.Parse(data)
}

func buildAdapters(cfg *config.Config) map[string]adapter.Adapter {
	return map[string]adapter.Adapter{
		"template": &adapter.TemplateAdapter{},
		"http":     adapter.NewHTTPAdapter(cfg),
		"command":  &adapter.CommandAdapter{ModelsDir: cfg.Models.Dir},
	}
}

func openLogFile() *os.File {
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(config.Dir, "minilun.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil
	}
	return f
}
