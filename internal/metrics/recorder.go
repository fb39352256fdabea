// Package metrics records pipeline run metrics and exports them in the
// Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/futureCreator/minilun/internal/pipeline"
)

const namespace = "minilun"

// Recorder collects run and stage metrics from the pipeline event stream.
// Each Recorder owns its registry, so several may coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stagesTotal   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	runsActive    prometheus.Gauge

	logger *zap.Logger
}

// NewRecorder creates a recorder with all metrics registered.
func NewRecorder(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs",
			},
			[]string{"pipeline", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Pipeline run duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"pipeline"},
		),
		stagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_total",
				Help:      "Total number of stage executions",
			},
			[]string{"stage", "status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Stage duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"stage"},
		),
		runsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of runs in progress",
		}),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// Emit implements pipeline.Sink.
func (r *Recorder) Emit(ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventRunStarted:
		r.runsActive.Inc()
	case pipeline.EventStageCompleted:
		r.stagesTotal.WithLabelValues(ev.Stage, "succeeded").Inc()
		r.stageDuration.WithLabelValues(ev.Stage).Observe(ev.Duration.Seconds())
	case pipeline.EventStageFailed:
		r.stagesTotal.WithLabelValues(ev.Stage, "failed").Inc()
		r.stageDuration.WithLabelValues(ev.Stage).Observe(ev.Duration.Seconds())
	case pipeline.EventRunCompleted:
		r.runsActive.Dec()
		r.runsTotal.WithLabelValues(ev.Pipeline, "succeeded").Inc()
		r.runDuration.WithLabelValues(ev.Pipeline).Observe(ev.Duration.Seconds())
	case pipeline.EventRunFailed:
		r.runsActive.Dec()
		r.runsTotal.WithLabelValues(ev.Pipeline, "failed").Inc()
		r.runDuration.WithLabelValues(ev.Pipeline).Observe(ev.Duration.Seconds())
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile writes the current metrics to path. The file is replaced
// atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	r.logger.Debug("metrics written", zap.String("path", path))
	return nil
}
