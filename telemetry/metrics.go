package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	activeRuns    prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	toolCalls     *prometheus.CounterVec
	toolLatency   *prometheus.HistogramVec
	rounds        prometheus.Histogram
	envelopes     *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strix",
			Name:      "runs_total",
			Help:      "Finished runs by mode and status",
		}, []string{"mode", "status"}),
		activeRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "strix",
			Name:      "active_runs",
			Help:      "Runs currently executing",
		}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "strix",
			Name:      "run_duration_seconds",
			Help:      "End to end run latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "strix",
			Name:      "stage_duration_seconds",
			Help:      "Stage latency by stage and outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strix",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome",
		}, []string{"tool", "status"}),
		toolLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "strix",
			Name:      "tool_latency_seconds",
			Help:      "Tool invocation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		rounds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "strix",
			Name:      "deep_rounds",
			Help:      "Iterative rounds used by DEEP runs",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
		envelopes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strix",
			Name:      "envelopes_total",
			Help:      "Envelopes emitted by stage",
		}, []string{"stage"}),
	}
}

func status(ok bool) string {
	if ok {
		return StatusOK
	}
	return StatusError
}

// RunStarted marks a run as active.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

// RunFinished records the outcome of a run. rounds is only observed for DEEP runs.
func (m *Metrics) RunFinished(mode string, ok bool, rounds int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
	m.runs.WithLabelValues(mode, status(ok)).Inc()
	m.runDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if rounds > 0 {
		m.rounds.Observe(float64(rounds))
	}
}

// StageObserved records one stage execution.
func (m *Metrics) StageObserved(stage string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status(ok)).Observe(elapsed.Seconds())
}

// ToolCalled records one tool invocation.
func (m *Metrics) ToolCalled(tool string, ok bool, latency time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status(ok)).Inc()
	m.toolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// EnvelopeEmitted counts a delivered envelope.
func (m *Metrics) EnvelopeEmitted(stage string) {
	if m == nil {
		return
	}
	m.envelopes.WithLabelValues(stage).Inc()
}
