package runtime

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the execution layer. Each Metrics
// value owns a private registry so concurrent launchers never collide on
// metric registration.
type Metrics struct {
	symbolsTotal   *prometheus.CounterVec
	symbolDuration *prometheus.HistogramVec

	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	stateCommits *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance with all execution metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		symbolsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_symbols_total",
				Help: "Total number of symbols evaluated by instruction and status",
			},
			[]string{"instruction", "status"},
		),

		symbolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lattice_symbol_duration_seconds",
				Help:    "Symbol evaluation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"instruction"},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_runs_total",
				Help: "Total number of runs by runner and status",
			},
			[]string{"runner", "status"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lattice_run_duration_seconds",
				Help:    "Whole-run latency in seconds",
				Buckets: []float64{.05, .1, .5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"runner"},
		),

		stateCommits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_state_commits_total",
				Help: "Total number of persisted-state commits by key",
			},
			[]string{"key"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.symbolsTotal,
		m.symbolDuration,
		m.runsTotal,
		m.runDuration,
		m.stateCommits,
	)

	return m
}

// RecordSymbol records one symbol evaluation.
func (m *Metrics) RecordSymbol(instruction, status string, duration time.Duration) {
	m.symbolsTotal.WithLabelValues(instruction, status).Inc()
	m.symbolDuration.WithLabelValues(instruction).Observe(duration.Seconds())
}

// RecordRun records one whole-sequence run.
func (m *Metrics) RecordRun(runner, status string, duration time.Duration) {
	m.runsTotal.WithLabelValues(runner, status).Inc()
	m.runDuration.WithLabelValues(runner).Observe(duration.Seconds())
}

// RecordStateCommit records one committed state generation.
func (m *Metrics) RecordStateCommit(key string) {
	m.stateCommits.WithLabelValues(key).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
