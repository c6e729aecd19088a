package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not component-specific)
type Metrics struct {
	// Shell metrics
	ShellState      prometheus.Gauge
	ComponentCount  prometheus.Gauge
	BroadcastErrors *prometheus.CounterVec

	// Backend metrics
	FetchesTotal     *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	StaleCompletions prometheus.Counter
	BackendConnected prometheus.Gauge
	BackendRTT       prometheus.Gauge

	// Solver metrics
	SolverRuns   *prometheus.CounterVec
	SolverIssues *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ShellState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "envdesk",
				Subsystem: "shell",
				Name:      "state",
				Help:      "Shell state (0=constructed, 1=awaiting_data, 2=reselecting, 3=data_stable, 4=tabs_built, 5=visible, 6=failed)",
			},
		),

		ComponentCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "envdesk",
				Subsystem: "shell",
				Name:      "components",
				Help:      "Number of registered window components",
			},
		),

		BroadcastErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "envdesk",
				Subsystem: "shell",
				Name:      "broadcast_errors_total",
				Help:      "Total component broadcast operation failures",
			},
			[]string{"component", "operation"},
		),

		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "envdesk",
				Subsystem: "backend",
				Name:      "fetches_total",
				Help:      "Total backend fetch operations",
			},
			[]string{"kind", "status"},
		),

		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "envdesk",
				Subsystem: "backend",
				Name:      "fetch_duration_seconds",
				Help:      "Backend fetch duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		StaleCompletions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "envdesk",
				Subsystem: "backend",
				Name:      "stale_completions_total",
				Help:      "Fetch completions discarded because their generation was superseded",
			},
		),

		BackendConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "envdesk",
				Subsystem: "backend",
				Name:      "connected",
				Help:      "Backend connection status (0=disconnected, 1=connected)",
			},
		),

		BackendRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "envdesk",
				Subsystem: "backend",
				Name:      "rtt_seconds",
				Help:      "Round-trip time to the backend in seconds",
			},
		),

		SolverRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "envdesk",
				Subsystem: "solver",
				Name:      "runs_total",
				Help:      "Total issue solver pool runs",
			},
			[]string{"pool", "status"},
		),

		SolverIssues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "envdesk",
				Subsystem: "solver",
				Name:      "issues_total",
				Help:      "Total issues produced by solver handlers",
			},
			[]string{"pool", "kind"},
		),
	}
}

// collectors returns every core metric for bulk registration
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ShellState,
		m.ComponentCount,
		m.BroadcastErrors,
		m.FetchesTotal,
		m.FetchDuration,
		m.StaleCompletions,
		m.BackendConnected,
		m.BackendRTT,
		m.SolverRuns,
		m.SolverIssues,
	}
}
