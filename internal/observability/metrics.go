// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the backtester.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Simulation metrics
	PositionsSimulated  *prometheus.CounterVec
	PositionReturnBps   prometheus.Histogram
	ConflictResolutions *prometheus.CounterVec
	ResolutionFallbacks *prometheus.CounterVec

	// Execution metrics
	Fills *prometheus.CounterVec

	// Risk metrics
	RiskDecisions *prometheus.CounterVec

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	// Storage metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates metrics registered with reg.
// A nil reg creates unregistered metrics.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_backtest_lab"
	}
	factory := promauto.With(reg)

	return &Metrics{
		PositionsSimulated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "positions_total",
			Help:      "Total number of positions simulated by strategy and exit reason",
		}, []string{"strategy", "exit_reason"}),
		PositionReturnBps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "realized_return_bps",
			Help:      "Realized return per entered position in basis points",
			Buckets:   []float64{-5000, -2000, -1000, -500, -100, 0, 100, 500, 1000, 2000, 5000, 10000},
		}),
		ConflictResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "conflict_resolutions_total",
			Help:      "Stop/target checks by resolution method and outcome",
		}, []string{"method", "outcome"}),
		ResolutionFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "resolution_fallbacks_total",
			Help:      "Same-candle conflicts resolved by the fallback heuristic, by cause",
		}, []string{"cause"}),

		Fills: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "fills_total",
			Help:      "Sampled fills by side and status",
		}, []string{"side", "status"}),

		RiskDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "decisions_total",
			Help:      "Circuit breaker decisions by hit limit (none = allowed)",
		}, []string{"limit"}),

		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint of gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Fill statuses
const (
	FillStatusFilled  = "filled"
	FillStatusPartial = "partial"
	FillStatusFailed  = "failed"
)

// RecordPosition records a simulated position outcome.
func (m *Metrics) RecordPosition(strategyID, exitReason string, entered bool, returnBps float64) {
	if m == nil {
		return
	}
	m.PositionsSimulated.WithLabelValues(strategyID, exitReason).Inc()
	if entered {
		m.PositionReturnBps.Observe(returnBps)
	}
}

// RecordResolution records a stop/target resolution.
func (m *Metrics) RecordResolution(method, outcome, fallbackCause string) {
	if m == nil {
		return
	}
	m.ConflictResolutions.WithLabelValues(method, outcome).Inc()
	if fallbackCause != "" {
		m.ResolutionFallbacks.WithLabelValues(fallbackCause).Inc()
	}
}

// RecordFill records a sampled fill.
func (m *Metrics) RecordFill(side, status string) {
	if m == nil {
		return
	}
	m.Fills.WithLabelValues(side, status).Inc()
}

// RecordRiskDecision records a breaker decision; an empty limit means allowed.
func (m *Metrics) RecordRiskDecision(limit string) {
	if m == nil {
		return
	}
	if limit == "" {
		limit = "none"
	}
	m.RiskDecisions.WithLabelValues(limit).Inc()
}

// RecordRun records a completed backtest run.
func (m *Metrics) RecordRun(status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
