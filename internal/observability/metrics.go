// Package observability provides Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Screening metrics
	ScreeningRuns     *prometheus.CounterVec
	ScreeningDuration prometheus.Histogram
	SymbolsScreened   *prometheus.CounterVec
	Opportunities     *prometheus.CounterVec

	// Ledger metrics
	TradesTotal         *prometheus.CounterVec
	OrderRejections     *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	LedgerCash          prometheus.Gauge
	LedgerEquity        prometheus.Gauge

	// Scheduler metrics
	JobRuns *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "botinvest"
	}
	f := promauto.With(reg)

	return &Metrics{
		ScreeningRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screener",
			Name:      "runs_total",
			Help:      "Total number of screening runs by status",
		}, []string{"status"}),
		ScreeningDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "screener",
			Name:      "run_duration_seconds",
			Help:      "Duration of screening runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		SymbolsScreened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screener",
			Name:      "symbols_total",
			Help:      "Symbols screened by outcome",
		}, []string{"outcome"}),
		Opportunities: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screener",
			Name:      "opportunities_total",
			Help:      "Opportunities emitted by tag",
		}, []string{"tag"}),

		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "trades_total",
			Help:      "Executed trades by side",
		}, []string{"side"}),
		OrderRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "order_rejections_total",
			Help:      "Rejected orders by reason",
		}, []string{"reason"}),
		PersistenceFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "persistence_failures_total",
			Help:      "Ledger saves that failed after a committed trade",
		}),
		LedgerCash: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "cash",
			Help:      "Current ledger cash",
		}),
		LedgerEquity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "equity",
			Help:      "Total equity at the last valuation",
		}),

		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and status",
		}, []string{"job", "status"}),
	}
}

// Handler returns an HTTP handler serving the metrics in gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordScreening records one screening run.
func (m *Metrics) RecordScreening(status string, seconds float64, ok, failed int, tags map[string]int) {
	if m == nil {
		return
	}
	m.ScreeningRuns.WithLabelValues(status).Inc()
	m.ScreeningDuration.Observe(seconds)
	m.SymbolsScreened.WithLabelValues("ok").Add(float64(ok))
	m.SymbolsScreened.WithLabelValues("error").Add(float64(failed))
	for tag, n := range tags {
		m.Opportunities.WithLabelValues(tag).Add(float64(n))
	}
}

// RecordTrade records an executed trade and the resulting cash balance.
func (m *Metrics) RecordTrade(side string, cash float64) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(side).Inc()
	m.LedgerCash.Set(cash)
}

// RecordRejection records an order rejected before execution.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.OrderRejections.WithLabelValues(reason).Inc()
}

// RecordPersistenceFailure records a failed ledger save.
func (m *Metrics) RecordPersistenceFailure() {
	if m == nil {
		return
	}
	m.PersistenceFailures.Inc()
}

// SetEquity records the latest valuation.
func (m *Metrics) SetEquity(cash, equity float64) {
	if m == nil {
		return
	}
	m.LedgerCash.Set(cash)
	m.LedgerEquity.Set(equity)
}

// RecordJob records a scheduled job run.
func (m *Metrics) RecordJob(job string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
}
