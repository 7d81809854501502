package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// RunCounts are the row counts of one finished run.
type RunCounts struct {
	RowsRead      int64
	RowsSkipped   int64
	FactsProposed int64
	RowsCommitted int64
}

// RunMetrics records one-shot command runs. Runs are short lived, so the
// registry is pushed to a Pushgateway instead of being scraped.
type RunMetrics struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	rows     *prometheus.GaugeVec
	lastRun  *prometheus.GaugeVec
}

// NewRunMetrics registers the run metrics on a fresh registry.
func NewRunMetrics() *RunMetrics {
	reg := prometheus.NewRegistry()
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "massabalans_run_duration_seconds",
		Help:    "Duration of command runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "massabalans_run_success_total",
		Help: "Successful command runs.",
	}, []string{"command"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "massabalans_run_failure_total",
		Help: "Failed command runs by error code.",
	}, []string{"command", "code"})
	rows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "massabalans_run_rows",
		Help: "Row counts of the last run by stage.",
	}, []string{"command", "stage"})
	lastRun := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "massabalans_run_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run.",
	}, []string{"command"})
	reg.MustRegister(duration, success, failure, rows, lastRun)
	return &RunMetrics{
		registry: reg,
		duration: duration,
		success:  success,
		failure:  failure,
		rows:     rows,
		lastRun:  lastRun,
	}
}

// Gatherer exposes the registry for pushing or inspection.
func (m *RunMetrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// ObserveDuration records the duration for the named command.
func (m *RunMetrics) ObserveDuration(command string, duration time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(command)).Observe(duration.Seconds())
}

// RecordSuccess counts a successful run and its row counts.
func (m *RunMetrics) RecordSuccess(command string, counts RunCounts, at time.Time) {
	if m == nil {
		return
	}
	command = normalizeLabel(command)
	m.success.WithLabelValues(command).Inc()
	m.lastRun.WithLabelValues(command).Set(float64(at.Unix()))
	m.rows.WithLabelValues(command, "read").Set(float64(counts.RowsRead))
	m.rows.WithLabelValues(command, "skipped").Set(float64(counts.RowsSkipped))
	m.rows.WithLabelValues(command, "proposed").Set(float64(counts.FactsProposed))
	m.rows.WithLabelValues(command, "committed").Set(float64(counts.RowsCommitted))
}

// RecordFailure counts a failed run under its error code.
func (m *RunMetrics) RecordFailure(command, code string) {
	if m == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(command), normalizeLabel(code)).Inc()
}

// Push replaces the metrics of job on the Pushgateway at url.
func (m *RunMetrics) Push(ctx context.Context, url, job string) error {
	if m == nil || strings.TrimSpace(url) == "" {
		return nil
	}
	return push.New(url, normalizeLabel(job)).
		Gatherer(m.registry).
		PushContext(ctx)
}

func normalizeLabel(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}
