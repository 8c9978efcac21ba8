// Package telemetry provides logging and metrics for contextd.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Compaction outcomes used as the "outcome" label.
const (
	OutcomeCompacted = "compacted"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics collects Prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	compactions        *prometheus.CounterVec
	compactionDuration prometheus.Histogram
	sweeps             prometheus.Counter
	sweepDuration      prometheus.Histogram
	lastSweep          prometheus.Gauge
	archivedBytes      prometheus.Counter
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextd",
			Name:      "compactions_total",
			Help:      "Per-conversation compaction attempts by outcome.",
		}, []string{"outcome"}),
		compactionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "contextd",
			Name:      "compaction_duration_seconds",
			Help:      "Time spent compacting one conversation, including summarization.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contextd",
			Name:      "sweeps_total",
			Help:      "Completed compaction sweeps.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "contextd",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a full sweep over all conversations.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		lastSweep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "contextd",
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time the last sweep finished.",
		}),
		archivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contextd",
			Name:      "live_bytes_compacted_total",
			Help:      "Live log bytes folded into archives.",
		}),
	}

	m.registry.MustRegister(
		m.compactions,
		m.compactionDuration,
		m.sweeps,
		m.sweepDuration,
		m.lastSweep,
		m.archivedBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordCompaction records one conversation's compaction attempt.
func (m *Metrics) RecordCompaction(outcome string, duration time.Duration, liveBytes int) {
	m.compactions.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	m.compactionDuration.Observe(duration.Seconds())
	if outcome == OutcomeCompacted {
		m.archivedBytes.Add(float64(liveBytes))
	}
}

// RecordSweep records a finished sweep.
func (m *Metrics) RecordSweep(duration time.Duration, finished time.Time) {
	m.sweeps.Inc()
	m.sweepDuration.Observe(duration.Seconds())
	m.lastSweep.Set(float64(finished.Unix()))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
