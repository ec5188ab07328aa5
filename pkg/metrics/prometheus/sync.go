package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gigsync/gigsync/pkg/metrics"
)

// SyncMetrics tracks mutation queue drains. A nil *SyncMetrics is a valid
// no-op receiver, so callers never need to branch on enablement.
type SyncMetrics struct {
	outcomes      *prometheus.CounterVec
	drainDuration prometheus.Histogram
	queueDepth    prometheus.Gauge
}

// NewSyncMetrics creates a Prometheus-backed sync collector, or nil when
// metrics are disabled.
func NewSyncMetrics() *SyncMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &SyncMetrics{
		outcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsync_sync_outcomes_total",
				Help: "Mutation outcomes per drain",
			},
			[]string{"outcome"}, // committed, conflict, failed
		),
		drainDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "gigsync_sync_drain_duration_seconds",
			Help:    "Wall time of full queue drains",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "gigsync_sync_queue_depth",
			Help: "Mutations currently waiting in the queue",
		}),
	}
}

// RecordOutcome counts one resolved mutation.
func (m *SyncMetrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

// ObserveDrain records the duration of one full drain.
func (m *SyncMetrics) ObserveDrain(d time.Duration) {
	if m == nil {
		return
	}
	m.drainDuration.Observe(d.Seconds())
}

// SetQueueDepth reports the current queue length.
func (m *SyncMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// PreloadMetrics tracks the preload scheduler. Nil receiver is a no-op.
type PreloadMetrics struct {
	fetches *prometheus.CounterVec
}

// NewPreloadMetrics creates a Prometheus-backed preload collector, or nil
// when metrics are disabled.
func NewPreloadMetrics() *PreloadMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	return &PreloadMetrics{
		fetches: promauto.With(metrics.GetRegistry()).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsync_preload_fetches_total",
				Help: "Preload fetch results",
			},
			[]string{"result"}, // completed, failed, skipped
		),
	}
}

// RecordFetch counts one finished preload fetch.
func (m *PreloadMetrics) RecordFetch(result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
}
