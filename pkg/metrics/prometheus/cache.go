// Package prometheus contains the Prometheus-backed collectors for the
// engine's instrumented components.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gigsync/gigsync/pkg/cache"
	"github.com/gigsync/gigsync/pkg/metrics"
)

// cacheMetrics is the Prometheus implementation of cache.Metrics.
type cacheMetrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	puts          prometheus.Counter
	putBytes      prometheus.Counter
	evictions     prometheus.Counter
	evictedBytes  prometheus.Counter
	quotaRefusals prometheus.Counter
	usageBytes    prometheus.Gauge
	items         prometheus.Gauge
}

// NewCacheMetrics creates a Prometheus-backed cache.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called); the
// cache treats a nil collector as a no-op.
func NewCacheMetrics() cache.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &cacheMetrics{
		hits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gigsync_cache_hits_total",
			Help: "Total cache lookups served from local storage",
		}),
		misses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gigsync_cache_misses_total",
			Help: "Total cache lookups that found nothing",
		}),
		puts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gigsync_cache_puts_total",
			Help: "Total successful cache inserts",
		}),
		putBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gigsync_cache_put_bytes_total",
			Help: "Total bytes written into the cache",
		}),
		evictions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gigsync_cache_evictions_total",
			Help: "Total entries evicted to make room",
		}),
		evictedBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gigsync_cache_evicted_bytes_total",
			Help: "Total bytes reclaimed by eviction",
		}),
		quotaRefusals: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gigsync_cache_quota_refusals_total",
			Help: "Total inserts refused because the budget could not be met",
		}),
		usageBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "gigsync_cache_usage_bytes",
			Help: "Current cache occupancy in bytes",
		}),
		items: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "gigsync_cache_items",
			Help: "Current number of cached entries",
		}),
	}
}

func (m *cacheMetrics) RecordHit()  { m.hits.Inc() }
func (m *cacheMetrics) RecordMiss() { m.misses.Inc() }

func (m *cacheMetrics) RecordPut(sizeBytes uint64) {
	m.puts.Inc()
	m.putBytes.Add(float64(sizeBytes))
}

func (m *cacheMetrics) RecordEviction(sizeBytes uint64) {
	m.evictions.Inc()
	m.evictedBytes.Add(float64(sizeBytes))
}

func (m *cacheMetrics) RecordQuotaRefusal() { m.quotaRefusals.Inc() }

func (m *cacheMetrics) SetUsage(totalBytes uint64, itemCount int) {
	m.usageBytes.Set(float64(totalBytes))
	m.items.Set(float64(itemCount))
}

var _ cache.Metrics = (*cacheMetrics)(nil)
