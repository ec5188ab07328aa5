package cache

// Metrics is an optional collector for cache activity. Implementations must
// be safe for concurrent use. A nil Metrics disables collection.
type Metrics interface {
	// RecordHit is called when Get finds the content cached.
	RecordHit()

	// RecordMiss is called when Get misses.
	RecordMiss()

	// RecordPut is called after a successful insert.
	RecordPut(sizeBytes uint64)

	// RecordEviction is called per evicted entry.
	RecordEviction(sizeBytes uint64)

	// RecordQuotaRefusal is called when a Put is refused with QuotaError.
	RecordQuotaRefusal()

	// SetUsage reports current occupancy after every mutating operation.
	SetUsage(totalBytes uint64, itemCount int)
}

// noopMetrics is used when no collector is configured.
type noopMetrics struct{}

func (noopMetrics) RecordHit()           {}
func (noopMetrics) RecordMiss()          {}
func (noopMetrics) RecordPut(uint64)     {}
func (noopMetrics) RecordEviction(uint64) {}
func (noopMetrics) RecordQuotaRefusal()  {}
func (noopMetrics) SetUsage(uint64, int) {}
