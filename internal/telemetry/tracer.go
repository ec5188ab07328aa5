package telemetry

// Attribute keys for engine operations. Domain keys use component prefixes
// so trace backends can group spans by subsystem.
const (
	// Cache attributes
	AttrCacheHit     = "cache.hit"
	AttrCacheSize    = "cache.size"
	AttrCacheEvicted = "cache.evicted_bytes"
	AttrCachePinned  = "cache.pinned"

	// Content attributes
	AttrContentID   = "content.id"
	AttrContentKind = "content.kind"
	AttrContentMime = "content.mime_type"

	// Setlist attributes
	AttrSetlistID   = "setlist.id"
	AttrPerformance = "setlist.performance_time"
	AttrPriority    = "preload.priority"

	// Sync attributes
	AttrMutationID = "sync.mutation_id"
	AttrEntityID   = "sync.entity_id"
	AttrEntityType = "sync.entity_type"
	AttrOperation  = "sync.operation"
	AttrAttempt    = "sync.attempt"
	AttrOutcome    = "sync.outcome"

	// Remote service attributes
	AttrRemoteMethod = "remote.method"
	AttrRemotePath   = "remote.path"
	AttrRemoteStatus = "remote.status_code"

	// Store attributes
	AttrStoreBackend = "store.backend"
	AttrStoreKey     = "store.key"
	AttrBucket       = "storage.bucket"
)

// Span names. Format: <component>.<operation>.
const (
	SpanCacheGet     = "cache.get"
	SpanCachePut     = "cache.put"
	SpanCacheCleanup = "cache.cleanup"

	SpanPreloadBatch = "preload.batch"
	SpanPreloadFetch = "preload.fetch"

	SpanSyncDrain = "sync.drain"
	SpanSyncSend  = "sync.send"

	SpanRemoteGet    = "remote.get_content"
	SpanRemotePut    = "remote.put_content"
	SpanRemoteDelete = "remote.delete_content"
	SpanRemoteBatch  = "remote.sync_batch"
)
