// Package cache implements the budgeted content cache at the heart of the
// engine.
//
// The cache holds performance files (lyrics, chord charts, tablature, sheet
// music) as opaque bytes in a persistent byte store, with an in-memory index
// rebuilt from persisted entry metadata on startup. A hard byte budget is
// enforced on every insert: before new bytes go in, the eviction pass frees
// space from unpinned entries in ascending (priority, last access) order,
// and the insert is refused outright when the remaining entries are pinned.
//
// Key Design Principles:
//   - The budget is a hard invariant, not a soft target
//   - Pinned entries (active performance setlist) are never auto-evicted
//   - Occupancy is always recomputed from the entry set, never tracked
//     independently where it could drift
//   - No network calls originate here; the cache only talks to its store
//
// Thread Safety:
// All operations are safe for concurrent use. Budget arithmetic and victim
// selection run under a single writer lock so concurrent preload completions
// cannot race the budget check.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gigsync/gigsync/internal/clock"
	"github.com/gigsync/gigsync/internal/logger"
	"github.com/gigsync/gigsync/pkg/content"
	"github.com/gigsync/gigsync/pkg/store"
)

// Key layout inside the cache's store namespace.
const (
	metaPrefix = "meta/"
	dataPrefix = "data/"
)

// DefaultMaxBytes is the cache budget used when none is configured.
const DefaultMaxBytes = 512 * 1024 * 1024 // 512 MiB

// Config contains configuration for the cache store.
type Config struct {
	// MaxBytes is the hard budget for Σ SizeBytes over all entries.
	// Defaults to DefaultMaxBytes.
	MaxBytes uint64

	// CleanupAge is the access-age threshold used by CleanupOldCache:
	// unpinned entries not read for at least this long are removed.
	// Defaults to 30 days.
	CleanupAge time.Duration

	// Clock is the injected time source. Defaults to the system clock.
	Clock clock.Clock

	// Metrics is an optional activity collector.
	Metrics Metrics

	// OnInfoChanged, when set, is invoked after every mutating operation
	// with a fresh occupancy snapshot. Called synchronously under no lock;
	// keep it cheap.
	OnInfoChanged func(Info)
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxBytes:   DefaultMaxBytes,
		CleanupAge: 30 * 24 * time.Hour,
		Clock:      clock.NewSystem(),
	}
}

// Store is the budgeted content cache.
type Store struct {
	backing store.Store
	clk     clock.Clock
	metrics Metrics

	maxBytes   uint64
	cleanupAge time.Duration

	onInfoChanged func(Info)

	mu      sync.Mutex
	entries map[content.ID]*Entry
	current uint64 // Σ SizeBytes, maintained under mu, verified on load
	closed  bool
}

// New creates a cache over the given byte store and rebuilds the entry
// index from persisted metadata, so cached content survives restarts.
func New(ctx context.Context, backing store.Store, cfg Config) (*Store, error) {
	if backing == nil {
		return nil, fmt.Errorf("cache requires a byte store")
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.CleanupAge == 0 {
		cfg.CleanupAge = 30 * 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	s := &Store{
		backing:       backing,
		clk:           cfg.Clock,
		metrics:       cfg.Metrics,
		maxBytes:      cfg.MaxBytes,
		cleanupAge:    cfg.CleanupAge,
		onInfoChanged: cfg.OnInfoChanged,
		entries:       make(map[content.ID]*Entry),
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}

	logger.Info("Cache store ready",
		"entries", len(s.entries),
		"used_bytes", s.current,
		"max_bytes", s.maxBytes)

	return s, nil
}

// load rebuilds the in-memory index from persisted entry metadata.
// Entries whose bytes are missing (partial write before a crash) are
// dropped rather than indexed.
func (s *Store) load(ctx context.Context) error {
	keys, err := s.backing.ListKeys(ctx, metaPrefix)
	if err != nil {
		return fmt.Errorf("failed to list cache metadata: %w", err)
	}

	for _, key := range keys {
		raw, err := s.backing.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to read cache metadata %q: %w", key, err)
		}

		entry, err := decodeEntry(raw)
		if err != nil {
			logger.Warn("Dropping undecodable cache entry", "key", key, "error", err)
			_ = s.backing.Delete(ctx, key)
			continue
		}

		// Verify the bytes actually exist before trusting the entry
		if _, err := s.backing.Get(ctx, entry.StorageKey); err != nil {
			if errors.Is(err, store.ErrKeyNotFound) {
				logger.Warn("Dropping cache entry with missing bytes", "content_id", entry.ContentID)
				_ = s.backing.Delete(ctx, key)
				continue
			}
			return fmt.Errorf("failed to verify cache entry %s: %w", entry.ContentID, err)
		}

		// Pins don't survive restarts: performance mode re-pins on activation
		entry.Pinned = false

		s.entries[entry.ContentID] = entry
		s.current += entry.SizeBytes
	}

	return nil
}

// Get returns the entry and bytes for a content ID, refreshing its last
// access time. Returns ErrNotFound when the content is not cached.
func (s *Store) Get(ctx context.Context, id content.ID) (*Entry, []byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrCacheClosed
	}

	entry, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		s.metrics.RecordMiss()
		return nil, nil, ErrNotFound
	}

	entry.LastAccessedAt = s.clk.Now()
	snapshot := *entry

	// Persist the refreshed access time while still holding mu, so a
	// concurrent Put replacing this ID cannot have its fresh metadata
	// overwritten by our snapshot. Losing the timestamp on crash only costs
	// eviction ordering accuracy, so failures are logged, not returned.
	if raw, encErr := encodeEntry(&snapshot); encErr == nil {
		if putErr := s.backing.Put(ctx, metaKey(id), raw); putErr != nil {
			logger.DebugCtx(ctx, "Failed to persist access time", "content_id", id, "error", putErr)
		}
	}
	s.mu.Unlock()

	data, err := s.backing.Get(ctx, snapshot.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read cached bytes for %s: %w", id, err)
	}

	s.metrics.RecordHit()
	return &snapshot, data, nil
}

// Contains reports whether a content ID is cached, without touching its
// access time.
func (s *Store) Contains(id content.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// PutOptions carries the optional attributes of an insert.
type PutOptions struct {
	// Priority classifies the entry for eviction. Defaults to PriorityLow.
	Priority Priority

	// Pinned inserts the entry already pinned. Used when caching content
	// for the setlist currently in performance mode.
	Pinned bool
}

// Put caches bytes under a content ID, evicting unpinned entries as needed
// to stay within budget. Returns *QuotaError when eviction cannot free
// enough space; the budget is never exceeded.
//
// Re-inserting an existing ID replaces its bytes and metadata; the old size
// is released before the budget check.
func (s *Store) Put(ctx context.Context, id content.ID, data []byte, mimeType string, opts PutOptions) error {
	incoming := uint64(len(data))
	if incoming > s.maxBytes {
		s.metrics.RecordQuotaRefusal()
		return &QuotaError{RequestedBytes: incoming, AvailableBytes: s.maxBytes}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrCacheClosed
	}

	// Replacing an entry frees its old footprint first
	var replaced *Entry
	if old, ok := s.entries[id]; ok {
		replaced = old
		s.current -= old.SizeBytes
		delete(s.entries, id)
	}

	evicted, err := s.freeSpaceLocked(ctx, incoming)
	if err != nil {
		// Roll the replaced entry back into the index; its bytes were
		// never touched
		if replaced != nil {
			s.entries[id] = replaced
			s.current += replaced.SizeBytes
		}
		s.mu.Unlock()
		s.metrics.RecordQuotaRefusal()
		return err
	}

	now := s.clk.Now()
	entry := &Entry{
		ContentID:      id,
		StorageKey:     dataKey(id),
		MIMEType:       mimeType,
		SizeBytes:      incoming,
		CreatedAt:      now,
		LastAccessedAt: now,
		Priority:       opts.Priority,
		Pinned:         opts.Pinned,
	}
	if replaced != nil {
		entry.CreatedAt = replaced.CreatedAt
		// A re-insert must not silently unpin performance content
		entry.Pinned = entry.Pinned || replaced.Pinned
	}

	raw, err := encodeEntry(entry)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	// Bytes first, then metadata: a crash between the two leaves an
	// orphaned blob that load() drops, never a dangling index entry.
	if err := s.backing.Put(ctx, entry.StorageKey, data); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to store cached bytes for %s: %w", id, err)
	}
	if err := s.backing.Put(ctx, metaKey(id), raw); err != nil {
		_ = s.backing.Delete(ctx, entry.StorageKey)
		s.mu.Unlock()
		return fmt.Errorf("failed to store cache metadata for %s: %w", id, err)
	}

	s.entries[id] = entry
	s.current += incoming
	info := s.infoLocked()
	s.mu.Unlock()

	s.metrics.RecordPut(incoming)
	s.metrics.SetUsage(info.TotalSize, info.ItemCount)
	if evicted > 0 {
		logger.DebugCtx(ctx, "Evicted to fit incoming content",
			"content_id", id, "evicted_entries", evicted, "size", incoming)
	}
	s.notify(info)

	return nil
}

// Remove deletes an entry and its bytes. Removing a missing ID succeeds.
// Remove is explicit caller intent, so it applies to pinned entries too.
func (s *Store) Remove(ctx context.Context, id content.ID) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrCacheClosed
	}

	entry, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}

	if err := s.deleteEntryLocked(ctx, entry); err != nil {
		s.mu.Unlock()
		return err
	}
	info := s.infoLocked()
	s.mu.Unlock()

	s.metrics.SetUsage(info.TotalSize, info.ItemCount)
	s.notify(info)
	return nil
}

// Pin marks entries as belonging to the active performance setlist,
// exempting them from eviction. Unknown IDs are ignored.
func (s *Store) Pin(ids ...content.ID) {
	s.setPinned(true, ids)
}

// Unpin clears the pin on the given entries. Unknown IDs are ignored.
func (s *Store) Unpin(ids ...content.ID) {
	s.setPinned(false, ids)
}

// UnpinAll clears every pin. Called when performance mode ends.
func (s *Store) UnpinAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.Pinned = false
	}
}

func (s *Store) setPinned(pinned bool, ids []content.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			e.Pinned = pinned
		}
	}
}

// SetPriority updates an entry's eviction priority. Used when schedule
// proximity changes after the entry was cached. Returns ErrNotFound for
// unknown IDs.
func (s *Store) SetPriority(id content.ID, p Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Priority = p
	return nil
}

// Info returns a snapshot of cache occupancy.
func (s *Store) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

// infoLocked recomputes occupancy from the entry set. Callers must hold mu.
func (s *Store) infoLocked() Info {
	info := Info{
		MaxSize:   s.maxBytes,
		ItemCount: len(s.entries),
	}
	for _, e := range s.entries {
		info.TotalSize += e.SizeBytes
		if info.OldestItem.IsZero() || e.LastAccessedAt.Before(info.OldestItem) {
			info.OldestItem = e.LastAccessedAt
		}
	}

	// current is the running total; the recomputed sum is authoritative
	s.current = info.TotalSize
	return info
}

// Close releases the index. The backing store is owned by the caller and
// is not closed here.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// deleteEntryLocked removes an entry's bytes, metadata and index slot.
// Callers must hold mu.
func (s *Store) deleteEntryLocked(ctx context.Context, entry *Entry) error {
	if err := s.backing.Delete(ctx, entry.StorageKey); err != nil {
		return fmt.Errorf("failed to delete cached bytes for %s: %w", entry.ContentID, err)
	}
	if err := s.backing.Delete(ctx, metaKey(entry.ContentID)); err != nil {
		return fmt.Errorf("failed to delete cache metadata for %s: %w", entry.ContentID, err)
	}
	delete(s.entries, entry.ContentID)
	s.current -= entry.SizeBytes
	return nil
}

func (s *Store) notify(info Info) {
	if s.onInfoChanged != nil {
		s.onInfoChanged(info)
	}
}

func metaKey(id content.ID) string { return metaPrefix + string(id) }
func dataKey(id content.ID) string { return dataPrefix + string(id) }
