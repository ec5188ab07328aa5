package cache

import (
	"context"
	"sort"

	"github.com/gigsync/gigsync/internal/logger"
)

// ============================================================================
// Eviction
// ============================================================================
//
// Victim selection is ascending (priority, lastAccessedAt): low-priority,
// least-recently-read entries go first. High-priority and pinned entries are
// excluded from the victim pool entirely — if the pool runs out before
// enough space is freed, the triggering insert fails instead.

// freeSpaceLocked evicts until incoming bytes fit within budget. Returns the
// number of entries evicted, or *QuotaError when the evictable pool cannot
// cover the requirement. Callers must hold mu.
func (s *Store) freeSpaceLocked(ctx context.Context, incoming uint64) (int, error) {
	needed := int64(s.current) + int64(incoming) - int64(s.maxBytes)
	if needed <= 0 {
		return 0, nil
	}

	victims := s.victimsLocked()

	// Check the pool can cover the requirement before touching anything,
	// so a doomed insert doesn't evict half the pool for nothing.
	var poolBytes uint64
	for _, v := range victims {
		poolBytes += v.SizeBytes
	}
	if int64(poolBytes) < needed {
		return 0, &QuotaError{
			RequestedBytes: incoming,
			AvailableBytes: s.maxBytes - s.current + poolBytes,
		}
	}

	evicted := 0
	var freed uint64
	for _, v := range victims {
		if int64(freed) >= needed {
			break
		}
		if err := s.deleteEntryLocked(ctx, v); err != nil {
			return evicted, err
		}
		freed += v.SizeBytes
		evicted++
		s.metrics.RecordEviction(v.SizeBytes)

		logger.DebugCtx(ctx, "Evicted cache entry",
			"content_id", v.ContentID,
			"size", v.SizeBytes,
			"priority", v.Priority.String())
	}

	return evicted, nil
}

// victimsLocked returns evictable entries in eviction order. High-priority
// entries are needed for a near-term performance and never evicted under
// quota pressure, same as pinned ones. Callers must hold mu.
func (s *Store) victimsLocked() []*Entry {
	victims := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Pinned || e.Priority == PriorityHigh {
			continue
		}
		victims = append(victims, e)
	}

	sort.Slice(victims, func(i, j int) bool {
		if victims[i].Priority != victims[j].Priority {
			return victims[i].Priority < victims[j].Priority
		}
		return victims[i].LastAccessedAt.Before(victims[j].LastAccessedAt)
	})

	return victims
}

// CleanupOldCache removes unpinned entries not read within the configured
// cleanup age. This is the caller-invoked bulk pass behind the "clean old
// cache" affordance, independent of any pending insert. Unlike quota-driven
// eviction it is purely age-based: a High-priority entry gone stale is
// removed too, only pins protect.
func (s *Store) CleanupOldCache(ctx context.Context) (CleanupResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return CleanupResult{}, ErrCacheClosed
	}

	cutoff := s.clk.Now().Add(-s.cleanupAge)

	stale := make([]*Entry, 0)
	for _, e := range s.entries {
		if e.Pinned || !e.LastAccessedAt.Before(cutoff) {
			continue
		}
		stale = append(stale, e)
	}

	var result CleanupResult
	for _, v := range stale {
		if err := s.deleteEntryLocked(ctx, v); err != nil {
			s.mu.Unlock()
			return result, err
		}
		result.CleanedCount++
		result.FreedSpaceBytes += v.SizeBytes
		s.metrics.RecordEviction(v.SizeBytes)
	}

	info := s.infoLocked()
	s.mu.Unlock()

	if result.CleanedCount > 0 {
		logger.InfoCtx(ctx, "Cache cleanup finished",
			"cleaned", result.CleanedCount,
			"freed_bytes", result.FreedSpaceBytes)
		s.metrics.SetUsage(info.TotalSize, info.ItemCount)
		s.notify(info)
	}

	return result, nil
}
