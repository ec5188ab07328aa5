package cache

import (
	"context"
	"testing"
	"time"

	"github.com/gigsync/gigsync/pkg/content"
)

func TestEvictionOrderLowAndOldestFirst(t *testing.T) {
	s, clk := newTestCache(t, 100)

	// Low@t1, High@t2, Low@t3 — the first victim must be Low@t1, never High
	mustPut(t, s, "low-old", 30, PutOptions{Priority: PriorityLow})
	clk.Advance(time.Hour)
	mustPut(t, s, "high-mid", 30, PutOptions{Priority: PriorityHigh})
	clk.Advance(time.Hour)
	mustPut(t, s, "low-new", 30, PutOptions{Priority: PriorityLow})

	// 90/100 used; 20 incoming forces one eviction
	mustPut(t, s, "incoming", 20, PutOptions{})

	if s.Contains("low-old") {
		t.Error("low-old still cached, want it evicted first")
	}
	if !s.Contains("high-mid") {
		t.Error("high-mid evicted before low-priority entries")
	}
	if !s.Contains("low-new") {
		t.Error("low-new evicted though low-old sufficed")
	}
}

func TestHighPriorityNeverEvictedForQuota(t *testing.T) {
	s, clk := newTestCache(t, 100)
	ctx := context.Background()

	// Only High-priority entries in the cache: even unpinned, they are not
	// in the victim pool, so the insert must be refused rather than served
	// by evicting near-term performance content
	mustPut(t, s, "high-a", 50, PutOptions{Priority: PriorityHigh})
	clk.Advance(time.Hour)
	mustPut(t, s, "high-b", 40, PutOptions{Priority: PriorityHigh})

	err := s.Put(ctx, "incoming", make([]byte, 20), "text/plain", PutOptions{})
	if !IsQuotaError(err) {
		t.Fatalf("Put = %v, want QuotaError", err)
	}
	if !s.Contains("high-a") || !s.Contains("high-b") {
		t.Error("refused put evicted a high-priority entry")
	}
	if s.Contains("incoming") {
		t.Error("refused put still cached the incoming item")
	}
}

func TestCleanupRemovesStaleHighPriority(t *testing.T) {
	s, clk := newTestCache(t, 1024)

	mustPut(t, s, "stale-high", 100, PutOptions{Priority: PriorityHigh})
	clk.Advance(31 * 24 * time.Hour)

	result, err := s.CleanupOldCache(context.Background())
	if err != nil {
		t.Fatalf("CleanupOldCache: %v", err)
	}
	if result.CleanedCount != 1 {
		t.Errorf("CleanedCount = %d, want 1", result.CleanedCount)
	}
	if s.Contains("stale-high") {
		t.Error("stale high-priority entry survived age-based cleanup")
	}
}

func TestLastAccessBreaksTiesWithinPriority(t *testing.T) {
	s, clk := newTestCache(t, 100)
	ctx := context.Background()

	mustPut(t, s, "a", 40, PutOptions{})
	clk.Advance(time.Hour)
	mustPut(t, s, "b", 40, PutOptions{})

	// Reading "a" makes it the most recently used
	clk.Advance(time.Hour)
	if _, _, err := s.Get(ctx, "a"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	mustPut(t, s, "c", 40, PutOptions{})

	if s.Contains("b") {
		t.Error("b still cached, want it evicted as least recently accessed")
	}
	if !s.Contains("a") {
		t.Error("a evicted despite recent access")
	}
}

func TestPinnedNeverEvicted(t *testing.T) {
	s, clk := newTestCache(t, 100)
	ctx := context.Background()

	mustPut(t, s, "pinned-old", 50, PutOptions{Pinned: true})
	clk.Advance(time.Hour)
	mustPut(t, s, "unpinned", 30, PutOptions{})

	// 20 free; 40 incoming needs 20 more — must come from "unpinned" even
	// though "pinned-old" is the older entry
	mustPut(t, s, "incoming", 40, PutOptions{})

	if !s.Contains("pinned-old") {
		t.Fatal("pinned entry was evicted")
	}
	if s.Contains("unpinned") {
		t.Error("unpinned entry survived, nothing else could have been freed")
	}

	// Now only pinned + incoming remain; an insert that cannot fit without
	// touching pinned content must be refused, not accommodated
	err := s.Put(ctx, "too-big", make([]byte, 60), "text/plain", PutOptions{})
	if !IsQuotaError(err) {
		t.Fatalf("Put needing pinned eviction: err = %v, want QuotaError", err)
	}
	if !s.Contains("pinned-old") || !s.Contains("incoming") {
		t.Error("refused put disturbed existing entries")
	}
}

func TestQuotaRefusalEvictsNothing(t *testing.T) {
	s, _ := newTestCache(t, 100)
	ctx := context.Background()

	mustPut(t, s, "pinned", 60, PutOptions{Pinned: true})
	mustPut(t, s, "small", 20, PutOptions{})

	// Needs 60 freed but only 20 is unpinned: refuse without evicting
	err := s.Put(ctx, "big", make([]byte, 80), "text/plain", PutOptions{})
	if !IsQuotaError(err) {
		t.Fatalf("err = %v, want QuotaError", err)
	}
	if !s.Contains("small") {
		t.Error("doomed insert evicted entries before failing")
	}
}

func TestQuotaTriggeredCleanupScenario(t *testing.T) {
	// Budget 50 MB, 45 MB used, insert 10 MB: eviction must free >= 10 MB
	// of unpinned content and the insert succeeds.
	const mb = 1024 * 1024
	s, clk := newTestCache(t, 50*mb)

	var evictedBytes uint64
	s.metrics = recordingMetrics{evicted: &evictedBytes}

	for i := 0; i < 9; i++ {
		mustPut(t, s, content.ID(string(rune('a'+i))), 5*mb, PutOptions{})
		clk.Advance(time.Minute)
	}
	if info := s.Info(); info.TotalSize != 45*mb {
		t.Fatalf("setup: TotalSize = %d", info.TotalSize)
	}

	mustPut(t, s, "incoming", 10*mb, PutOptions{})

	if evictedBytes < 10*mb {
		t.Errorf("evicted %d bytes, want >= %d", evictedBytes, 10*mb)
	}
	if info := s.Info(); info.TotalSize > 50*mb {
		t.Errorf("TotalSize = %d exceeds budget", info.TotalSize)
	}
	if !s.Contains("incoming") {
		t.Error("incoming item not cached")
	}
}

func TestCleanupOldCache(t *testing.T) {
	s, clk := newTestCache(t, 1024)
	ctx := context.Background()

	mustPut(t, s, "stale", 100, PutOptions{})
	mustPut(t, s, "stale-pinned", 100, PutOptions{Pinned: true})

	// Move past the 30-day default age, then add a fresh entry
	clk.Advance(31 * 24 * time.Hour)
	mustPut(t, s, "fresh", 100, PutOptions{})

	result, err := s.CleanupOldCache(ctx)
	if err != nil {
		t.Fatalf("CleanupOldCache: %v", err)
	}

	if result.CleanedCount != 1 || result.FreedSpaceBytes != 100 {
		t.Errorf("result = %+v, want {1, 100}", result)
	}
	if s.Contains("stale") {
		t.Error("stale entry survived cleanup")
	}
	if !s.Contains("stale-pinned") {
		t.Error("pinned entry removed by cleanup")
	}
	if !s.Contains("fresh") {
		t.Error("fresh entry removed by cleanup")
	}
}

func TestCleanupOnEmptyCache(t *testing.T) {
	s, _ := newTestCache(t, 1024)

	result, err := s.CleanupOldCache(context.Background())
	if err != nil {
		t.Fatalf("CleanupOldCache: %v", err)
	}
	if result.CleanedCount != 0 || result.FreedSpaceBytes != 0 {
		t.Errorf("result = %+v, want zero", result)
	}
}

// recordingMetrics counts evicted bytes for scenario assertions.
type recordingMetrics struct {
	evicted *uint64
}

func (recordingMetrics) RecordHit()           {}
func (recordingMetrics) RecordMiss()          {}
func (recordingMetrics) RecordPut(uint64)     {}
func (recordingMetrics) RecordQuotaRefusal()  {}
func (recordingMetrics) SetUsage(uint64, int) {}
func (m recordingMetrics) RecordEviction(b uint64) {
	*m.evicted += b
}
