package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gigsync/gigsync/internal/clock"
	"github.com/gigsync/gigsync/pkg/cache"
	"github.com/gigsync/gigsync/pkg/catalog"
	"github.com/gigsync/gigsync/pkg/config"
	"github.com/gigsync/gigsync/pkg/content"
	"github.com/gigsync/gigsync/pkg/queue"
	"github.com/gigsync/gigsync/pkg/remote"
)

// fakeService is an in-memory remote.Service recording the order of calls.
type fakeService struct {
	mu       sync.Mutex
	payloads map[content.ID][]byte
	pingErr  error
	calls    []string
}

func newFakeService() *fakeService {
	return &fakeService{
		payloads: map[content.ID][]byte{},
		pingErr:  fmt.Errorf("unreachable"),
	}
}

func (f *fakeService) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeService) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeService) GetContent(ctx context.Context, id content.ID) (*remote.Content, error) {
	f.record("get:" + string(id))
	f.mu.Lock()
	data, ok := f.payloads[id]
	f.mu.Unlock()
	if !ok {
		return nil, &remote.NotFoundError{ID: string(id)}
	}
	return &remote.Content{ID: id, MIMEType: "text/plain", Data: data, Version: "v1"}, nil
}

func (f *fakeService) PutContent(ctx context.Context, c *remote.Content) error {
	f.record("put:" + string(c.ID))
	f.mu.Lock()
	f.payloads[c.ID] = c.Data
	f.mu.Unlock()
	return nil
}

func (f *fakeService) DeleteContent(ctx context.Context, id content.ID) error {
	f.record("delete:" + string(id))
	return nil
}

func (f *fakeService) SyncBatch(ctx context.Context, muts []remote.Mutation) (*remote.BatchResult, error) {
	f.record("sync")
	res := &remote.BatchResult{}
	for _, m := range muts {
		res.SuccessCount++
		res.Results = append(res.Results, remote.MutationResult{ID: m.MutationID, Success: true})
	}
	return res, nil
}

func (f *fakeService) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.GetDefaultConfig()
	cfg.Store.Badger.Path = filepath.Join(dir, "store")
	cfg.Catalog.SQLite.Path = filepath.Join(dir, "catalog.db")
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.Preload.Workers = 1
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *fakeService, *clock.Fake) {
	t.Helper()

	svc := newFakeService()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	e, err := New(context.Background(), cfg, WithService(svc), WithClock(clk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop() })

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return e, svc, clk
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStatusSnapshot(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	if err := e.Cache().Put(ctx, "song-1", []byte("lyrics"), "text/plain", cache.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	st := e.Status(ctx)
	if st.Online {
		t.Error("engine should start offline")
	}
	if st.Cache.ItemCount != 1 {
		t.Errorf("ItemCount = %d, want 1", st.Cache.ItemCount)
	}
	if st.QueueDepth != 0 {
		t.Errorf("QueueDepth = %d", st.QueueDepth)
	}
}

func TestOfflineMutationQueuesUntilOnline(t *testing.T) {
	e, svc, _ := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	m, err := e.SubmitMutation(ctx, queue.EnqueueRequest{
		EntityType: queue.EntityContent,
		EntityID:   "song-1",
		Operation:  queue.OpUpdate,
		Payload:    []byte(`{"lyrics":"new"}`),
	})
	if err != nil {
		t.Fatalf("SubmitMutation: %v", err)
	}
	if m.State != queue.StatePending {
		t.Fatalf("state = %s, want pending", m.State)
	}
	if len(svc.callLog()) != 0 {
		t.Fatalf("offline engine must not talk to the service, calls = %v", svc.callLog())
	}

	e.SetOnline(ctx, true)

	waitUntil(t, 2*time.Second, func() bool { return e.Queue().Len() == 0 })
	if got := svc.callLog(); len(got) == 0 || got[0] != "sync" {
		t.Errorf("expected sync call after going online, calls = %v", got)
	}
}

func TestOnlineDrainsBeforeWarmUp(t *testing.T) {
	e, svc, clk := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	svc.mu.Lock()
	svc.payloads["song-a"] = []byte("chords for song a")
	svc.mu.Unlock()

	err := e.CreateSetlist(ctx, &catalog.Setlist{
		Name:          "Tonight",
		PerformanceAt: clk.Now().Add(3 * time.Hour),
		Songs: []catalog.Song{
			{Title: "Song A", ContentID: "song-a", Kind: "chords"},
		},
	})
	if err != nil {
		t.Fatalf("CreateSetlist: %v", err)
	}

	if _, err := e.SubmitMutation(ctx, queue.EnqueueRequest{
		EntityType: queue.EntityContent,
		EntityID:   "song-b",
		Operation:  queue.OpUpdate,
		Payload:    []byte(`{}`),
	}); err != nil {
		t.Fatalf("SubmitMutation: %v", err)
	}

	e.SetOnline(ctx, true)

	waitUntil(t, 2*time.Second, func() bool { return e.Cache().Contains("song-a") })

	calls := svc.callLog()
	if len(calls) < 2 {
		t.Fatalf("calls = %v", calls)
	}
	if calls[0] != "sync" {
		t.Errorf("first remote call = %q, want the queue drain before warm-up fetches", calls[0])
	}
}

func TestGetContentFallsBackToRemoteWhenOnline(t *testing.T) {
	e, svc, _ := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	svc.mu.Lock()
	svc.payloads["song-x"] = []byte("tab")
	svc.mu.Unlock()
	e.SetOnline(ctx, true)

	entry, data, err := e.GetContent(ctx, "song-x")
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if string(data) != "tab" {
		t.Errorf("data = %q", data)
	}
	if entry.SizeBytes != 3 {
		t.Errorf("SizeBytes = %d", entry.SizeBytes)
	}
	if !e.Cache().Contains("song-x") {
		t.Error("fetched content should be cached")
	}
}

func TestGetContentOfflineMiss(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(t))

	_, _, err := e.GetContent(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for offline miss")
	}
}

func TestPerformPinsAndEndUnpins(t *testing.T) {
	e, _, clk := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	if err := e.Cache().Put(ctx, "song-1", []byte("lyrics"), "text/plain", cache.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	s := &catalog.Setlist{
		Name:          "Showtime",
		PerformanceAt: clk.Now().Add(time.Hour),
		Songs: []catalog.Song{
			{Title: "One", ContentID: "song-1", Kind: "lyrics"},
		},
	}
	if err := e.CreateSetlist(ctx, s); err != nil {
		t.Fatalf("CreateSetlist: %v", err)
	}

	if err := e.Perform(ctx, s.ID); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	entry, _, err := e.Cache().Get(ctx, "song-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !entry.Pinned {
		t.Error("active setlist content should be pinned")
	}
	if st := e.Status(ctx); st.ActiveSetlistID != s.ID {
		t.Errorf("ActiveSetlistID = %q, want %q", st.ActiveSetlistID, s.ID)
	}

	if err := e.EndPerformance(ctx); err != nil {
		t.Fatalf("EndPerformance: %v", err)
	}
	entry, _, err = e.Cache().Get(ctx, "song-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Pinned {
		t.Error("content should be unpinned after the performance")
	}
	if st := e.Status(ctx); st.ActiveSetlistID != "" {
		t.Errorf("ActiveSetlistID = %q after EndPerformance", st.ActiveSetlistID)
	}
}

func TestPerformPinsContentFetchedDuringPerformance(t *testing.T) {
	e, svc, clk := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	e.SetOnline(ctx, true)

	// The song is not fetchable yet, so the create-time preload fails and
	// nothing is cached when the performance starts
	s := &catalog.Setlist{
		Name:          "Encore",
		PerformanceAt: clk.Now().Add(time.Hour),
		Songs: []catalog.Song{
			{Title: "Late arrival", ContentID: "song-late", Kind: "lyrics"},
		},
	}
	if err := e.CreateSetlist(ctx, s); err != nil {
		t.Fatalf("CreateSetlist: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		return e.Status(ctx).Preload.Failed >= 1
	})

	svc.mu.Lock()
	svc.payloads["song-late"] = []byte("second verse")
	svc.mu.Unlock()

	if err := e.Perform(ctx, s.ID); err != nil {
		t.Fatalf("Perform: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool { return e.Cache().Contains("song-late") })

	entry, _, err := e.Cache().Get(ctx, "song-late")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !entry.Pinned {
		t.Error("content fetched for the active setlist after Perform must be pinned")
	}

	if err := e.EndPerformance(ctx); err != nil {
		t.Fatalf("EndPerformance: %v", err)
	}
	entry, _, err = e.Cache().Get(ctx, "song-late")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Pinned {
		t.Error("pin should not outlive the performance")
	}
}

func TestEventsFanOut(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	events, cancel := e.Subscribe(8)
	defer cancel()

	if err := e.Cache().Put(ctx, "song-1", []byte("x"), "text/plain", cache.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != EventCacheInfoChanged {
			t.Errorf("event type = %s", ev.Type)
		}
		if ev.CacheInfo == nil || ev.CacheInfo.ItemCount != 1 {
			t.Errorf("event payload = %+v", ev.CacheInfo)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	e1, _, _ := newTestEngine(t, cfg)
	if err := e1.Cache().Put(ctx, "song-1", []byte("keep me"), "text/plain", cache.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := e1.SubmitMutation(ctx, queue.EnqueueRequest{
		EntityType: queue.EntityContent,
		EntityID:   "song-1",
		Operation:  queue.OpUpdate,
		Payload:    []byte(`{}`),
	}); err != nil {
		t.Fatalf("SubmitMutation: %v", err)
	}
	if err := e1.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	e2, _, _ := newTestEngine(t, cfg)
	if !e2.Cache().Contains("song-1") {
		t.Error("cached content lost across restart")
	}
	if e2.Queue().Len() != 1 {
		t.Errorf("queue len = %d after restart, want 1", e2.Queue().Len())
	}
}
