package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gigsync/gigsync/internal/logger"
	"github.com/gigsync/gigsync/pkg/cache"
	"github.com/gigsync/gigsync/pkg/catalog"
	"github.com/gigsync/gigsync/pkg/content"
	"github.com/gigsync/gigsync/pkg/preload"
	"github.com/gigsync/gigsync/pkg/queue"
	"github.com/gigsync/gigsync/pkg/syncer"
)

// Status is a point-in-time snapshot of the whole engine, served by
// GET /v1/status and the `gigsync status` command.
type Status struct {
	Online bool `json:"online"`

	Cache      cache.Info `json:"cache"`
	QueueDepth int        `json:"queue_depth"`
	Conflicts  int        `json:"conflicts"`

	Preload PreloadStats `json:"preload"`

	// LastDrain is the report of the most recent sync drain, nil if no
	// drain ran since startup.
	LastDrain *syncer.Report `json:"last_drain,omitempty"`

	// ActiveSetlistID is set while a performance is running.
	ActiveSetlistID string `json:"active_setlist_id,omitempty"`
}

// PreloadStats summarizes scheduler activity since startup.
type PreloadStats struct {
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	PendingHigh int `json:"pending_high"`
	PendingLow  int `json:"pending_low"`
}

// Status assembles the snapshot.
func (e *Engine) Status(ctx context.Context) Status {
	st := Status{
		Online:     e.Online(),
		Cache:      e.cache.Info(),
		QueueDepth: e.q.Len(),
		Conflicts:  len(e.q.List(queue.StateConflict)),
	}

	if e.preloader != nil {
		st.Preload.Completed, st.Preload.Failed, st.Preload.Skipped = e.preloader.Stats()
		st.Preload.PendingHigh, st.Preload.PendingLow = e.preloader.Pending()
	}

	e.mu.Lock()
	st.LastDrain = e.lastDrain
	e.mu.Unlock()

	if active, err := e.cat.ActiveSetlist(ctx); err == nil && active != nil {
		st.ActiveSetlistID = active.ID
	}

	return st
}

// ============================================================================
// Content
// ============================================================================

// GetContent serves one payload, cache first. On a miss the engine falls
// back to the remote service when online and caches what it fetched, so
// the next lookup is local.
func (e *Engine) GetContent(ctx context.Context, id content.ID) (*cache.Entry, []byte, error) {
	entry, data, err := e.cache.Get(ctx, id)
	if err == nil {
		return entry, data, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, nil, err
	}

	if e.service == nil {
		return nil, nil, ErrNoRemote
	}
	if !e.Online() {
		return nil, nil, fmt.Errorf("content %s is not cached and the device is offline: %w", id, cache.ErrNotFound)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.Preload.FetchTimeout)
	defer cancel()

	c, err := e.service.GetContent(fetchCtx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("remote fetch failed: %w", err)
	}

	if err := e.cache.Put(ctx, id, c.Data, c.MIMEType, cache.PutOptions{}); err != nil {
		// Quota pressure must not hide content the user asked for
		logger.WarnCtx(ctx, "Could not cache fetched content", "content_id", id, "error", err)
	}

	entry, data, err = e.cache.Get(ctx, id)
	if err != nil {
		// Not cached (quota); synthesize a snapshot from the fetch
		return &cache.Entry{
			ContentID: id,
			MIMEType:  c.MIMEType,
			SizeBytes: uint64(len(c.Data)),
		}, c.Data, nil
	}
	return entry, data, nil
}

// ============================================================================
// Mutations and sync
// ============================================================================

// SubmitMutation records a local edit in the durable queue. When online,
// a drain is kicked off in the background so small edits sync promptly.
func (e *Engine) SubmitMutation(ctx context.Context, req queue.EnqueueRequest) (*queue.Mutation, error) {
	m, err := e.q.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	e.syncMetrics.SetQueueDepth(e.q.Len())

	if e.conductor != nil && e.Online() {
		go func() {
			if _, err := e.DrainNow(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Background drain failed", "error", err)
			}
		}()
	}

	return m, nil
}

// DrainNow synchronously drains the mutation queue and returns the
// aggregate report.
func (e *Engine) DrainNow(ctx context.Context) (*syncer.Report, error) {
	if e.conductor == nil {
		return nil, ErrNoRemote
	}

	start := e.clk.Now()
	report, err := e.conductor.DrainNow(ctx)
	if report != nil {
		e.recordDrain(report, e.clk.Now().Sub(start))
	}
	return report, err
}

// RetrySync returns a terminally failed mutation to the queue and drains
// its lane immediately.
func (e *Engine) RetrySync(ctx context.Context, mutationID string) (*syncer.Report, error) {
	if e.conductor == nil {
		return nil, ErrNoRemote
	}

	start := e.clk.Now()
	report, err := e.conductor.RetryFailed(ctx, mutationID)
	if report != nil {
		e.recordDrain(report, e.clk.Now().Sub(start))
	}
	return report, err
}

func (e *Engine) recordDrain(report *syncer.Report, elapsed time.Duration) {
	e.mu.Lock()
	e.lastDrain = report
	e.mu.Unlock()

	for _, r := range report.Results {
		e.syncMetrics.RecordOutcome(string(r.Outcome))
	}
	e.syncMetrics.ObserveDrain(elapsed)
	e.syncMetrics.SetQueueDepth(e.q.Len())
}

// Conflicts lists mutations parked in Conflict, oldest first.
func (e *Engine) Conflicts() []*queue.Mutation {
	return e.q.List(queue.StateConflict)
}

// ResolveConflict settles a parked mutation: discard drops the local edit,
// otherwise the mutation is rebased onto the server's current version with
// the given payload and re-queued. When online the lane drains right away.
func (e *Engine) ResolveConflict(ctx context.Context, mutationID string, discard bool, payload []byte, baseVersion string) error {
	if err := e.q.ResolveConflict(ctx, mutationID, discard, payload, baseVersion); err != nil {
		return err
	}

	if e.conductor != nil && e.Online() && !discard {
		go func() {
			if _, err := e.DrainNow(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Post-resolution drain failed", "error", err)
			}
		}()
	}
	return nil
}

// ============================================================================
// Setlists and preload
// ============================================================================

// CreateSetlist stores a setlist and schedules its content for preload.
func (e *Engine) CreateSetlist(ctx context.Context, s *catalog.Setlist) error {
	if err := e.cat.CreateSetlist(ctx, s); err != nil {
		return err
	}
	e.scheduleSetlist(ctx, s)
	return nil
}

// ReplaceSongs swaps a setlist's songs and reschedules its preload batch.
func (e *Engine) ReplaceSongs(ctx context.Context, setlistID string, songs []catalog.Song) error {
	if err := e.cat.ReplaceSongs(ctx, setlistID, songs); err != nil {
		return err
	}

	s, err := e.cat.GetSetlist(ctx, setlistID)
	if err != nil {
		return err
	}
	e.scheduleSetlist(ctx, s)
	return nil
}

// DeleteSetlist removes a setlist and cancels any preloads it had queued.
func (e *Engine) DeleteSetlist(ctx context.Context, setlistID string) error {
	if e.preloader != nil {
		e.preloader.CancelSetlist(setlistID)
	}
	return e.cat.DeleteSetlist(ctx, setlistID)
}

// WarmUp schedules preloads for every upcoming setlist. Runs on each
// Offline -> Online transition and can be invoked explicitly.
func (e *Engine) WarmUp(ctx context.Context) error {
	if e.preloader == nil {
		return ErrNoRemote
	}

	lists, err := e.cat.UpcomingSetlists(ctx, e.clk.Now())
	if err != nil {
		return fmt.Errorf("failed to load upcoming setlists: %w", err)
	}

	for i := range lists {
		e.scheduleSetlist(ctx, &lists[i])
	}

	logger.InfoCtx(ctx, "Preload warm-up scheduled", "setlists", len(lists))
	return nil
}

func (e *Engine) scheduleSetlist(ctx context.Context, s *catalog.Setlist) {
	if e.preloader == nil || len(s.Songs) == 0 {
		return
	}
	if s.Active {
		// Mid-performance edits must not leave new songs evictable: pin
		// what is already cached, and fetch the rest pinned
		e.cache.Pin(s.ContentIDs()...)
	}
	e.preloader.Schedule(ctx, s.ID, s.ContentRefs(), s.PerformanceAt, preload.ScheduleOptions{Pinned: s.Active})
}

// ============================================================================
// Performance mode
// ============================================================================

// Perform enters performance mode for a setlist: it becomes the active
// setlist, its cached content is pinned against eviction, and anything
// not yet cached is scheduled at the front of the preload queue.
func (e *Engine) Perform(ctx context.Context, setlistID string) error {
	s, err := e.cat.GetSetlist(ctx, setlistID)
	if err != nil {
		return err
	}

	if err := e.cat.SetActive(ctx, setlistID); err != nil {
		return err
	}
	s.Active = true

	// Pin before preloading: already-cached entries become unevictable
	// immediately, and scheduleSetlist fetches the rest pinned
	e.cache.Pin(s.ContentIDs()...)
	e.scheduleSetlist(ctx, s)

	logger.InfoCtx(ctx, "Performance mode on",
		"setlist_id", setlistID,
		"songs", len(s.Songs))
	return nil
}

// EndPerformance leaves performance mode: clears the active setlist and
// unpins everything. Content stays cached, it just becomes evictable.
func (e *Engine) EndPerformance(ctx context.Context) error {
	if err := e.cat.SetActive(ctx, ""); err != nil {
		return err
	}
	e.cache.UnpinAll()

	logger.InfoCtx(ctx, "Performance mode off")
	return nil
}

// ============================================================================
// Cache management
// ============================================================================

// CleanupCache removes unpinned entries unused for the configured
// cleanup age.
func (e *Engine) CleanupCache(ctx context.Context) (cache.CleanupResult, error) {
	return e.cache.CleanupOldCache(ctx)
}
