// Package preload implements the ahead-of-need fetch scheduler.
//
// Setlists register their content here together with a performance time.
// Items for performances inside the near-term window are fetched at high
// priority; everything else trickles in at low priority. A fixed pool of
// workers serves both classes through a two-phase select: each worker first
// polls the high-priority channel without blocking, then blocks on both,
// so low-priority fetches are naturally deferred while high-priority work
// is in flight, without starving or busy-waiting.
//
// Every scheduled batch is tied to its setlist: cancelling the setlist
// drops its queued fetches and discards the results of in-flight ones.
// A single failed fetch never fails the batch — missing content simply
// falls back to its remote URL when online.
package preload

import (
	"context"
	"sync"
	"time"

	"github.com/gigsync/gigsync/internal/clock"
	"github.com/gigsync/gigsync/internal/logger"
	"github.com/gigsync/gigsync/internal/telemetry"
	"github.com/gigsync/gigsync/pkg/cache"
	"github.com/gigsync/gigsync/pkg/content"
	"github.com/gigsync/gigsync/pkg/remote"
	"github.com/gigsync/gigsync/pkg/retry"
)

// DefaultNearTermWindow is how close a performance must be for its content
// to preload at high priority.
const DefaultNearTermWindow = 24 * time.Hour

// Config contains configuration for the scheduler.
type Config struct {
	// Workers is the fetch concurrency. Defaults to 4.
	Workers int

	// QueueSize bounds each priority channel. Defaults to 1000.
	QueueSize int

	// NearTermWindow is the high-priority horizon. Defaults to 24h.
	NearTermWindow time.Duration

	// FetchTimeout bounds each remote fetch. Defaults to 2 minutes.
	FetchTimeout time.Duration

	// RetryPolicy governs transient-failure retries per fetch.
	// Defaults to retry.DefaultPolicy().
	RetryPolicy *retry.Policy

	// Clock is the injected time source. Defaults to the system clock.
	Clock clock.Clock

	// OnResult, when set, is called with "completed", "failed" or
	// "skipped" as each fetch settles.
	OnResult func(result string)
}

// task is one fetch bound to its owning setlist's cancellation context.
type task struct {
	ctx       context.Context
	setlistID string
	ref       content.Ref
	priority  cache.Priority
	pinned    bool
}

// Scheduler fetches content ahead of need and caches it.
type Scheduler struct {
	service remote.Service
	store   *cache.Store
	clk     clock.Clock
	policy  *retry.Policy

	window       time.Duration
	fetchTimeout time.Duration
	workers      int

	high chan task
	low  chan task

	onResult func(string)

	mu      sync.Mutex
	groups  map[string]context.CancelFunc // setlistID -> cancel
	started bool

	// counters, guarded by mu
	completed int
	failed    int
	skipped   int

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New creates a scheduler fetching from service into store.
func New(service remote.Service, store *cache.Store, cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.NearTermWindow == 0 {
		cfg.NearTermWindow = DefaultNearTermWindow
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 2 * time.Minute
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = retry.DefaultPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}

	return &Scheduler{
		service:      service,
		store:        store,
		clk:          cfg.Clock,
		policy:       cfg.RetryPolicy,
		window:       cfg.NearTermWindow,
		fetchTimeout: cfg.FetchTimeout,
		workers:      cfg.Workers,
		onResult:     cfg.OnResult,
		high:         make(chan task, cfg.QueueSize),
		low:          make(chan task, cfg.QueueSize),
		groups:       make(map[string]context.CancelFunc),
		stopCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	logger.Info("Starting preload scheduler", "workers", s.workers)

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	go func() {
		s.wg.Wait()
		close(s.stoppedCh)
	}()
}

// Stop cancels all setlist groups and shuts the pool down, waiting up to
// timeout for in-flight fetches to finish.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	for id, cancel := range s.groups {
		cancel()
		delete(s.groups, id)
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.stoppedCh:
		logger.Info("Preload scheduler stopped")
	case <-time.After(timeout):
		logger.Warn("Preload scheduler stop timed out")
	}
}

// PriorityFor classifies a performance time against the near-term window.
func (s *Scheduler) PriorityFor(performanceAt time.Time) cache.Priority {
	if performanceAt.Sub(s.clk.Now()) <= s.window {
		return cache.PriorityHigh
	}
	return cache.PriorityLow
}

// ScheduleOptions carries the optional attributes of a batch.
type ScheduleOptions struct {
	// Pinned caches fetched items already pinned. Set when scheduling the
	// setlist currently in performance mode, so content that only becomes
	// cached after the performance starts is as unevictable as content
	// that was cached before it.
	Pinned bool
}

// Schedule queues fetches for a setlist's content. The assigned priority is
// returned so callers can surface it. Items already cached are skipped.
// Re-scheduling a setlist cancels its previous batch first.
func (s *Scheduler) Schedule(ctx context.Context, setlistID string, refs []content.Ref, performanceAt time.Time, opts ScheduleOptions) cache.Priority {
	priority := s.PriorityFor(performanceAt)

	s.mu.Lock()
	if cancel, ok := s.groups[setlistID]; ok {
		cancel()
	}
	groupCtx, cancel := context.WithCancel(context.Background())
	s.groups[setlistID] = cancel
	s.mu.Unlock()

	queued, skipped := 0, 0
	for _, ref := range refs {
		if s.store.Contains(ref.ID) {
			skipped++
			continue
		}

		t := task{ctx: groupCtx, setlistID: setlistID, ref: ref, priority: priority, pinned: opts.Pinned}
		if s.enqueue(t) {
			queued++
		}
	}

	logger.InfoCtx(ctx, "Scheduled preload batch",
		"setlist_id", setlistID,
		"priority", priority.String(),
		"queued", queued,
		"already_cached", skipped)

	return priority
}

// CancelSetlist drops queued fetches for a setlist and discards the
// results of its in-flight ones. Used when a setlist is deleted or its
// performance date passes. Not an error if nothing is scheduled.
func (s *Scheduler) CancelSetlist(setlistID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.groups[setlistID]; ok {
		cancel()
		delete(s.groups, setlistID)
	}
}

// CancelAll cancels every scheduled batch. Fired on the online -> offline
// transition; already-cached bytes are untouched.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.groups {
		cancel()
		delete(s.groups, id)
	}
}

// Stats returns completed, failed and skipped fetch counts.
func (s *Scheduler) Stats() (completed, failed, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, s.failed, s.skipped
}

// Pending returns queued-but-not-started fetch counts per priority class.
func (s *Scheduler) Pending() (high, low int) {
	return len(s.high), len(s.low)
}

func (s *Scheduler) enqueue(t task) bool {
	ch := s.low
	if t.priority == cache.PriorityHigh {
		ch = s.high
	}
	select {
	case ch <- t:
		return true
	default:
		// Preload is best effort; a full queue just means the consumer
		// falls back to the remote URL for this item
		logger.Warn("Preload queue full, dropping fetch",
			"content_id", t.ref.ID,
			"priority", t.priority.String())
		return false
	}
}

// worker serves both priority classes. Two-phase select: poll high without
// blocking first, then block on both, so high-priority fetches always go
// first when present but low-priority work proceeds when they are absent.
func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	logger.Debug("Preload worker started", "worker_id", id)

	for {
		select {
		case t := <-s.high:
			s.process(t)
			continue
		default:
		}

		select {
		case t := <-s.high:
			s.process(t)
		case t := <-s.low:
			s.process(t)
		case <-s.stopCh:
			logger.Debug("Preload worker stopped", "worker_id", id)
			return
		}
	}
}

// process fetches one item and caches it, retrying transient failures
// under the backoff policy. Cancellation is cooperative: checked before
// the fetch, and again before the cache write so a cancelled setlist's
// in-flight result is discarded rather than cached.
func (s *Scheduler) process(t task) {
	if t.ctx.Err() != nil {
		s.settle(resultSkipped)
		return
	}

	ctx, span := telemetry.StartSpan(t.ctx, telemetry.SpanPreloadFetch)
	defer span.End()

	logCtx := logger.NewContext(ctx, &logger.LogContext{
		SetlistID: t.setlistID,
		ContentID: string(t.ref.ID),
	})

	var fetched *remote.Content
	for attempt := uint(0); ; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		c, err := s.service.GetContent(fetchCtx, t.ref.ID)
		cancel()

		if err == nil {
			fetched = c
			break
		}
		if t.ctx.Err() != nil {
			s.settle(resultSkipped)
			return
		}
		if !remote.IsTransient(err) {
			logger.WarnCtx(logCtx, "Preload fetch failed permanently", "error", err)
			s.settle(resultFailed)
			return
		}

		delay, ok := s.policy.Next(attempt)
		if !ok {
			logger.WarnCtx(logCtx, "Preload fetch exhausted retries", "attempts", attempt+1, "error", err)
			s.settle(resultFailed)
			return
		}

		select {
		case <-t.ctx.Done():
			s.settle(resultSkipped)
			return
		case <-s.clk.After(delay):
		}
	}

	// The fetch finished, but the setlist may have been cancelled while it
	// was in flight: discard instead of caching
	if t.ctx.Err() != nil {
		s.settle(resultSkipped)
		return
	}

	mime := fetched.MIMEType
	if mime == "" {
		mime = t.ref.Kind.DefaultMIME()
	}

	err := s.store.Put(ctx, t.ref.ID, fetched.Data, mime, cache.PutOptions{Priority: t.priority, Pinned: t.pinned})
	if err != nil {
		// Quota pressure is tolerated: the item stays remote-only
		logger.WarnCtx(logCtx, "Preload could not cache item", "error", err)
		s.settle(resultFailed)
		return
	}

	logger.DebugCtx(logCtx, "Preloaded content", "size", len(fetched.Data), "priority", t.priority.String())
	s.settle(resultCompleted)
}

// Fetch result labels, also surfaced through Config.OnResult.
const (
	resultCompleted = "completed"
	resultFailed    = "failed"
	resultSkipped   = "skipped"
)

func (s *Scheduler) settle(result string) {
	s.mu.Lock()
	switch result {
	case resultCompleted:
		s.completed++
	case resultFailed:
		s.failed++
	case resultSkipped:
		s.skipped++
	}
	s.mu.Unlock()

	if s.onResult != nil {
		s.onResult(result)
	}
}
