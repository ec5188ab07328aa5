// Package syncer implements the sync conductor that drains the mutation
// queue against the remote content service.
//
// A drain walks the queue's entity lanes concurrently, up to a configured
// lane limit. Within a lane mutations go out strictly in order through the
// batch sync endpoint, one at a time, and the next mutation is only sent
// once its predecessor is terminal. Outcomes map onto the queue's state
// machine: success commits, a version conflict parks the mutation and
// halts its lane (other lanes keep going), transient failures retry under
// the shared backoff policy until attempts run out, and permanent
// rejections go terminal immediately.
//
// Every drain returns an aggregate report so callers can show "2 of 3
// synced, 1 failed" with the failed subset individually retryable.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gigsync/gigsync/internal/clock"
	"github.com/gigsync/gigsync/internal/logger"
	"github.com/gigsync/gigsync/internal/telemetry"
	"github.com/gigsync/gigsync/pkg/queue"
	"github.com/gigsync/gigsync/pkg/remote"
	"github.com/gigsync/gigsync/pkg/retry"
)

// DefaultLaneConcurrency is how many entity lanes drain in parallel.
const DefaultLaneConcurrency = 4

// Outcome classifies how one mutation ended up after a drain.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeConflict  Outcome = "conflict"
	OutcomeFailed    Outcome = "failed"
)

// ItemResult is the per-mutation outcome in a drain report.
type ItemResult struct {
	MutationID string  `json:"mutation_id"`
	EntityID   string  `json:"entity_id"`
	Outcome    Outcome `json:"outcome"`
	Error      string  `json:"error,omitempty"`

	// Retryable marks failures the caller can re-enqueue via RetryFailed.
	Retryable bool `json:"retryable,omitempty"`
}

// Report is the aggregate outcome of one drain.
type Report struct {
	SuccessCount int          `json:"success_count"`
	FailureCount int          `json:"failure_count"`
	Results      []ItemResult `json:"results"`
}

// Progress is emitted after each mutation resolves during a drain.
type Progress struct {
	Done      int `json:"done"`
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Config contains configuration for the conductor.
type Config struct {
	// LaneConcurrency bounds how many entity lanes drain in parallel.
	// Defaults to DefaultLaneConcurrency.
	LaneConcurrency int

	// SendTimeout bounds each remote send. Defaults to 30s.
	SendTimeout time.Duration

	// RetryPolicy governs transient-failure retries.
	// Defaults to retry.DefaultPolicy().
	RetryPolicy *retry.Policy

	// Clock is the injected time source. Defaults to the system clock.
	Clock clock.Clock

	// OnProgress, when set, is called after each mutation resolves.
	OnProgress func(Progress)

	// OnConflict, when set, is called when a mutation enters Conflict,
	// with a snapshot carrying the server's version and state.
	OnConflict func(*queue.Mutation)
}

// Conductor drains the mutation queue.
type Conductor struct {
	q       *queue.Queue
	service remote.Service
	policy  *retry.Policy
	clk     clock.Clock

	laneConcurrency int
	sendTimeout     time.Duration

	onProgress func(Progress)
	onConflict func(*queue.Mutation)

	// drainMu serializes whole drains: overlapping drains would race on
	// lane heads and double-send
	drainMu sync.Mutex
}

// New creates a conductor over the given queue and service.
func New(q *queue.Queue, service remote.Service, cfg Config) *Conductor {
	if cfg.LaneConcurrency <= 0 {
		cfg.LaneConcurrency = DefaultLaneConcurrency
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = retry.DefaultPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}

	return &Conductor{
		q:               q,
		service:         service,
		policy:          cfg.RetryPolicy,
		clk:             cfg.Clock,
		laneConcurrency: cfg.LaneConcurrency,
		sendTimeout:     cfg.SendTimeout,
		onProgress:      cfg.OnProgress,
		onConflict:      cfg.OnConflict,
	}
}

// DrainNow synchronously drains every ready lane and returns the aggregate
// report. Lanes run concurrently up to the configured limit; the call
// returns when all lanes have settled or ctx is cancelled.
func (c *Conductor) DrainNow(ctx context.Context) (*Report, error) {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSyncDrain)
	defer span.End()

	lanes := c.q.ReadyLanes()
	if len(lanes) == 0 {
		return &Report{}, nil
	}

	total := len(c.q.List(queue.StatePending))
	logger.InfoCtx(ctx, "Starting sync drain", "lanes", len(lanes), "pending", total)

	var (
		mu     sync.Mutex
		report Report
		done   int
	)
	record := func(r ItemResult) {
		mu.Lock()
		report.Results = append(report.Results, r)
		if r.Outcome == OutcomeCommitted {
			report.SuccessCount++
		} else {
			report.FailureCount++
		}
		done++
		p := Progress{
			Done:      done,
			Total:     total,
			Succeeded: report.SuccessCount,
			Failed:    report.FailureCount,
		}
		mu.Unlock()

		if c.onProgress != nil {
			c.onProgress(p)
		}
	}

	sem := make(chan struct{}, c.laneConcurrency)
	var wg sync.WaitGroup
	for _, entityID := range lanes {
		wg.Add(1)
		sem <- struct{}{}
		go func(entityID string) {
			defer wg.Done()
			defer func() { <-sem }()
			c.drainLane(ctx, entityID, record)
		}(entityID)
	}
	wg.Wait()

	logger.InfoCtx(ctx, "Sync drain finished",
		"succeeded", report.SuccessCount,
		"failed", report.FailureCount)

	return &report, ctx.Err()
}

// RetryFailed returns a FailedTerminal mutation to Pending and immediately
// drains its lane.
func (c *Conductor) RetryFailed(ctx context.Context, mutationID string) (*Report, error) {
	if err := c.q.RetryFailed(ctx, mutationID); err != nil {
		return nil, fmt.Errorf("failed to re-enqueue mutation %s: %w", mutationID, err)
	}
	return c.DrainNow(ctx)
}

// drainLane sends a lane's mutations in order until the lane empties,
// halts on a conflict, or ctx is cancelled.
func (c *Conductor) drainLane(ctx context.Context, entityID string, record func(ItemResult)) {
	for {
		if ctx.Err() != nil {
			return
		}

		m, ok := c.q.PeekReady(entityID)
		if !ok {
			return
		}

		c.sendOne(ctx, m, record)
	}
}

// sendOne pushes a single mutation through the batch endpoint and applies
// the outcome to the queue, retrying transient failures in place.
func (c *Conductor) sendOne(ctx context.Context, m *queue.Mutation, record func(ItemResult)) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSyncSend)
	defer span.End()

	logCtx := logger.NewContext(ctx, &logger.LogContext{MutationID: m.MutationID})

	if err := c.q.MarkInFlight(ctx, m.MutationID); err != nil {
		logger.WarnCtx(logCtx, "Could not mark mutation in flight", "error", err)
		return
	}

	wire := remote.Mutation{
		MutationID:  m.MutationID,
		EntityType:  string(m.EntityType),
		EntityID:    m.EntityID,
		Operation:   string(m.Operation),
		Payload:     m.Payload,
		BaseVersion: m.BaseVersion,
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	batch, err := c.service.SyncBatch(sendCtx, []remote.Mutation{wire})
	cancel()

	switch {
	case err == nil:
		c.applyResult(ctx, logCtx, m, batch, record)

	case remote.IsConflict(err):
		var ce *remote.ConflictError
		errors.As(err, &ce)
		c.parkConflict(ctx, logCtx, m, ce.ServerVersion, ce.ServerState, record)

	case remote.IsTransient(err):
		c.handleTransient(ctx, logCtx, m, err, record)

	default:
		// Permanent rejection: terminal immediately, other lanes continue
		c.failTerminal(ctx, logCtx, m, err.Error(), record)
	}
}

// applyResult interprets the batch endpoint's per-item outcome.
func (c *Conductor) applyResult(ctx context.Context, logCtx context.Context, m *queue.Mutation, batch *remote.BatchResult, record func(ItemResult)) {
	var item *remote.MutationResult
	for i := range batch.Results {
		if batch.Results[i].ID == m.MutationID {
			item = &batch.Results[i]
			break
		}
	}
	if item == nil {
		// The server accepted the batch but did not report this item;
		// treat as transient so the mutation replays rather than vanishes
		c.handleTransient(ctx, logCtx, m, fmt.Errorf("batch response missing result for mutation"), record)
		return
	}

	switch {
	case item.Success:
		if err := c.q.MarkCommitted(ctx, m.MutationID); err != nil {
			logger.ErrorCtx(logCtx, "Failed to commit mutation", "error", err)
			return
		}
		record(ItemResult{MutationID: m.MutationID, EntityID: m.EntityID, Outcome: OutcomeCommitted})

	case item.Code == remote.ResultCodeConflict:
		c.parkConflict(ctx, logCtx, m, item.ServerVersion, item.ServerState, record)

	case item.Code == remote.ResultCodeTransient:
		c.handleTransient(ctx, logCtx, m, fmt.Errorf("%s", item.Error), record)

	default:
		c.failTerminal(ctx, logCtx, m, item.Error, record)
	}
}

func (c *Conductor) parkConflict(ctx context.Context, logCtx context.Context, m *queue.Mutation, serverVersion string, serverState []byte, record func(ItemResult)) {
	if err := c.q.MarkConflict(ctx, m.MutationID, serverVersion, serverState); err != nil {
		logger.ErrorCtx(logCtx, "Failed to park conflicted mutation", "error", err)
		return
	}

	logger.WarnCtx(logCtx, "Mutation conflicted, lane halted",
		"entity_id", m.EntityID,
		"server_version", serverVersion)

	record(ItemResult{
		MutationID: m.MutationID,
		EntityID:   m.EntityID,
		Outcome:    OutcomeConflict,
		Error:      fmt.Sprintf("server is at version %s", serverVersion),
	})

	if c.onConflict != nil {
		if snapshot, err := c.q.Get(m.MutationID); err == nil {
			c.onConflict(snapshot)
		}
	}
}

// handleTransient either schedules an in-place retry or, once attempts run
// out, parks the mutation in FailedTerminal for explicit caller retry.
func (c *Conductor) handleTransient(ctx context.Context, logCtx context.Context, m *queue.Mutation, cause error, record func(ItemResult)) {
	attemptsAfter := m.Attempts + 1

	if c.policy.Exhausted(attemptsAfter) {
		if err := c.q.MarkFailed(ctx, m.MutationID, cause.Error(), false); err != nil {
			logger.ErrorCtx(logCtx, "Failed to mark mutation terminal", "error", err)
			return
		}
		logger.WarnCtx(logCtx, "Mutation exhausted retries", "attempts", attemptsAfter, "error", cause)
		record(ItemResult{
			MutationID: m.MutationID,
			EntityID:   m.EntityID,
			Outcome:    OutcomeFailed,
			Error:      cause.Error(),
			Retryable:  true,
		})
		return
	}

	delay, _ := c.policy.Next(m.Attempts)
	if err := c.q.MarkFailed(ctx, m.MutationID, cause.Error(), true); err != nil {
		logger.ErrorCtx(logCtx, "Failed to record transient failure", "error", err)
		return
	}

	logger.DebugCtx(logCtx, "Transient sync failure, backing off",
		"attempt", attemptsAfter,
		"delay", delay,
		"error", cause)

	select {
	case <-ctx.Done():
	case <-c.clk.After(delay):
	}
	// The mutation is Pending again; the lane loop re-peeks and resends
}

func (c *Conductor) failTerminal(ctx context.Context, logCtx context.Context, m *queue.Mutation, errMsg string, record func(ItemResult)) {
	if err := c.q.MarkFailed(ctx, m.MutationID, errMsg, false); err != nil {
		logger.ErrorCtx(logCtx, "Failed to mark mutation terminal", "error", err)
		return
	}

	logger.WarnCtx(logCtx, "Mutation rejected permanently", "error", errMsg)
	record(ItemResult{
		MutationID: m.MutationID,
		EntityID:   m.EntityID,
		Outcome:    OutcomeFailed,
		Error:      errMsg,
		Retryable:  true,
	})
}
