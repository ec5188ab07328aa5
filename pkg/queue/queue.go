// Package queue implements the durable mutation queue.
//
// Local edits made while offline (or optimistically before server
// confirmation) are enqueued here and replayed by the sync conductor once
// connectivity returns. Every mutation is persisted to the byte store on
// enqueue and on every state change, so the queue survives process
// restarts; mutations found InFlight during load are reset to Pending,
// since a crash mid-send leaves the outcome unknown and the mutation ID
// makes replay idempotent.
//
// Ordering: mutations for the same entity are strictly FIFO — the head of
// an entity lane must reach a terminal state before the next mutation in
// that lane becomes ready. Lanes for different entities are independent.
package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gigsync/gigsync/internal/clock"
	"github.com/gigsync/gigsync/internal/logger"
	"github.com/gigsync/gigsync/pkg/store"
)

// Storage key layout: one record per mutation, keyed by zero-padded
// sequence number so ListKeys returns enqueue order.
const mutPrefix = "mut/"

// Common errors returned by the queue.
var (
	ErrMutationNotFound = fmt.Errorf("mutation not found")
	ErrQueueClosed      = fmt.Errorf("queue is closed")
)

// StateError reports a state-machine violation, e.g. withdrawing a
// mutation that is already in flight.
type StateError struct {
	MutationID string
	State      State
	Wanted     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("mutation %s is %s, expected %s", e.MutationID, e.State, e.Wanted)
}

// Config contains configuration for the mutation queue.
type Config struct {
	// Clock is the injected time source. Defaults to the system clock.
	Clock clock.Clock
}

// Queue is the durable mutation queue.
type Queue struct {
	backing store.Store
	clk     clock.Clock

	mu      sync.Mutex
	byID    map[string]*Mutation
	lanes   map[string][]*Mutation // entityID -> mutations in Seq order
	nextSeq uint64
	closed  bool
}

// New creates a queue over the given byte store and loads any persisted
// mutations. InFlight mutations are reset to Pending (crash recovery).
func New(ctx context.Context, backing store.Store, cfg Config) (*Queue, error) {
	if backing == nil {
		return nil, fmt.Errorf("queue requires a byte store")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}

	q := &Queue{
		backing: backing,
		clk:     cfg.Clock,
		byID:    make(map[string]*Mutation),
		lanes:   make(map[string][]*Mutation),
		nextSeq: 1,
	}

	if err := q.load(ctx); err != nil {
		return nil, err
	}

	logger.Info("Mutation queue ready", "pending", q.countByState(StatePending), "total", len(q.byID))
	return q, nil
}

func (q *Queue) load(ctx context.Context) error {
	keys, err := q.backing.ListKeys(ctx, mutPrefix)
	if err != nil {
		return fmt.Errorf("failed to list queued mutations: %w", err)
	}

	recovered := 0
	all := make([]*Mutation, 0, len(keys))
	for _, key := range keys {
		raw, err := q.backing.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to read mutation %q: %w", key, err)
		}
		m, err := decodeMutation(raw)
		if err != nil {
			logger.Warn("Dropping undecodable mutation record", "key", key, "error", err)
			_ = q.backing.Delete(ctx, key)
			continue
		}

		// A crash mid-send leaves the outcome unknown; replay is safe
		// because the server dedups on mutation ID
		if m.State == StateInFlight {
			m.State = StatePending
			recovered++
			if err := q.persist(ctx, m); err != nil {
				return err
			}
		}

		all = append(all, m)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })

	for _, m := range all {
		q.byID[m.MutationID] = m
		q.lanes[m.EntityID] = append(q.lanes[m.EntityID], m)
		if m.Seq >= q.nextSeq {
			q.nextSeq = m.Seq + 1
		}
	}

	if recovered > 0 {
		logger.Info("Recovered in-flight mutations to pending", "count", recovered)
	}
	return nil
}

// EnqueueRequest describes one local edit to queue.
type EnqueueRequest struct {
	EntityType  EntityType
	EntityID    string
	Operation   Operation
	Payload     []byte
	BaseVersion string
}

// Enqueue persists a new mutation at the tail of its entity's lane and
// returns it.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*Mutation, error) {
	if req.EntityID == "" {
		return nil, fmt.Errorf("entity ID is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	m := &Mutation{
		MutationID:  uuid.NewString(),
		Seq:         q.nextSeq,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Operation:   req.Operation,
		Payload:     req.Payload,
		BaseVersion: req.BaseVersion,
		CreatedAt:   q.clk.Now(),
		State:       StatePending,
	}

	if err := q.persist(ctx, m); err != nil {
		return nil, err
	}

	q.nextSeq++
	q.byID[m.MutationID] = m
	q.lanes[m.EntityID] = append(q.lanes[m.EntityID], m)

	logger.DebugCtx(ctx, "Enqueued mutation",
		"mutation_id", m.MutationID,
		"entity_id", m.EntityID,
		"operation", string(m.Operation))

	return m, nil
}

// PeekReady returns the next sendable mutation for an entity: the first
// non-terminal mutation in the lane, provided it is Pending and nothing
// ahead of it is unresolved. A Conflict anywhere ahead halts the lane.
func (q *Queue) PeekReady(entityID string) (*Mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peekReadyLocked(entityID)
}

func (q *Queue) peekReadyLocked(entityID string) (*Mutation, bool) {
	for _, m := range q.lanes[entityID] {
		switch m.State {
		case StateFailedTerminal:
			// Terminal: surfaced to the caller, does not block successors
			continue
		case StateConflict:
			// Unresolved conflict halts the whole lane
			return nil, false
		case StatePending:
			snapshot := *m
			return &snapshot, true
		default:
			// InFlight head: lane busy
			return nil, false
		}
	}
	return nil, false
}

// ReadyLanes returns the entity IDs that currently have a sendable head
// mutation, in first-enqueued order.
func (q *Queue) ReadyLanes() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	type laneHead struct {
		entityID string
		seq      uint64
	}
	heads := make([]laneHead, 0, len(q.lanes))
	for entityID := range q.lanes {
		if m, ok := q.peekReadyLocked(entityID); ok {
			heads = append(heads, laneHead{entityID, m.Seq})
		}
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].seq < heads[j].seq })

	out := make([]string, len(heads))
	for i, h := range heads {
		out[i] = h.entityID
	}
	return out
}

// MarkInFlight transitions a Pending mutation to InFlight before sending.
func (q *Queue) MarkInFlight(ctx context.Context, mutationID string) error {
	return q.transition(ctx, mutationID, StatePending, func(m *Mutation) {
		m.State = StateInFlight
	})
}

// MarkCommitted removes a successfully applied mutation from the queue and
// the store.
func (q *Queue) MarkCommitted(ctx context.Context, mutationID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	m, ok := q.byID[mutationID]
	if !ok {
		return ErrMutationNotFound
	}

	if err := q.backing.Delete(ctx, mutKey(m.Seq)); err != nil {
		return fmt.Errorf("failed to delete committed mutation %s: %w", mutationID, err)
	}
	q.removeLocked(m)

	logger.DebugCtx(ctx, "Mutation committed", "mutation_id", mutationID, "entity_id", m.EntityID)
	return nil
}

// MarkConflict parks a mutation in Conflict with the server's current
// state, halting its entity lane until the caller resolves it.
func (q *Queue) MarkConflict(ctx context.Context, mutationID, serverVersion string, serverState []byte) error {
	return q.transition(ctx, mutationID, StateInFlight, func(m *Mutation) {
		m.State = StateConflict
		m.ServerVersion = serverVersion
		m.ServerState = serverState
	})
}

// MarkFailed records a failed attempt. Retryable failures return the
// mutation to Pending with an incremented attempt count; non-retryable
// failures park it in FailedTerminal for explicit caller retry.
func (q *Queue) MarkFailed(ctx context.Context, mutationID, errMsg string, retryable bool) error {
	return q.transition(ctx, mutationID, StateInFlight, func(m *Mutation) {
		m.Attempts++
		m.LastError = errMsg
		if retryable {
			m.State = StatePending
		} else {
			m.State = StateFailedTerminal
		}
	})
}

// RetryFailed returns a FailedTerminal mutation to Pending with a fresh
// attempt budget. This is the explicit "retry" affordance behind partial
// sync reports.
func (q *Queue) RetryFailed(ctx context.Context, mutationID string) error {
	return q.transition(ctx, mutationID, StateFailedTerminal, func(m *Mutation) {
		m.State = StatePending
		m.Attempts = 0
		m.LastError = ""
	})
}

// ResolveConflict settles a Conflict mutation. With discard, the local edit
// is dropped. Otherwise the caller supplies a rebased payload and the
// server version it was rebased onto, and the mutation re-enters the lane
// as Pending.
func (q *Queue) ResolveConflict(ctx context.Context, mutationID string, discard bool, payload []byte, baseVersion string) error {
	if discard {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return ErrQueueClosed
		}
		m, ok := q.byID[mutationID]
		if !ok {
			return ErrMutationNotFound
		}
		if m.State != StateConflict {
			return &StateError{MutationID: mutationID, State: m.State, Wanted: string(StateConflict)}
		}
		if err := q.backing.Delete(ctx, mutKey(m.Seq)); err != nil {
			return fmt.Errorf("failed to delete discarded mutation %s: %w", mutationID, err)
		}
		q.removeLocked(m)
		return nil
	}

	return q.transition(ctx, mutationID, StateConflict, func(m *Mutation) {
		m.State = StatePending
		m.Payload = payload
		m.BaseVersion = baseVersion
		m.Attempts = 0
		m.LastError = ""
		m.ServerVersion = ""
		m.ServerState = nil
	})
}

// Withdraw removes a not-yet-sent mutation from the queue. Only Pending
// mutations can be withdrawn; anything already sent must run its course.
func (q *Queue) Withdraw(ctx context.Context, mutationID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	m, ok := q.byID[mutationID]
	if !ok {
		return ErrMutationNotFound
	}
	if m.State != StatePending {
		return &StateError{MutationID: mutationID, State: m.State, Wanted: string(StatePending)}
	}

	if err := q.backing.Delete(ctx, mutKey(m.Seq)); err != nil {
		return fmt.Errorf("failed to delete withdrawn mutation %s: %w", mutationID, err)
	}
	q.removeLocked(m)
	return nil
}

// Get returns a snapshot of one mutation.
func (q *Queue) Get(mutationID string) (*Mutation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.byID[mutationID]
	if !ok {
		return nil, ErrMutationNotFound
	}
	snapshot := *m
	return &snapshot, nil
}

// List returns snapshots of all mutations in the given states (all states
// when none given), in enqueue order.
func (q *Queue) List(states ...State) []*Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()

	want := make(map[State]bool, len(states))
	for _, s := range states {
		want[s] = true
	}

	out := make([]*Mutation, 0, len(q.byID))
	for _, m := range q.byID {
		if len(want) == 0 || want[m.State] {
			snapshot := *m
			out = append(out, &snapshot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Len returns the number of retained mutations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}

// Close releases the in-memory index. Persisted mutations stay in the
// store for the next start.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.byID = nil
	q.lanes = nil
	return nil
}

// transition applies fn to a mutation after checking its current state,
// then persists it.
func (q *Queue) transition(ctx context.Context, mutationID string, from State, fn func(*Mutation)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	m, ok := q.byID[mutationID]
	if !ok {
		return ErrMutationNotFound
	}
	if m.State != from {
		return &StateError{MutationID: mutationID, State: m.State, Wanted: string(from)}
	}

	prev := *m
	fn(m)

	if err := q.persist(ctx, m); err != nil {
		*m = prev
		return err
	}
	return nil
}

// persist writes a mutation record. Callers must hold mu.
func (q *Queue) persist(ctx context.Context, m *Mutation) error {
	raw, err := encodeMutation(m)
	if err != nil {
		return err
	}
	if err := q.backing.Put(ctx, mutKey(m.Seq), raw); err != nil {
		return fmt.Errorf("failed to persist mutation %s: %w", m.MutationID, err)
	}
	return nil
}

// removeLocked drops a mutation from the index and its lane. Callers must
// hold mu.
func (q *Queue) removeLocked(m *Mutation) {
	delete(q.byID, m.MutationID)

	lane := q.lanes[m.EntityID]
	for i, lm := range lane {
		if lm.MutationID == m.MutationID {
			q.lanes[m.EntityID] = append(lane[:i], lane[i+1:]...)
			break
		}
	}
	if len(q.lanes[m.EntityID]) == 0 {
		delete(q.lanes, m.EntityID)
	}
}

func (q *Queue) countByState(s State) int {
	n := 0
	for _, m := range q.byID {
		if m.State == s {
			n++
		}
	}
	return n
}

func mutKey(seq uint64) string {
	return fmt.Sprintf("%s%020d", mutPrefix, seq)
}
