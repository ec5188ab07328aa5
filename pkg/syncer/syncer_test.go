package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gigsync/gigsync/internal/clock"
	"github.com/gigsync/gigsync/pkg/content"
	"github.com/gigsync/gigsync/pkg/queue"
	"github.com/gigsync/gigsync/pkg/remote"
	"github.com/gigsync/gigsync/pkg/retry"
	"github.com/gigsync/gigsync/pkg/store/memory"
)

// scriptedService resolves each mutation according to a per-entity script.
type scriptedService struct {
	mu       sync.Mutex
	results  map[string][]remote.MutationResult // entityID -> successive outcomes
	batchErr map[string][]error                 // entityID -> successive batch-level errors
	sent     []string                           // mutation IDs in send order
}

func newScriptedService() *scriptedService {
	return &scriptedService{
		results:  make(map[string][]remote.MutationResult),
		batchErr: make(map[string][]error),
	}
}

func (s *scriptedService) script(entityID string, r remote.MutationResult) {
	s.results[entityID] = append(s.results[entityID], r)
}

func (s *scriptedService) SyncBatch(ctx context.Context, ms []remote.Mutation) (*remote.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := ms[0]
	s.sent = append(s.sent, m.MutationID)

	if errs := s.batchErr[m.EntityID]; len(errs) > 0 {
		err := errs[0]
		s.batchErr[m.EntityID] = errs[1:]
		return nil, err
	}

	script := s.results[m.EntityID]
	var r remote.MutationResult
	if len(script) > 0 {
		r = script[0]
		s.results[m.EntityID] = script[1:]
	} else {
		r = remote.MutationResult{Success: true}
	}
	r.ID = m.MutationID

	out := &remote.BatchResult{Results: []remote.MutationResult{r}}
	if r.Success {
		out.SuccessCount = 1
	} else {
		out.FailureCount = 1
	}
	return out, nil
}

func (s *scriptedService) sentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *scriptedService) GetContent(ctx context.Context, id content.ID) (*remote.Content, error) {
	return nil, &remote.NotFoundError{ID: string(id)}
}
func (s *scriptedService) PutContent(ctx context.Context, c *remote.Content) error { return nil }
func (s *scriptedService) DeleteContent(ctx context.Context, id content.ID) error  { return nil }
func (s *scriptedService) Ping(ctx context.Context) error                          { return nil }

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.New(context.Background(), memory.New(), queue.Config{
		Clock: clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func enqueue(t *testing.T, q *queue.Queue, entityID string) *queue.Mutation {
	t.Helper()
	m, err := q.Enqueue(context.Background(), queue.EnqueueRequest{
		EntityType:  queue.EntityContent,
		EntityID:    entityID,
		Operation:   queue.OpUpdate,
		Payload:     []byte(`{"title":"edit"}`),
		BaseVersion: "v1",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return m
}

func fastPolicy() *retry.Policy {
	return retry.NewPolicy(time.Millisecond, 5*time.Millisecond, 3, 0)
}

func TestDrainCommitsAll(t *testing.T) {
	q := newTestQueue(t)
	svc := newScriptedService()

	enqueue(t, q, "song-1")
	enqueue(t, q, "song-2")

	c := New(q, svc, Config{RetryPolicy: fastPolicy()})
	report, err := c.DrainNow(context.Background())
	if err != nil {
		t.Fatalf("DrainNow: %v", err)
	}

	if report.SuccessCount != 2 || report.FailureCount != 0 {
		t.Errorf("report = %+v", report)
	}
	if q.Len() != 0 {
		t.Errorf("queue retains %d mutations after full commit", q.Len())
	}
}

func TestFIFOWithinLane(t *testing.T) {
	q := newTestQueue(t)
	svc := newScriptedService()

	m1 := enqueue(t, q, "song-1")
	m2 := enqueue(t, q, "song-1")

	c := New(q, svc, Config{RetryPolicy: fastPolicy()})
	if _, err := c.DrainNow(context.Background()); err != nil {
		t.Fatalf("DrainNow: %v", err)
	}

	sent := svc.sentIDs()
	if len(sent) != 2 || sent[0] != m1.MutationID || sent[1] != m2.MutationID {
		t.Errorf("send order = %v, want [%s %s]", sent, m1.MutationID, m2.MutationID)
	}
}

func TestConflictHaltsLaneOthersProceed(t *testing.T) {
	q := newTestQueue(t)
	svc := newScriptedService()

	mA1 := enqueue(t, q, "song-a")
	mA2 := enqueue(t, q, "song-a")
	mB := enqueue(t, q, "song-b")

	svc.script("song-a", remote.MutationResult{
		Success:       false,
		Code:          remote.ResultCodeConflict,
		ServerVersion: "v9",
		ServerState:   []byte(`{"title":"server copy"}`),
	})

	var conflicted *queue.Mutation
	c := New(q, svc, Config{
		RetryPolicy: fastPolicy(),
		OnConflict:  func(m *queue.Mutation) { conflicted = m },
	})

	report, err := c.DrainNow(context.Background())
	if err != nil {
		t.Fatalf("DrainNow: %v", err)
	}

	// B commits in the same drain; A's first mutation conflicts and A's
	// second is never sent
	if report.SuccessCount != 1 || report.FailureCount != 1 {
		t.Errorf("report = %+v", report)
	}
	for _, id := range svc.sentIDs() {
		if id == mA2.MutationID {
			t.Error("second mutation of conflicted lane was sent")
		}
	}

	gotA1, _ := q.Get(mA1.MutationID)
	if gotA1.State != queue.StateConflict || gotA1.ServerVersion != "v9" {
		t.Errorf("conflicted mutation = %+v", gotA1)
	}
	if _, err := q.Get(mB.MutationID); err == nil {
		t.Error("committed mutation still in queue")
	}
	if conflicted == nil || conflicted.MutationID != mA1.MutationID {
		t.Errorf("OnConflict got %v", conflicted)
	}
	if len(conflicted.ServerState) == 0 {
		t.Error("conflict callback lacks server state for rebase")
	}
}

func TestTransientRetriedThenCommitted(t *testing.T) {
	q := newTestQueue(t)
	svc := newScriptedService()

	m := enqueue(t, q, "song-1")
	svc.batchErr["song-1"] = []error{
		&remote.NetworkError{Op: "POST sync/content", StatusCode: 503},
	}

	c := New(q, svc, Config{RetryPolicy: fastPolicy()})
	report, err := c.DrainNow(context.Background())
	if err != nil {
		t.Fatalf("DrainNow: %v", err)
	}

	if report.SuccessCount != 1 {
		t.Errorf("report = %+v", report)
	}
	if sent := svc.sentIDs(); len(sent) != 2 || sent[0] != m.MutationID || sent[1] != m.MutationID {
		t.Errorf("send attempts = %v, want the same mutation twice", sent)
	}
}

func TestRetriesExhaustedGoTerminal(t *testing.T) {
	q := newTestQueue(t)
	svc := newScriptedService()

	m := enqueue(t, q, "song-1")
	svc.batchErr["song-1"] = []error{
		&remote.NetworkError{Op: "POST", StatusCode: 503},
		&remote.NetworkError{Op: "POST", StatusCode: 503},
		&remote.NetworkError{Op: "POST", StatusCode: 503},
		&remote.NetworkError{Op: "POST", StatusCode: 503},
	}

	c := New(q, svc, Config{RetryPolicy: retry.NewPolicy(time.Millisecond, 5*time.Millisecond, 3, 0)})
	report, err := c.DrainNow(context.Background())
	if err != nil {
		t.Fatalf("DrainNow: %v", err)
	}

	if report.FailureCount != 1 || report.SuccessCount != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Results) != 1 || !report.Results[0].Retryable {
		t.Errorf("results = %+v, want one retryable failure", report.Results)
	}

	// maxAttempts 3 means exactly 3 sends, then terminal — never dropped
	if sent := svc.sentIDs(); len(sent) != 3 {
		t.Errorf("send attempts = %d, want 3", len(sent))
	}
	got, err := q.Get(m.MutationID)
	if err != nil {
		t.Fatalf("mutation dropped from queue: %v", err)
	}
	if got.State != queue.StateFailedTerminal {
		t.Errorf("state = %s, want failed_terminal", got.State)
	}
}

func TestPartialSyncAccounting(t *testing.T) {
	q := newTestQueue(t)
	svc := newScriptedService()

	// Three mutations; #2 is rejected with a validation error
	enqueue(t, q, "song-1")
	m2 := enqueue(t, q, "song-2")
	enqueue(t, q, "song-3")

	svc.script("song-2", remote.MutationResult{
		Success: false,
		Code:    remote.ResultCodeValidation,
		Error:   "title required",
	})

	c := New(q, svc, Config{RetryPolicy: fastPolicy()})
	report, err := c.DrainNow(context.Background())
	if err != nil {
		t.Fatalf("DrainNow: %v", err)
	}

	if report.SuccessCount != 2 || report.FailureCount != 1 {
		t.Errorf("report = {%d, %d}, want {2, 1}", report.SuccessCount, report.FailureCount)
	}

	got, err := q.Get(m2.MutationID)
	if err != nil {
		t.Fatalf("rejected mutation missing: %v", err)
	}
	if got.State != queue.StateFailedTerminal {
		t.Errorf("state = %s, want failed_terminal", got.State)
	}
	// Validation failures never retry silently
	if sent := svc.sentIDs(); len(sent) != 3 {
		t.Errorf("sends = %d, want 3 (one per mutation)", len(sent))
	}
}

func TestRetryFailedReEnqueuesAndDrains(t *testing.T) {
	q := newTestQueue(t)
	svc := newScriptedService()

	m := enqueue(t, q, "song-1")
	svc.script("song-1", remote.MutationResult{
		Success: false,
		Code:    remote.ResultCodeValidation,
		Error:   "bad payload",
	})

	c := New(q, svc, Config{RetryPolicy: fastPolicy()})
	if _, err := c.DrainNow(context.Background()); err != nil {
		t.Fatalf("DrainNow: %v", err)
	}

	// The script is consumed; the explicit retry succeeds
	report, err := c.RetryFailed(context.Background(), m.MutationID)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if report.SuccessCount != 1 {
		t.Errorf("retry report = %+v", report)
	}
	if q.Len() != 0 {
		t.Errorf("queue retains %d mutations after retry commit", q.Len())
	}
}

func TestProgressEvents(t *testing.T) {
	q := newTestQueue(t)
	svc := newScriptedService()

	enqueue(t, q, "song-1")
	enqueue(t, q, "song-2")

	var mu sync.Mutex
	var events []Progress
	c := New(q, svc, Config{
		RetryPolicy: fastPolicy(),
		OnProgress: func(p Progress) {
			mu.Lock()
			events = append(events, p)
			mu.Unlock()
		},
	})

	if _, err := c.DrainNow(context.Background()); err != nil {
		t.Fatalf("DrainNow: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("progress events = %d, want 2", len(events))
	}
	final := events[len(events)-1]
	if final.Done != 2 || final.Succeeded != 2 {
		t.Errorf("final progress = %+v", final)
	}
}

func TestEmptyQueueDrain(t *testing.T) {
	q := newTestQueue(t)
	c := New(q, newScriptedService(), Config{})

	report, err := c.DrainNow(context.Background())
	if err != nil {
		t.Fatalf("DrainNow: %v", err)
	}
	if report.SuccessCount != 0 || report.FailureCount != 0 || len(report.Results) != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

var _ remote.Service = (*scriptedService)(nil)
