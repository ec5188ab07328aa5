package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gigsync/gigsync/pkg/cache"
	"github.com/gigsync/gigsync/pkg/catalog"
	"github.com/gigsync/gigsync/pkg/config"
	"github.com/gigsync/gigsync/pkg/content"
	"github.com/gigsync/gigsync/pkg/engine"
	"github.com/gigsync/gigsync/pkg/queue"
	"github.com/gigsync/gigsync/pkg/remote"
)

// stubService is an in-memory remote.Service. Ping fails so the engine
// stays offline unless a test flips connectivity explicitly.
type stubService struct {
	mu       sync.Mutex
	payloads map[content.ID][]byte
}

func newStubService() *stubService {
	return &stubService{payloads: map[content.ID][]byte{}}
}

func (s *stubService) GetContent(ctx context.Context, id content.ID) (*remote.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.payloads[id]
	if !ok {
		return nil, &remote.NotFoundError{ID: string(id)}
	}
	return &remote.Content{ID: id, MIMEType: "text/plain", Data: data, Version: "v1"}, nil
}

func (s *stubService) PutContent(ctx context.Context, c *remote.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[c.ID] = c.Data
	return nil
}

func (s *stubService) DeleteContent(ctx context.Context, id content.ID) error {
	return nil
}

func (s *stubService) SyncBatch(ctx context.Context, muts []remote.Mutation) (*remote.BatchResult, error) {
	res := &remote.BatchResult{}
	for _, m := range muts {
		res.SuccessCount++
		res.Results = append(res.Results, remote.MutationResult{ID: m.MutationID, Success: true})
	}
	return res, nil
}

func (s *stubService) Ping(ctx context.Context) error {
	return fmt.Errorf("unreachable")
}

func setupAPITest(t *testing.T) (http.Handler, *engine.Engine) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.GetDefaultConfig()
	cfg.Store.Badger.Path = filepath.Join(dir, "store")
	cfg.Catalog.SQLite.Path = filepath.Join(dir, "catalog.db")
	cfg.ShutdownTimeout = 2 * time.Second

	e, err := engine.New(context.Background(), cfg, engine.WithService(newStubService()))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop() })
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}

	return NewRouter(e), e
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _ := setupAPITest(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Status string `json:"status"`
		Online bool   `json:"online"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", resp.Status)
	}
	if resp.Online {
		t.Error("Expected offline on startup")
	}
}

func TestMetricsDisabled(t *testing.T) {
	router, _ := setupAPITest(t)

	w := doJSON(t, router, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics status = %d, want %d when metrics are disabled", w.Code, http.StatusNotFound)
	}
}

func TestStatusEndpoint(t *testing.T) {
	router, _ := setupAPITest(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/status status = %d, body = %s", w.Code, w.Body.String())
	}

	var st engine.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("Failed to unmarshal status: %v", err)
	}
	if st.Online {
		t.Error("Expected offline status")
	}
	if st.QueueDepth != 0 {
		t.Errorf("QueueDepth = %d, want 0", st.QueueDepth)
	}
}

func TestSetlistCRUD(t *testing.T) {
	router, _ := setupAPITest(t)

	create := map[string]any{
		"name":           "Friday Night",
		"venue":          "The Basement",
		"performance_at": time.Now().Add(48 * time.Hour).UTC(),
		"songs": []map[string]any{
			{"title": "Opener", "content_id": "song-1", "kind": "lyrics"},
			{"title": "Closer", "content_id": "song-2", "kind": "chords"},
		},
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/setlists", create)
	if w.Code != http.StatusCreated {
		t.Fatalf("Create status = %d, body = %s", w.Code, w.Body.String())
	}

	var created catalog.Setlist
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to unmarshal setlist: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Expected non-empty setlist ID")
	}
	if len(created.Songs) != 2 {
		t.Fatalf("Songs = %d, want 2", len(created.Songs))
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/setlists", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("List status = %d", w.Code)
	}
	var lists []catalog.Setlist
	if err := json.Unmarshal(w.Body.Bytes(), &lists); err != nil {
		t.Fatalf("Failed to unmarshal list: %v", err)
	}
	if len(lists) != 1 {
		t.Fatalf("List length = %d, want 1", len(lists))
	}

	update := map[string]any{
		"name":           "Friday Night (moved)",
		"venue":          "Main Hall",
		"performance_at": time.Now().Add(72 * time.Hour).UTC(),
	}
	w = doJSON(t, router, http.MethodPut, "/api/v1/setlists/"+created.ID, update)
	if w.Code != http.StatusOK {
		t.Fatalf("Update status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated catalog.Setlist
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("Failed to unmarshal updated setlist: %v", err)
	}
	if updated.Name != "Friday Night (moved)" {
		t.Errorf("Name = %s", updated.Name)
	}

	songs := []map[string]any{
		{"title": "New Opener", "content_id": "song-3", "kind": "tab"},
	}
	w = doJSON(t, router, http.MethodPut, "/api/v1/setlists/"+created.ID+"/songs", songs)
	if w.Code != http.StatusOK {
		t.Fatalf("ReplaceSongs status = %d, body = %s", w.Code, w.Body.String())
	}
	var withSongs catalog.Setlist
	if err := json.Unmarshal(w.Body.Bytes(), &withSongs); err != nil {
		t.Fatalf("Failed to unmarshal setlist: %v", err)
	}
	if len(withSongs.Songs) != 1 || withSongs.Songs[0].ContentID != "song-3" {
		t.Errorf("Songs after replace = %+v", withSongs.Songs)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/setlists/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Delete status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/api/v1/setlists/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCreateSetlistValidation(t *testing.T) {
	router, _ := setupAPITest(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"performance_at": time.Now().Add(time.Hour)}},
		{"missing performance time", map[string]any{"name": "No Date"}},
		{"song without content id", map[string]any{
			"name":           "Bad Song",
			"performance_at": time.Now().Add(time.Hour),
			"songs":          []map[string]any{{"title": "No Content"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/setlists", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestMutationLifecycle(t *testing.T) {
	router, _ := setupAPITest(t)

	enqueue := map[string]any{
		"entity_type": "content",
		"entity_id":   "song-1",
		"operation":   "update",
		"payload":     []byte(`{"lyrics":"new"}`),
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/sync/mutations", enqueue)
	if w.Code != http.StatusCreated {
		t.Fatalf("Enqueue status = %d, body = %s", w.Code, w.Body.String())
	}

	var m queue.Mutation
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("Failed to unmarshal mutation: %v", err)
	}
	if m.State != queue.StatePending {
		t.Errorf("State = %s, want pending", m.State)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/sync/mutations?state=pending", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("List status = %d", w.Code)
	}
	var muts []queue.Mutation
	if err := json.Unmarshal(w.Body.Bytes(), &muts); err != nil {
		t.Fatalf("Failed to unmarshal mutations: %v", err)
	}
	if len(muts) != 1 {
		t.Fatalf("Mutations = %d, want 1", len(muts))
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/sync/mutations/"+m.MutationID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Withdraw status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/sync/mutations/"+m.MutationID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Withdraw again status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestEnqueueValidation(t *testing.T) {
	router, _ := setupAPITest(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sync/mutations", map[string]any{
		"entity_type": "playlist",
		"entity_id":   "x",
		"operation":   "update",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Bad entity type status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/sync/mutations", map[string]any{
		"entity_type": "content",
		"entity_id":   "x",
		"operation":   "rename",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Bad operation status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDrain(t *testing.T) {
	router, _ := setupAPITest(t)

	enqueue := map[string]any{
		"entity_type": "content",
		"entity_id":   "song-1",
		"operation":   "update",
		"payload":     []byte(`{}`),
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/sync/mutations", enqueue)
	if w.Code != http.StatusCreated {
		t.Fatalf("Enqueue status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/sync/drain", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Drain status = %d, body = %s", w.Code, w.Body.String())
	}

	var report struct {
		SuccessCount int `json:"success_count"`
		FailureCount int `json:"failure_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to unmarshal report: %v", err)
	}
	if report.SuccessCount != 1 || report.FailureCount != 0 {
		t.Errorf("Report = %+v", report)
	}
}

func TestConflictsEmpty(t *testing.T) {
	router, _ := setupAPITest(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/sync/conflicts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Conflicts status = %d", w.Code)
	}
	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("Conflicts body = %q, want empty JSON array", got)
	}
}

func TestContentEndpoint(t *testing.T) {
	router, e := setupAPITest(t)
	ctx := context.Background()

	if err := e.Cache().Put(ctx, "song-1", []byte("verse one"), "text/plain", cache.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/content/song-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Get content status = %d", w.Code)
	}
	if w.Body.String() != "verse one" {
		t.Errorf("Body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q", ct)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/content/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Offline miss status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCacheEndpoints(t *testing.T) {
	router, e := setupAPITest(t)
	ctx := context.Background()

	if err := e.Cache().Put(ctx, "song-1", []byte("cached"), "text/plain", cache.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/cache", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Cache info status = %d", w.Code)
	}
	var info cache.Info
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to unmarshal cache info: %v", err)
	}
	if info.ItemCount != 1 {
		t.Errorf("ItemCount = %d, want 1", info.ItemCount)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/cache/cleanup", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Cleanup status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/cache/song-1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Remove status = %d", w.Code)
	}
	if e.Cache().Contains("song-1") {
		t.Error("Content still cached after remove")
	}
}

func TestPerformanceEndpoints(t *testing.T) {
	router, _ := setupAPITest(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/performance", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Active performance status = %d, want %d", w.Code, http.StatusNotFound)
	}

	create := map[string]any{
		"name":           "Tonight",
		"performance_at": time.Now().Add(2 * time.Hour).UTC(),
		"songs": []map[string]any{
			{"title": "One", "content_id": "song-1", "kind": "lyrics"},
		},
	}
	w = doJSON(t, router, http.MethodPost, "/api/v1/setlists", create)
	if w.Code != http.StatusCreated {
		t.Fatalf("Create status = %d", w.Code)
	}
	var s catalog.Setlist
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("Failed to unmarshal setlist: %v", err)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/setlists/"+s.ID+"/perform", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Perform status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/performance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Active performance status = %d", w.Code)
	}
	var active catalog.Setlist
	if err := json.Unmarshal(w.Body.Bytes(), &active); err != nil {
		t.Fatalf("Failed to unmarshal active setlist: %v", err)
	}
	if active.ID != s.ID {
		t.Errorf("Active ID = %s, want %s", active.ID, s.ID)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/performance/end", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("End performance status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/performance", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Active after end status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
