package apiclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusDecodesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"online":true,"queue_depth":3,"cache":{"total_size":10,"max_size":100,"item_count":2}}`))
	}))
	defer srv.Close()

	st, err := New(srv.URL).Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Online {
		t.Error("Online = false")
	}
	if st.QueueDepth != 3 {
		t.Errorf("QueueDepth = %d", st.QueueDepth)
	}
	if st.Cache.ItemCount != 2 {
		t.Errorf("ItemCount = %d", st.Cache.ItemCount)
	}
}

func TestProblemResponsesBecomeAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title":  "Not Found",
			"status": 404,
			"detail": "Setlist not found",
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetSetlist("nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound = false for %v", err)
	}
	if IsConflict(err) {
		t.Error("IsConflict = true")
	}
}

func TestNonProblemErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL).EndPerformance()
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
}
