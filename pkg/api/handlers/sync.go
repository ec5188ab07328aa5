package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gigsync/gigsync/pkg/engine"
	"github.com/gigsync/gigsync/pkg/queue"
)

// SyncHandler handles mutation queue and sync endpoints.
type SyncHandler struct {
	engine *engine.Engine
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(e *engine.Engine) *SyncHandler {
	return &SyncHandler{engine: e}
}

// EnqueueMutationRequest is the request body for POST /api/v1/sync/mutations.
type EnqueueMutationRequest struct {
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Operation   string `json:"operation"`
	Payload     []byte `json:"payload,omitempty"`
	BaseVersion string `json:"base_version,omitempty"`
}

// Enqueue handles POST /api/v1/sync/mutations. The mutation is durably
// queued and, when online, drained in the background.
func (h *SyncHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueMutationRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.EntityID == "" {
		BadRequest(w, "Entity ID is required")
		return
	}
	switch queue.EntityType(req.EntityType) {
	case queue.EntityContent, queue.EntitySetlist:
	default:
		BadRequest(w, "Invalid entity type. Must be one of: content, setlist")
		return
	}
	switch queue.Operation(req.Operation) {
	case queue.OpCreate, queue.OpUpdate, queue.OpDelete:
	default:
		BadRequest(w, "Invalid operation. Must be one of: create, update, delete")
		return
	}

	m, err := h.engine.SubmitMutation(r.Context(), queue.EnqueueRequest{
		EntityType:  queue.EntityType(req.EntityType),
		EntityID:    req.EntityID,
		Operation:   queue.Operation(req.Operation),
		Payload:     req.Payload,
		BaseVersion: req.BaseVersion,
	})
	if err != nil {
		InternalServerError(w, "Failed to enqueue mutation")
		return
	}

	WriteJSONCreated(w, m)
}

// ListMutations handles GET /api/v1/sync/mutations. An optional ?state=
// query parameter filters by lifecycle state.
func (h *SyncHandler) ListMutations(w http.ResponseWriter, r *http.Request) {
	var states []queue.State
	if s := r.URL.Query().Get("state"); s != "" {
		switch queue.State(s) {
		case queue.StatePending, queue.StateInFlight, queue.StateConflict, queue.StateFailedTerminal:
			states = append(states, queue.State(s))
		default:
			BadRequest(w, "Invalid state. Must be one of: pending, in_flight, conflict, failed_terminal")
			return
		}
	}

	muts := h.engine.Queue().List(states...)
	if muts == nil {
		muts = []*queue.Mutation{}
	}
	WriteJSONOK(w, muts)
}

// Withdraw handles DELETE /api/v1/sync/mutations/{id}.
func (h *SyncHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.engine.Queue().Withdraw(r.Context(), id); err != nil {
		if errors.Is(err, queue.ErrMutationNotFound) {
			NotFound(w, "Mutation not found")
			return
		}
		var se *queue.StateError
		if errors.As(err, &se) {
			Conflict(w, "Only pending mutations can be withdrawn")
			return
		}
		InternalServerError(w, "Failed to withdraw mutation")
		return
	}

	WriteNoContent(w)
}

// Drain handles POST /api/v1/sync/drain. It synchronously drains the
// mutation queue and returns the aggregate report.
func (h *SyncHandler) Drain(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.DrainNow(r.Context())
	if err != nil {
		if errors.Is(err, engine.ErrNoRemote) {
			ServiceUnavailable(w, "No remote content service configured")
			return
		}
		if report != nil {
			// Partial drain: some lanes settled before the failure
			WriteJSONOK(w, report)
			return
		}
		ServiceUnavailable(w, "Sync drain failed: "+err.Error())
		return
	}
	WriteJSONOK(w, report)
}

// Retry handles POST /api/v1/sync/mutations/{id}/retry. It returns a
// terminally failed mutation to the queue and drains its lane.
func (h *SyncHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.engine.RetrySync(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNoRemote):
			ServiceUnavailable(w, "No remote content service configured")
		case errors.Is(err, queue.ErrMutationNotFound):
			NotFound(w, "Mutation not found")
		default:
			var se *queue.StateError
			if errors.As(err, &se) {
				Conflict(w, "Mutation is not in a retryable state")
				return
			}
			InternalServerError(w, "Retry failed")
		}
		return
	}
	WriteJSONOK(w, report)
}

// Conflicts handles GET /api/v1/sync/conflicts.
func (h *SyncHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := h.engine.Conflicts()
	if conflicts == nil {
		conflicts = []*queue.Mutation{}
	}
	WriteJSONOK(w, conflicts)
}

// ResolveConflictRequest is the request body for conflict resolution.
// Discard drops the local edit; otherwise Payload replaces it, rebased on
// BaseVersion (the server version the user reviewed).
type ResolveConflictRequest struct {
	Discard     bool   `json:"discard"`
	Payload     []byte `json:"payload,omitempty"`
	BaseVersion string `json:"base_version,omitempty"`
}

// ResolveConflict handles POST /api/v1/sync/conflicts/{id}/resolve.
func (h *SyncHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResolveConflictRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !req.Discard && len(req.Payload) == 0 {
		BadRequest(w, "A resolution payload is required unless discarding")
		return
	}

	if err := h.engine.ResolveConflict(r.Context(), id, req.Discard, req.Payload, req.BaseVersion); err != nil {
		if errors.Is(err, queue.ErrMutationNotFound) {
			NotFound(w, "Mutation not found")
			return
		}
		var se *queue.StateError
		if errors.As(err, &se) {
			Conflict(w, "Mutation is not in conflict")
			return
		}
		InternalServerError(w, "Failed to resolve conflict")
		return
	}

	WriteNoContent(w)
}
