package handlers

import (
	"net/http"
	"time"

	"github.com/gigsync/gigsync/pkg/engine"
)

// StatusHandler serves engine status and health endpoints.
type StatusHandler struct {
	engine *engine.Engine
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(e *engine.Engine) *StatusHandler {
	return &StatusHandler{engine: e}
}

// HealthResponse is the body for health probes.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Online    bool      `json:"online"`
}

// Liveness handles GET /health. It answers as long as the process serves
// requests; being offline is a normal state, not a failure.
func (h *StatusHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Online:    h.engine.Online(),
	})
}

// Status handles GET /api/v1/status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.engine.Status(r.Context()))
}
