package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gigsync/gigsync/pkg/cache"
	"github.com/gigsync/gigsync/pkg/content"
	"github.com/gigsync/gigsync/pkg/engine"
)

// ContentHandler serves performance content payloads, cache first.
type ContentHandler struct {
	engine *engine.Engine
}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler(e *engine.Engine) *ContentHandler {
	return &ContentHandler{engine: e}
}

// Get handles GET /api/v1/content/{id}. The payload is returned raw with
// its stored MIME type so viewers can render it directly.
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Content ID is required")
		return
	}

	entry, data, err := h.engine.GetContent(r.Context(), content.ID(id))
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrNotFound):
			NotFound(w, "Content is not cached and cannot be fetched right now")
		case errors.Is(err, engine.ErrNoRemote):
			NotFound(w, "Content is not cached and no remote service is configured")
		default:
			InternalServerError(w, "Failed to load content")
		}
		return
	}

	mimeType := entry.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
