package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gigsync/gigsync/pkg/content"
	"github.com/gigsync/gigsync/pkg/engine"
)

// CacheHandler handles cache inspection and maintenance endpoints.
type CacheHandler struct {
	engine *engine.Engine
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(e *engine.Engine) *CacheHandler {
	return &CacheHandler{engine: e}
}

// Info handles GET /api/v1/cache.
func (h *CacheHandler) Info(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.engine.Cache().Info())
}

// Cleanup handles POST /api/v1/cache/cleanup. It removes unpinned entries
// unused for the configured cleanup age and reports what was freed.
func (h *CacheHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.CleanupCache(r.Context())
	if err != nil {
		InternalServerError(w, "Cache cleanup failed")
		return
	}
	WriteJSONOK(w, result)
}

// Remove handles DELETE /api/v1/cache/{id}. Removing content that is not
// cached is a no-op, not an error.
func (h *CacheHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Content ID is required")
		return
	}

	if err := h.engine.Cache().Remove(r.Context(), content.ID(id)); err != nil {
		InternalServerError(w, "Failed to remove cached content")
		return
	}

	WriteNoContent(w)
}
