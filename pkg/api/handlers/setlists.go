package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gigsync/gigsync/pkg/catalog"
	"github.com/gigsync/gigsync/pkg/engine"
)

// SetlistHandler handles setlist management and performance mode endpoints.
type SetlistHandler struct {
	engine *engine.Engine
}

// NewSetlistHandler creates a new SetlistHandler.
func NewSetlistHandler(e *engine.Engine) *SetlistHandler {
	return &SetlistHandler{engine: e}
}

// SongRequest is one song slot in a setlist request body.
type SongRequest struct {
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	ContentID  string `json:"content_id"`
	Kind       string `json:"kind"`
	RemotePath string `json:"remote_path,omitempty"`
	SizeHint   int64  `json:"size_hint,omitempty"`
}

// CreateSetlistRequest is the request body for POST /api/v1/setlists.
type CreateSetlistRequest struct {
	Name          string        `json:"name"`
	Venue         string        `json:"venue,omitempty"`
	PerformanceAt time.Time     `json:"performance_at"`
	Songs         []SongRequest `json:"songs,omitempty"`
}

// UpdateSetlistRequest is the request body for PUT /api/v1/setlists/{id}.
// Songs are replaced through the dedicated songs endpoint.
type UpdateSetlistRequest struct {
	Name          string    `json:"name"`
	Venue         string    `json:"venue,omitempty"`
	PerformanceAt time.Time `json:"performance_at"`
}

func (r *SongRequest) toSong() catalog.Song {
	return catalog.Song{
		Title:      r.Title,
		Artist:     r.Artist,
		ContentID:  r.ContentID,
		Kind:       r.Kind,
		RemotePath: r.RemotePath,
		SizeHint:   r.SizeHint,
	}
}

func validateSongs(w http.ResponseWriter, songs []SongRequest) bool {
	for _, s := range songs {
		if s.Title == "" {
			BadRequest(w, "Every song needs a title")
			return false
		}
		if s.ContentID == "" {
			BadRequest(w, "Every song needs a content ID")
			return false
		}
	}
	return true
}

// Create handles POST /api/v1/setlists.
func (h *SetlistHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSetlistRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Name == "" {
		BadRequest(w, "Setlist name is required")
		return
	}
	if req.PerformanceAt.IsZero() {
		BadRequest(w, "Performance time is required")
		return
	}
	if !validateSongs(w, req.Songs) {
		return
	}

	s := &catalog.Setlist{
		Name:          req.Name,
		Venue:         req.Venue,
		PerformanceAt: req.PerformanceAt,
		Songs:         make([]catalog.Song, len(req.Songs)),
	}
	for i := range req.Songs {
		s.Songs[i] = req.Songs[i].toSong()
	}

	if err := h.engine.CreateSetlist(r.Context(), s); err != nil {
		InternalServerError(w, "Failed to create setlist")
		return
	}

	WriteJSONCreated(w, s)
}

// List handles GET /api/v1/setlists.
func (h *SetlistHandler) List(w http.ResponseWriter, r *http.Request) {
	lists, err := h.engine.Catalog().ListSetlists(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list setlists")
		return
	}
	if lists == nil {
		lists = []catalog.Setlist{}
	}
	WriteJSONOK(w, lists)
}

// Get handles GET /api/v1/setlists/{id}.
func (h *SetlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s, err := h.engine.Catalog().GetSetlist(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrSetlistNotFound) {
			NotFound(w, "Setlist not found")
			return
		}
		InternalServerError(w, "Failed to load setlist")
		return
	}
	WriteJSONOK(w, s)
}

// Update handles PUT /api/v1/setlists/{id}.
func (h *SetlistHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateSetlistRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		BadRequest(w, "Setlist name is required")
		return
	}
	if req.PerformanceAt.IsZero() {
		BadRequest(w, "Performance time is required")
		return
	}

	err := h.engine.Catalog().UpdateSetlist(r.Context(), &catalog.Setlist{
		ID:            id,
		Name:          req.Name,
		Venue:         req.Venue,
		PerformanceAt: req.PerformanceAt,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrSetlistNotFound) {
			NotFound(w, "Setlist not found")
			return
		}
		InternalServerError(w, "Failed to update setlist")
		return
	}

	s, err := h.engine.Catalog().GetSetlist(r.Context(), id)
	if err != nil {
		InternalServerError(w, "Failed to load updated setlist")
		return
	}
	WriteJSONOK(w, s)
}

// ReplaceSongs handles PUT /api/v1/setlists/{id}/songs. The setlist's
// songs are replaced wholesale and its preload batch is rescheduled.
func (h *SetlistHandler) ReplaceSongs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req []SongRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !validateSongs(w, req) {
		return
	}

	songs := make([]catalog.Song, len(req))
	for i := range req {
		songs[i] = req[i].toSong()
	}

	if err := h.engine.ReplaceSongs(r.Context(), id, songs); err != nil {
		if errors.Is(err, catalog.ErrSetlistNotFound) {
			NotFound(w, "Setlist not found")
			return
		}
		InternalServerError(w, "Failed to replace songs")
		return
	}

	s, err := h.engine.Catalog().GetSetlist(r.Context(), id)
	if err != nil {
		InternalServerError(w, "Failed to load updated setlist")
		return
	}
	WriteJSONOK(w, s)
}

// Delete handles DELETE /api/v1/setlists/{id}.
func (h *SetlistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.engine.DeleteSetlist(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrSetlistNotFound) {
			NotFound(w, "Setlist not found")
			return
		}
		InternalServerError(w, "Failed to delete setlist")
		return
	}
	WriteNoContent(w)
}

// Perform handles POST /api/v1/setlists/{id}/perform. The setlist becomes
// active and its content is pinned against eviction.
func (h *SetlistHandler) Perform(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.engine.Perform(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrSetlistNotFound) {
			NotFound(w, "Setlist not found")
			return
		}
		InternalServerError(w, "Failed to enter performance mode")
		return
	}

	s, err := h.engine.Catalog().GetSetlist(r.Context(), id)
	if err != nil {
		InternalServerError(w, "Failed to load setlist")
		return
	}
	WriteJSONOK(w, s)
}

// ActivePerformance handles GET /api/v1/performance.
func (h *SetlistHandler) ActivePerformance(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Catalog().ActiveSetlist(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to load active setlist")
		return
	}
	if s == nil {
		NotFound(w, "No performance is active")
		return
	}
	WriteJSONOK(w, s)
}

// EndPerformance handles POST /api/v1/performance/end. Content stays
// cached, it just becomes evictable again.
func (h *SetlistHandler) EndPerformance(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.EndPerformance(r.Context()); err != nil {
		InternalServerError(w, "Failed to end performance mode")
		return
	}
	WriteNoContent(w)
}
