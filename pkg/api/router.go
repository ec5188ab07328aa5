// Package api exposes the GigSync control API over HTTP.
//
// The API is a local control surface: UIs and the gigsync CLI drive the
// running daemon through it. It binds to loopback by default and carries
// no authentication of its own.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gigsync/gigsync/internal/logger"
	"github.com/gigsync/gigsync/pkg/api/handlers"
	"github.com/gigsync/gigsync/pkg/engine"
	"github.com/gigsync/gigsync/pkg/metrics"
)

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /metrics - Prometheus metrics (404 when metrics are disabled)
//   - GET /api/v1/status - Engine status snapshot
//   - GET /api/v1/content/{id} - Content payload, cache first
//   - GET /api/v1/cache - Cache usage info
//   - POST /api/v1/cache/cleanup - Age-based cleanup pass
//   - DELETE /api/v1/cache/{id} - Drop one cached payload
//   - POST /api/v1/sync/mutations - Enqueue a local edit
//   - GET /api/v1/sync/mutations - List queued mutations
//   - DELETE /api/v1/sync/mutations/{id} - Withdraw a pending mutation
//   - POST /api/v1/sync/mutations/{id}/retry - Retry a failed mutation
//   - POST /api/v1/sync/drain - Synchronous queue drain
//   - GET /api/v1/sync/conflicts - List conflicted mutations
//   - POST /api/v1/sync/conflicts/{id}/resolve - Settle a conflict
//   - /api/v1/setlists/* - Setlist management
//   - GET /api/v1/performance - Active setlist
//   - POST /api/v1/performance/end - Leave performance mode
func NewRouter(e *engine.Engine) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	statusHandler := handlers.NewStatusHandler(e)

	r.Get("/health", statusHandler.Liveness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", statusHandler.Status)

		contentHandler := handlers.NewContentHandler(e)
		r.Get("/content/{id}", contentHandler.Get)

		cacheHandler := handlers.NewCacheHandler(e)
		r.Route("/cache", func(r chi.Router) {
			r.Get("/", cacheHandler.Info)
			r.Post("/cleanup", cacheHandler.Cleanup)
			r.Delete("/{id}", cacheHandler.Remove)
		})

		syncHandler := handlers.NewSyncHandler(e)
		r.Route("/sync", func(r chi.Router) {
			r.Route("/mutations", func(r chi.Router) {
				r.Post("/", syncHandler.Enqueue)
				r.Get("/", syncHandler.ListMutations)
				r.Delete("/{id}", syncHandler.Withdraw)
				r.Post("/{id}/retry", syncHandler.Retry)
			})
			r.Post("/drain", syncHandler.Drain)
			r.Route("/conflicts", func(r chi.Router) {
				r.Get("/", syncHandler.Conflicts)
				r.Post("/{id}/resolve", syncHandler.ResolveConflict)
			})
		})

		setlistHandler := handlers.NewSetlistHandler(e)
		r.Route("/setlists", func(r chi.Router) {
			r.Post("/", setlistHandler.Create)
			r.Get("/", setlistHandler.List)
			r.Get("/{id}", setlistHandler.Get)
			r.Put("/{id}", setlistHandler.Update)
			r.Delete("/{id}", setlistHandler.Delete)
			r.Put("/{id}/songs", setlistHandler.ReplaceSongs)
			r.Post("/{id}/perform", setlistHandler.Perform)
		})
		r.Route("/performance", func(r chi.Router) {
			r.Get("/", setlistHandler.ActivePerformance)
			r.Post("/end", setlistHandler.EndPerformance)
		})
	})

	return r
}

// requestLogger logs requests using the internal logger. Health and
// metrics scrapes go to DEBUG to keep the log readable.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
