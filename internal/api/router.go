package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/shutter", s.handleGetShutter)
		r.Put("/shutter", s.handleSetShutter)

		r.Route("/samples", func(r chi.Router) {
			r.Get("/", s.handleListSamples)
			r.Put("/center", s.handleSaveCenter)
			r.Post("/align", s.handleAlignSamples)
			r.Put("/{index}", s.handleSaveSample)
		})
		r.Post("/stage/move", s.handleMoveStage)

		r.Post("/leveling/{axis}", s.handleLevel)
		r.Post("/scans", s.handleScan)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
