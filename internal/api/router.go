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

	r.Route("/api", func(r chi.Router) {
		// Probes (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		// Device-facing ingestion; authenticated per-request via x-api-key
		// inside the gateway pipeline, not by middleware.
		r.Post("/telemetry/{device_uuid}", s.handleIngest)

		// Dashboard reads (no auth; serves the polling frontend)
		r.Get("/telemetry/latest/{device_uuid}", s.handleLatestReading)
		r.Get("/devices", s.handleListDevices)

		// Registry mutation surface (admin bearer token)
		r.Group(func(r chi.Router) {
			r.Use(s.adminAuthMiddleware)

			r.Post("/devices", s.handleCreateDevice)
			r.Route("/devices/{device_uuid}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Post("/invalidate", s.handleInvalidateDevice)
			})
		})
	})

	return r
}
