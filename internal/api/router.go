package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverJSON)
	r.Use(s.cors)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Get(s.wsCfg.Path, s.handleWebSocket)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/devices/{deviceId}", func(r chi.Router) {
			r.Get("/latest", s.handleLatest)
			r.Post("/commands", s.handleSendCommand)
			r.Get("/responses", s.handleLatestResponse)
			if s.commands != nil {
				r.Get("/commands", s.handleCommandHistory)
				r.Get("/commands/stats", s.handleCommandStats)
			}
			if s.queue != nil {
				r.Route("/queue", func(r chi.Router) {
					r.Post("/", s.handleQueueCommand)
					r.Get("/", s.handlePendingCommands)
					r.Delete("/", s.handleClearQueue)
					r.Get("/status", s.handleQueueStatus)
				})
			}
		})
	})

	return r
}
