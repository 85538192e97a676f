package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Post("/auth/token", s.handleIssueToken)

		r.Route("/game", func(r chi.Router) {
			r.Get("/", s.handleGetGame)
			r.Group(func(r chi.Router) {
				r.Use(s.requireOperator)
				r.Post("/confirm", s.handleOp)
				r.Post("/start", s.handleOp)
				r.Post("/pause", s.handleOp)
				r.Post("/resume", s.handleOp)
				r.Post("/reset", s.handleOp)
				r.Post("/strike", s.handleOp)
				r.Put("/strikes", s.handleSetStrikes)
				r.Put("/time", s.handleSetTime)
			})
		})

		r.Route("/modules", func(r chi.Router) {
			r.Get("/", s.handleListModules)
			r.Route("/{addr}", func(r chi.Router) {
				r.Get("/", s.handleGetModule)
				r.With(s.requireOperator).Post("/solve", s.handleSolveModule)
			})
		})

		r.Get("/edgework", s.handleEdgework)
		r.Get("/bus", s.handleBus)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleListHistory)
			r.Get("/{id}", s.handleGetHistory)
		})

		r.Get("/audit", s.handleListAudit)
		r.Get("/ws", s.handleWebSocket)
	})

	if s.panel != nil {
		r.Handle("/*", s.panel)
	}

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.game.Snapshot()
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
		"state":   snap.State,
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}
