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
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/switches", func(r chi.Router) {
			r.Get("/", s.handleListSwitches)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSwitch)
				r.Get("/history", s.handleSwitchHistory)
				r.Post("/{command}", s.handleSwitchCommand)
			})
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"switches":   len(s.switches.Switches()),
		"ws_clients": s.hub.ClientCount(),
	})
}
