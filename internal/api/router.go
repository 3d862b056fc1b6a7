package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/couch-control/internal/auth"
	"github.com/nerrad567/couch-control/internal/integration"
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

	// Health check (no auth required)
	r.Get("/api/health", s.handleHealth)

	// WebSocket (auth happens in-protocol after the upgrade)
	r.Get(s.wsPath(), s.handleWebSocket)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		read := s.requirePermission(auth.PermSelectionRead)
		write := s.requirePermission(auth.PermSelectionWrite)

		r.Route("/api/"+integration.Domain, func(r chi.Router) {
			r.With(read).Get("/entities", s.handleGetEntities)
			r.With(write).Post("/entities", s.handleSetEntities)
			r.With(read).Get("/info", s.handleInfo)
			r.With(write).Post("/clear", s.handleClear)
		})

		r.Route("/api/states", func(r chi.Router) {
			r.Use(s.requirePermission(auth.PermStateRead))
			r.Get("/", s.handleListStates)
			r.Get("/{entity_id}", s.handleGetState)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermStateWrite))
				r.Post("/{entity_id}", s.handleSetState)
				r.Delete("/{entity_id}", s.handleDeleteState)
			})
		})

		r.Route("/api/registry", func(r chi.Router) {
			r.With(s.requirePermission(auth.PermStateRead)).Get("/entities", s.handleListRegistryEntities)
			r.With(s.requirePermission(auth.PermStateRead)).Get("/areas", s.handleListAreas)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermRegistryManage))
				r.Get("/entities/{entity_id}", s.handleGetRegistryEntity)
				r.Put("/entities/{entity_id}", s.handlePutRegistryEntity)
				r.Delete("/entities/{entity_id}", s.handleDeleteRegistryEntity)
				r.Put("/areas/{area_id}", s.handlePutArea)
				r.Delete("/areas/{area_id}", s.handleDeleteArea)
			})
		})

		r.Route("/api/services", func(r chi.Router) {
			r.With(s.requirePermission(auth.PermStateRead)).Get("/", s.handleListServices)
			r.With(s.requirePermission(auth.PermServiceCall)).Post("/{domain}/{service}", s.handleCallService)
		})

		r.Route("/api/config", func(r chi.Router) {
			r.Use(s.requirePermission(auth.PermConfigManage))
			r.Post("/flows", s.handleStartFlow)
			r.Post("/flows/{flow_id}", s.handleSubmitFlow)
			r.Delete("/flows/{flow_id}", s.handleAbortFlow)
			r.Get("/entries", s.handleListEntries)
			r.Delete("/entries/{entry_id}", s.handleDeleteEntry)
		})
	})

	return r
}

// wsPath returns the configured WebSocket path.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/api/websocket"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"configured": s.integration.Configured(),
		"entries":    s.integration.Len(),
		"clients":       s.hub.ClientCount(),
		"subscriptions": s.integration.Bridge().Active(),
	})
}
