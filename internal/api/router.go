package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
// The route surface is flat, matching what device simulators and the UI
// already call.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Liveness and dependency status (no auth required)
	r.Get("/ping", s.handlePing)
	r.Get("/status", s.handleStatus)

	// Account endpoints (no auth required)
	r.Post("/signup", s.handleSignup)
	r.Post("/login", s.handleLogin)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/devices", s.handleListDevices)
		r.Route("/device/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDevice)
			r.Post("/", s.handleUpdateDevice)
		})

		r.Get("/audit", s.handleListAudit)

		// WS ticket requires authentication - user must be logged in to request a ticket
		r.Post("/auth/ws-ticket", s.handleWSTicket)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
