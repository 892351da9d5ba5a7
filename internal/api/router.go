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
	r.Use(s.sessionMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no session required)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.Post("/auth/validate", s.handleValidate)

		// Scans answer anonymous callers themselves.
		r.Get("/nfc/{uuid}", s.handleScan)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/metrics", s.handleMetrics)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/pending-users", s.handleListPending)
				r.Post("/approve-user", s.handleApproveUser)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.handleListUsers)
				r.Get("/me", s.handleGetOwnProfile)
				r.Patch("/me", s.handleUpdateOwnProfile)
				r.Post("/bulk-delete", s.handleBulkDelete)
				r.Patch("/bulk-update", s.handleBulkUpdate)
				r.Post("/create-data-only", s.handleCreateDataOnly)
				r.Post("/create-data-only/bulk", s.handleBulkCreateDataOnly)
				r.Get("/export", s.handleExport)
				r.Post("/export", s.handleExport)

				r.Route("/{userId}", func(r chi.Router) {
					r.Patch("/", s.handleUpdateUser)
					r.Delete("/", s.handleDeleteUser)
				})
			})

			r.Post("/nfc-links", s.handleIssueLink)
			r.Patch("/nfc/{uuid}", s.handleScanUpdate)

			r.Route("/audit", func(r chi.Router) {
				r.Get("/", s.handleListAuditLogs)
				r.Post("/bulk-delete", s.handleBulkDeleteAuditLogs)
				r.Delete("/{id}", s.handleDeleteAuditLog)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
