package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wesmun/nfc-core/internal/audit"
)

type bulkDeleteAuditRequest struct {
	LogIDs []int64 `json:"logIds"`
}

// handleListAuditLogs returns a page of the audit trail.
//
// Query parameters:
//   - action: exact action match
//   - search: case-insensitive substring over names, emails, action and IP
//   - limit: max results (default 100, max 500)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action: q.Get("action"),
		Search: q.Get("search"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.roster.ListAudit(r.Context(), principal(r), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDeleteAuditLog removes one entry. Emergency admin only.
func (s *Server) handleDeleteAuditLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid audit log id")
		return
	}
	if err := s.roster.DeleteAudit(r.Context(), principal(r), id, originOf(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleBulkDeleteAuditLogs removes the listed entries. Emergency admin only.
func (s *Server) handleBulkDeleteAuditLogs(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteAuditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := s.roster.BulkDeleteAudit(r.Context(), principal(r), req.LogIDs, originOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n, "logIds": req.LogIDs})
}
