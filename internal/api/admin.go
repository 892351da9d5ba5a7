package api

import (
	"net/http"
)

type approveRequest struct {
	UserID   string `json:"userId"`
	Approved *bool  `json:"approved"`
}

// handleListPending returns accounts awaiting approval, newest first.
func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	users, err := s.roster.ListPending(r.Context(), principal(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleApproveUser approves or rejects a pending account.
func (s *Server) handleApproveUser(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Approved == nil {
		writeBadRequest(w, "userId and approved are required")
		return
	}

	if err := s.roster.Decide(r.Context(), principal(r), req.UserID, *req.Approved, originOf(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status := "approved"
	if !*req.Approved {
		status = "rejected"
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": status})
}
