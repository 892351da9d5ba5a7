package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wesmun/nfc-core/internal/attendee"
)

type issueLinkRequest struct {
	UserID string `json:"userId"`
}

// handleIssueLink creates the NFC link for an approved user.
func (s *Server) handleIssueLink(w http.ResponseWriter, r *http.Request) {
	var req issueLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	link, err := s.roster.IssueLink(r.Context(), principal(r), req.UserID, originOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// handleScan looks up the owner of a scanned link.
//
// Anonymous callers get 204 so a public tag never reveals who owns it.
// A user id with a link is answered with 307 and the correct uuid.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	id := chi.URLParam(r, "uuid")
	res, err := s.roster.Scan(r.Context(), p, id, originOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if res.RedirectUUID != "" {
		writeJSON(w, http.StatusTemporaryRedirect, map[string]any{
			"redirect":    "/nfc/" + res.RedirectUUID,
			"correctUuid": res.RedirectUUID,
			"message":     "this is a user id; redirecting to the NFC link",
		})
		return
	}

	a := res.Attendee
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     a.User,
		"profile":  a.Profile,
		"nfc_link": a.NfcLink,
	})
}

// handleScanUpdate applies a scan-station profile update.
func (s *Server) handleScanUpdate(w http.ResponseWriter, r *http.Request) {
	var req attendee.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "uuid")
	if err := s.roster.UpdateByScan(r.Context(), principal(r), id, req, originOf(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updates": req})
}
