package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wesmun/nfc-core/internal/attendee"
	"github.com/wesmun/nfc-core/internal/auth"
	"github.com/wesmun/nfc-core/internal/roster"
)

// userUpdateRequest is a role and profile patch. Profile fields are inlined.
type userUpdateRequest struct {
	Role *auth.Role `json:"role,omitempty"`
	attendee.ProfileUpdate
}

func (u userUpdateRequest) toAdminUpdate() roster.AdminUpdate {
	return roster.AdminUpdate{Role: u.Role, Profile: u.ProfileUpdate}
}

type bulkUpdateRequest struct {
	UserIDs []string          `json:"userIds"`
	Updates userUpdateRequest `json:"updates"`
}

type bulkDeleteRequest struct {
	UserIDs []string `json:"userIds"`
}

type bulkDataOnlyRequest struct {
	Users []roster.DataOnlyInput `json:"users"`
}

// writeRoleDomainError answers a refused role change with the offending
// addresses.
func writeRoleDomainError(w http.ResponseWriter, err *roster.RoleDomainError) {
	writeJSON(w, http.StatusForbidden, map[string]any{
		"status":  http.StatusForbidden,
		"code":    ErrCodeForbidden,
		"message": "role changes are only allowed for privileged-domain accounts",
		"invalid": err.Emails,
	})
}

// handleListUsers returns approved users with profile and NFC link.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.roster.ListAttendees(r.Context(), principal(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleGetOwnProfile returns the caller's account and profile.
func (s *Server) handleGetOwnProfile(w http.ResponseWriter, r *http.Request) {
	a, err := s.roster.Own(r.Context(), principal(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleUpdateOwnProfile applies a self-service profile patch.
func (s *Server) handleUpdateOwnProfile(w http.ResponseWriter, r *http.Request) {
	var req attendee.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.roster.UpdateOwn(r.Context(), principal(r), req, originOf(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.handleGetOwnProfile(w, r)
}

// handleUpdateUser changes one user's role and profile.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req userUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := chi.URLParam(r, "userId")
	err := s.roster.UpdateUser(r.Context(), principal(r), userID, req.toAdminUpdate(), originOf(r))
	var domainErr *roster.RoleDomainError
	switch {
	case errors.As(err, &domainErr):
		writeRoleDomainError(w, domainErr)
	case err != nil:
		s.writeServiceError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "userId": userID})
	}
}

// handleDeleteUser removes one account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := s.roster.Delete(r.Context(), principal(r), userID, originOf(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleBulkDelete removes several accounts, skipping protected ones.
func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.roster.BulkDelete(r.Context(), principal(r), req.UserIDs, originOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBulkUpdate applies one patch to several accounts.
func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.roster.BulkUpdate(r.Context(), principal(r), req.UserIDs, req.Updates.toAdminUpdate(), originOf(r))
	var domainErr *roster.RoleDomainError
	switch {
	case errors.As(err, &domainErr):
		writeRoleDomainError(w, domainErr)
	case err != nil:
		s.writeServiceError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// handleCreateDataOnly creates one attendee without a login.
func (s *Server) handleCreateDataOnly(w http.ResponseWriter, r *http.Request) {
	var req roster.DataOnlyInput
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.roster.CreateDataOnly(r.Context(), principal(r), req, originOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

// handleBulkCreateDataOnly creates several attendees and reports per item.
func (s *Server) handleBulkCreateDataOnly(w http.ResponseWriter, r *http.Request) {
	var req bulkDataOnlyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	results, err := s.roster.BulkCreateDataOnly(r.Context(), principal(r), req.Users, originOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	created := 0
	for _, res := range results {
		if res.Success {
			created++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"created": created,
		"failed":  len(results) - created,
	})
}

// parseExportFilter reads bags, attendance and diet from the query string.
func parseExportFilter(r *http.Request) (attendee.ExportFilter, error) {
	q := r.URL.Query()
	var f attendee.ExportFilter

	parseBool := func(key string) (*bool, error) {
		v := q.Get(key)
		if v == "" || v == "all" {
			return nil, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be true or false", roster.ErrInvalidInput, key)
		}
		return &b, nil
	}

	var err error
	if f.BagsChecked, err = parseBool("bags"); err != nil {
		return f, err
	}
	if f.Attendance, err = parseBool("attendance"); err != nil {
		return f, err
	}
	if v := q.Get("diet"); v != "" && v != "all" {
		d, err := attendee.ParseDiet(v)
		if err != nil {
			return f, err
		}
		f.Diet = &d
	}
	return f, nil
}

// handleExport streams the attendee export as CSV, or returns the counts
// when mode=count.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := parseExportFilter(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	q := r.URL.Query()
	if q.Get("mode") == "count" {
		total, filtered, err := s.roster.ExportCounts(r.Context(), principal(r), f)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"total": total, "filtered": filtered})
		return
	}

	switch format := q.Get("format"); format {
	case "", "csv":
	case "pdf":
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "pdf export is not available")
		return
	default:
		writeBadRequest(w, "unsupported export format: "+format)
		return
	}

	rows, err := s.roster.Export(r.Context(), principal(r), f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	filename := "attendees-" + time.Now().UTC().Format("2006-01-02") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if err := attendee.WriteCSV(w, rows, s.site.BaseURL); err != nil {
		s.logger.Warn("export write failed", "error", err)
	}
}
