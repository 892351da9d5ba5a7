package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wesmun/nfc-core/internal/access"
	"github.com/wesmun/nfc-core/internal/attendee"
	"github.com/wesmun/nfc-core/internal/audit"
	"github.com/wesmun/nfc-core/internal/auth"
	"github.com/wesmun/nfc-core/internal/infrastructure/database"
	"github.com/wesmun/nfc-core/internal/roster"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeNotImplemented = "not_implemented"
	ErrCodeInternal       = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// statusFor classifies a service error. ok is false for unexpected errors.
func statusFor(err error) (status int, code string, ok bool) {
	switch {
	case errors.Is(err, access.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrCodeUnauthorized, true

	case errors.Is(err, auth.ErrRateLimited):
		return http.StatusTooManyRequests, ErrCodeRateLimited, true

	case errors.Is(err, access.ErrForbidden),
		errors.Is(err, auth.ErrPendingApproval):
		return http.StatusForbidden, ErrCodeForbidden, true

	case errors.Is(err, auth.ErrEmailExists),
		errors.Is(err, attendee.ErrLinkExists):
		return http.StatusConflict, ErrCodeConflict, true

	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, attendee.ErrUserNotFound),
		errors.Is(err, attendee.ErrLinkNotFound),
		errors.Is(err, attendee.ErrProfileNotFound),
		errors.Is(err, audit.ErrNotFound),
		errors.Is(err, roster.ErrNotApproved),
		errors.Is(err, roster.ErrNotPending):
		return http.StatusNotFound, ErrCodeNotFound, true

	case errors.Is(err, auth.ErrInvalidDomain),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, auth.ErrSelfModification),
		errors.Is(err, attendee.ErrInvalidDiet),
		errors.Is(err, attendee.ErrAllergensTooLong),
		errors.Is(err, attendee.ErrNoFields),
		errors.Is(err, roster.ErrNoTargets),
		errors.Is(err, roster.ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeBadRequest, true
	}
	return http.StatusInternalServerError, ErrCodeInternal, false
}

// writeServiceError maps err onto the error taxonomy. Unexpected errors are
// logged with their store code and answered with a generic message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, ok := statusFor(err)
	if !ok {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", database.ErrorCode(err),
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
