// Package api implements the HTTP REST API and WebSocket live feed for the
// WESMUN attendee access core.
//
// This package provides:
//   - Session-cookie authentication (register, login, logout, validate, me)
//   - Roster endpoints: approval, profiles, bulk edits, data-only users, export
//   - NFC endpoints: link issuance, scan lookup and scan-station updates
//   - Audit trail listing and emergency-only pruning
//   - A WebSocket hub fed by the event bus, authenticated with single-use tickets
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, session)
//
// # Error Responses
//
// Every failure is a JSON body {status, code, message}. Service errors are
// mapped onto 400/401/403/404/409/500; unexpected errors are logged with
// their detail and answered with a generic message.
//
// # Security
//
// The session token travels only in an HttpOnly, SameSite=Lax cookie. The
// live feed cannot rely on the cookie, so an authenticated caller exchanges
// it for a short-lived signed ticket that can be used once.
package api
