package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wesmun/nfc-core/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type validateRequest struct {
	Token string `json:"token"`
}

// meResponse describes the current principal.
type meResponse struct {
	User         *auth.User        `json:"user"`
	Capabilities auth.Capabilities `json:"capabilities"`
	Emergency    bool              `json:"emergency"`
}

// ticketLedger remembers spent ticket ids until the ticket would have
// expired anyway, so each ticket opens at most one connection.
type ticketLedger struct {
	mu    sync.Mutex
	spent map[string]time.Time
}

func newTicketLedger() *ticketLedger {
	return &ticketLedger{spent: make(map[string]time.Time)}
}

// consume marks jti as spent. It returns false if it was already spent.
func (l *ticketLedger) consume(jti string, expiresAt time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.spent[jti]; ok {
		return false
	}
	l.spent[jti] = expiresAt
	return true
}

// clean drops entries whose ticket has expired.
func (l *ticketLedger) clean(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for jti, exp := range l.spent {
		if now.After(exp) {
			delete(l.spent, jti)
		}
	}
}

// cleanLoop runs clean periodically until the context is cancelled.
func (l *ticketLedger) cleanLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = auth.DefaultTicketTTL
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.clean(now)
		}
	}
}

func (s *Server) cookieName() string {
	if s.authCfg.Cookie.Name == "" {
		return "session_token"
	}
	return s.authCfg.Cookie.Name
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.auth.Sessions().TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.authCfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.authCfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleRegister creates a pending account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		writeBadRequest(w, "email, password and name are required")
		return
	}

	user, err := s.auth.Register(r.Context(), req.Email, req.Password, strings.TrimSpace(req.Name))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    user,
		"message": "registration received; an administrator must approve the account",
	})
}

// handleLogin authenticates the caller and sets the session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	res, err := s.auth.Login(r.Context(), req.Email, req.Password, originOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.setSessionCookie(w, res.Token)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      res.User,
		"emergency": res.Emergency,
	})
}

// handleLogout deletes the session and clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.cookieName()); err == nil {
		if err := s.auth.Logout(r.Context(), cookie.Value); err != nil {
			s.logger.Warn("session delete failed", "error", err)
		}
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleValidate resolves an explicit token for collaborating services.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.gate.Authenticate(r.Context(), req.Token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": p.User})
}

// handleMe returns the current principal and its capabilities.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	writeJSON(w, http.StatusOK, meResponse{
		User:         p.User,
		Capabilities: p.Capabilities,
		Emergency:    p.IsEmergency(),
	})
}

// handleWSTicket exchanges the session for a single-use live feed ticket.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if err := p.Require(auth.PermViewAllUsers); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	ttl := s.authCfg.TicketTTL()
	ticket, claims, err := auth.IssueTicket(p.User, s.authCfg.Ticket.Secret, ttl)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(claims.ExpiresAt.Sub(claims.IssuedAt.Time).Seconds()),
	})
}
