// Package access resolves a session token to a Principal and checks its
// capabilities. Every handler that reads or mutates attendee data goes
// through a Gate.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/wesmun/nfc-core/internal/auth"
)

var (
	// ErrUnauthenticated is returned when no valid session is presented.
	ErrUnauthenticated = errors.New("unauthorised")

	// ErrForbidden is returned when the principal lacks a capability.
	ErrForbidden = auth.ErrForbidden
)

// SessionValidator resolves raw session tokens. It returns (nil, nil) for
// unknown or expired tokens.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*auth.User, error)
}

// Principal is an authenticated caller with its resolved capabilities.
type Principal struct {
	User         *auth.User
	Capabilities auth.Capabilities
}

// NewPrincipal resolves the capabilities for u. The emergency admin gets
// every capability regardless of role.
func NewPrincipal(u *auth.User) *Principal {
	caps := auth.CapabilitiesFor(u.Role)
	if auth.IsEmergencyAdmin(u) {
		caps = auth.EmergencyCapabilities()
	}
	return &Principal{User: u, Capabilities: caps}
}

// ID returns the user id of the principal.
func (p *Principal) ID() string {
	return p.User.ID
}

// Can reports whether the principal holds perm.
func (p *Principal) Can(perm auth.Permission) bool {
	return p != nil && p.Capabilities.Has(perm)
}

// CanUpdateField reports whether the principal may write field.
func (p *Principal) CanUpdateField(field auth.Field) bool {
	return p != nil && p.Capabilities.CanUpdateField(field)
}

// IsEmergency reports whether the principal is the emergency admin.
func (p *Principal) IsEmergency() bool {
	return p != nil && auth.IsEmergencyAdmin(p.User)
}

// Require returns ErrUnauthenticated for a nil principal and ErrForbidden
// when perm is missing.
func (p *Principal) Require(perm auth.Permission) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if !p.Can(perm) {
		return fmt.Errorf("%w: %s", ErrForbidden, perm)
	}
	return nil
}

// RequireEmergency restricts an operation to the emergency admin.
func (p *Principal) RequireEmergency() error {
	if p == nil {
		return ErrUnauthenticated
	}
	if !p.IsEmergency() {
		return fmt.Errorf("%w: emergency admin only", ErrForbidden)
	}
	return nil
}

// RequireRegistrar allows callers that may issue NFC links and create
// data-only users.
func (p *Principal) RequireRegistrar() error {
	if p == nil {
		return ErrUnauthenticated
	}
	if !p.Capabilities.CanRegisterAttendees() {
		return fmt.Errorf("%w: cannot register attendees", ErrForbidden)
	}
	return nil
}

// RequireFields checks every touched field. One missing permission rejects
// the whole set.
func (p *Principal) RequireFields(fields []auth.Field) error {
	if p == nil {
		return ErrUnauthenticated
	}
	for _, f := range fields {
		if !p.CanUpdateField(f) {
			return fmt.Errorf("%w: cannot update %s", ErrForbidden, f)
		}
	}
	return nil
}

// Gate authenticates session tokens.
type Gate struct {
	sessions SessionValidator
}

// NewGate creates a gate over the session validator.
func NewGate(sessions SessionValidator) *Gate {
	return &Gate{sessions: sessions}
}

// Authenticate resolves token to a principal. It returns ErrUnauthenticated
// for missing, unknown or expired sessions.
func (g *Gate) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	u, err := g.sessions.Validate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("validating session: %w", err)
	}
	if u == nil {
		return nil, ErrUnauthenticated
	}
	return NewPrincipal(u), nil
}

// Authorize authenticates token and requires perm.
func (g *Gate) Authorize(ctx context.Context, token string, perm auth.Permission) (*Principal, error) {
	p, err := g.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := p.Require(perm); err != nil {
		return nil, err
	}
	return p, nil
}

type contextKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal) //nolint:errcheck // type assertion
	return p
}
