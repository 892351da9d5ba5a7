package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTicketTTL is the lifetime of a WebSocket ticket.
const DefaultTicketTTL = 60 * time.Second

// TicketClaims is the payload of a WebSocket ticket. The session cookie is
// not available to every WebSocket client, so an authenticated caller
// exchanges it for a short-lived signed ticket passed as a query parameter.
type TicketClaims struct {
	jwt.RegisteredClaims
	Role      Role `json:"role"`
	Emergency bool `json:"emg,omitempty"`
}

// IssueTicket signs a ticket for user. The jti is unique per ticket so the
// server can enforce single use.
func IssueTicket(user *User, secret string, ttl time.Duration) (string, *TicketClaims, error) {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}

	now := time.Now()
	claims := &TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role:      user.Role,
		Emergency: IsEmergencyAdmin(user),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("signing ticket: %w", err)
	}
	return signed, claims, nil
}

// ParseTicket validates a ticket's signature, expiry and required fields.
func ParseTicket(ticket, secret string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(ticket, &TicketClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing ticket id", ErrTokenInvalid)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: invalid role", ErrTokenInvalid)
	}
	return claims, nil
}

// Capabilities resolves the permission record carried by the ticket.
func (c *TicketClaims) Capabilities() Capabilities {
	if c.Emergency {
		return EmergencyCapabilities()
	}
	return CapabilitiesFor(c.Role)
}
