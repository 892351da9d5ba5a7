package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is an attendee. It can only see its own profile.
	RoleUser Role = "user"

	// RoleSecurity staffs the scan stations: bag check and attendance.
	RoleSecurity Role = "security"

	// RoleOverseer has read-only access to the roster and the audit trail.
	RoleOverseer Role = "overseer"

	// RoleAdmin has full control: approvals, roles, profiles, exports.
	RoleAdmin Role = "admin"
)

// ValidRoles is the closed set of roles.
var ValidRoles = []Role{RoleUser, RoleSecurity, RoleOverseer, RoleAdmin}

// Valid reports whether r is one of ValidRoles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSecurity, RoleOverseer, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a string to a Role, rejecting anything outside ValidRoles.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// ApprovalStatus gates whether an account may authenticate.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
)

// User represents an account. Data-only users carry an empty PasswordHash
// and can never log in.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Name             string         `json:"name"`
	Image            string         `json:"image,omitempty"`
	Role             Role           `json:"role"`
	ApprovalStatus   ApprovalStatus `json:"approval_status"`
	PasswordHash     string         `json:"-"` // never serialised
	IsEmergencyAdmin bool           `json:"is_emergency_admin,omitempty"`
	ApprovedBy       string         `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time     `json:"approved_at,omitempty"`
	CreatedBy        string         `json:"created_by,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsEmergencyAdmin is the single check for the break-glass identity.
// Every bypass and protection rule goes through it.
func IsEmergencyAdmin(u *User) bool {
	return u != nil && u.IsEmergencyAdmin
}

// InDomain reports whether email belongs to domain, case-insensitively.
func InDomain(email, domain string) bool {
	if domain == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), "@"+strings.ToLower(domain))
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidDomain      = errors.New("email domain not allowed")
	ErrInvalidRole        = errors.New("invalid role")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("user already exists")
	ErrPendingApproval    = errors.New("account is pending approval")
	ErrRateLimited        = errors.New("too many login attempts")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrSelfModification   = errors.New("cannot modify own account in this way")
)
