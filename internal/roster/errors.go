package roster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wesmun/nfc-core/internal/access"
)

var (
	// ErrNotApproved is returned when an operation needs an approved target.
	ErrNotApproved = errors.New("user not found or not approved")

	// ErrNotPending is returned when approving or rejecting a settled account.
	ErrNotPending = errors.New("user not found or not pending")

	// ErrProtectedAccount is returned when deleting or re-roling an account
	// that is staff or the emergency admin.
	ErrProtectedAccount = fmt.Errorf("%w: protected account", access.ErrForbidden)

	// ErrNoTargets is returned when a bulk request names no users.
	ErrNoTargets = errors.New("userIds must be a non-empty array")

	// ErrInvalidInput is returned for missing required fields.
	ErrInvalidInput = errors.New("invalid input")
)

// RoleDomainError is returned when a role change targets accounts outside
// the privileged domain.
type RoleDomainError struct {
	Emails []string
}

func (e *RoleDomainError) Error() string {
	return "role changes only allowed for privileged-domain accounts: " + strings.Join(e.Emails, ", ")
}

// Unwrap makes the error match access.ErrForbidden.
func (e *RoleDomainError) Unwrap() error {
	return access.ErrForbidden
}
