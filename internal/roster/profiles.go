package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wesmun/nfc-core/internal/access"
	"github.com/wesmun/nfc-core/internal/attendee"
	"github.com/wesmun/nfc-core/internal/audit"
	"github.com/wesmun/nfc-core/internal/auth"
	"github.com/wesmun/nfc-core/internal/infrastructure/database"
)

// AdminUpdate is an admin write to a user's role and profile.
type AdminUpdate struct {
	Role    *auth.Role
	Profile attendee.ProfileUpdate
}

// BulkUpdateResult reports a bulk update.
type BulkUpdateResult struct {
	Updated int      `json:"updated"`
	Missing []string `json:"missing"`
}

// ListAttendees returns every approved user with profile and link.
func (s *Service) ListAttendees(ctx context.Context, actor *access.Principal) ([]attendee.Attendee, error) {
	if err := actor.Require(auth.PermViewAllUsers); err != nil {
		return nil, err
	}
	return s.directory.ListApproved(ctx)
}

// Own returns the caller's account with profile and link.
func (s *Service) Own(ctx context.Context, actor *access.Principal) (*attendee.Attendee, error) {
	if err := actor.Require(auth.PermViewOwnProfile); err != nil {
		return nil, err
	}
	return s.directory.Get(ctx, actor.ID())
}

// UpdateOwn applies a self-service profile update.
func (s *Service) UpdateOwn(ctx context.Context, actor *access.Principal, u attendee.ProfileUpdate, origin audit.Origin) error {
	if err := actor.Require(auth.PermUpdateOwnProfile); err != nil {
		return err
	}
	if err := u.Validate(); err != nil {
		return err
	}
	fields := u.Fields()
	if len(fields) == 0 {
		return attendee.ErrNoFields
	}
	if err := actor.RequireFields(fields); err != nil {
		return err
	}

	if err := s.applyProfile(ctx, actor.ID(), u); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID(),
		TargetUserID: actor.ID(),
		Action:       audit.ActionProfileUpdateSelf,
		Details:      map[string]any{"updates": u},
		Origin:       origin,
	})
	return nil
}

// checkAdminUpdate validates u and the caller's right to apply it.
func (s *Service) checkAdminUpdate(actor *access.Principal, u AdminUpdate) error {
	if err := actor.Require(auth.PermManageUsers); err != nil {
		return err
	}
	if u.Role != nil && !u.Role.Valid() {
		return fmt.Errorf("%w: %q", auth.ErrInvalidRole, *u.Role)
	}
	if err := u.Profile.Validate(); err != nil {
		return err
	}
	if u.Role == nil && u.Profile.Empty() {
		return attendee.ErrNoFields
	}
	return actor.RequireFields(u.Profile.Fields())
}

// checkRoleTarget enforces the role-change rules for one target.
func (s *Service) checkRoleTarget(actor *access.Principal, target *auth.User) error {
	if target.ID == actor.ID() {
		return auth.ErrSelfModification
	}
	if auth.IsEmergencyAdmin(target) {
		return ErrProtectedAccount
	}
	if !auth.InDomain(target.Email, s.cfg.AllowedDomain) {
		return &RoleDomainError{Emails: []string{target.Email}}
	}
	return nil
}

// UpdateUser changes one user's role and profile in one transaction.
func (s *Service) UpdateUser(ctx context.Context, actor *access.Principal, userID string, u AdminUpdate, origin audit.Origin) error {
	if err := s.checkAdminUpdate(actor, u); err != nil {
		return err
	}

	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role != nil {
		if err := s.checkRoleTarget(actor, target); err != nil {
			return err
		}
	}

	err = database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if u.Role != nil {
			if err := auth.NewUserRepository(tx).UpdateRole(ctx, target.ID, *u.Role); err != nil {
				return err
			}
		}
		if !u.Profile.Empty() {
			return attendee.NewProfileRepository(tx).Apply(ctx, target.ID, u.Profile)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if u.Role != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:      actor.ID(),
			TargetUserID: target.ID,
			Action:       audit.ActionRoleUpdate,
			Details:      map[string]any{"new_role": string(*u.Role), "previous_role": string(target.Role)},
			Origin:       origin,
		})
	}
	if !u.Profile.Empty() {
		s.audit.Record(ctx, audit.Entry{
			ActorID:      actor.ID(),
			TargetUserID: target.ID,
			Action:       audit.ActionProfileUpdateAdmin,
			Details:      map[string]any{"updates": u.Profile},
			Origin:       origin,
		})
	}
	return nil
}

// BulkUpdate applies u to every existing user in ids. A role change is
// refused outright if any existing target is outside the privileged domain.
func (s *Service) BulkUpdate(ctx context.Context, actor *access.Principal, ids []string, u AdminUpdate, origin audit.Origin) (*BulkUpdateResult, error) {
	if err := s.checkAdminUpdate(actor, u); err != nil {
		return nil, err
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, ErrNoTargets
	}

	found, err := s.directory.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	existing := make([]string, 0, len(found))
	missing := []string{}
	for _, id := range ids {
		if _, ok := found[id]; ok {
			existing = append(existing, id)
		} else {
			missing = append(missing, id)
		}
	}

	if u.Role != nil {
		var outside []string
		for _, id := range existing {
			target := found[id]
			if err := s.checkRoleTarget(actor, target); err != nil {
				var domainErr *RoleDomainError
				if !errors.As(err, &domainErr) {
					return nil, err
				}
				outside = append(outside, target.Email)
			}
		}
		if len(outside) > 0 {
			return nil, &RoleDomainError{Emails: outside}
		}
	}

	err = database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if u.Role != nil {
			users := auth.NewUserRepository(tx)
			for _, id := range existing {
				if err := users.UpdateRole(ctx, id, *u.Role); err != nil {
					return err
				}
			}
		}
		if !u.Profile.Empty() {
			return attendee.NewProfileRepository(tx).ApplyMany(ctx, existing, u.Profile)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"profile": u.Profile}
	if u.Role != nil {
		updates["role"] = string(*u.Role)
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID: actor.ID(),
		Action:  audit.ActionProfileUpdateAdminBulk,
		Details: map[string]any{
			"affected_users": existing,
			"missing":        missing,
			"updates":        updates,
		},
		Origin: origin,
	})

	return &BulkUpdateResult{Updated: len(existing), Missing: missing}, nil
}

// Export returns the attendee export rows matching f.
func (s *Service) Export(ctx context.Context, actor *access.Principal, f attendee.ExportFilter) ([]attendee.ExportRow, error) {
	if err := actor.Require(auth.PermViewAllUsers); err != nil {
		return nil, err
	}
	return s.directory.Export(ctx, f)
}

// ExportCounts returns the total and filtered export sizes.
func (s *Service) ExportCounts(ctx context.Context, actor *access.Principal, f attendee.ExportFilter) (total, filtered int, err error) {
	if err := actor.Require(auth.PermViewAllUsers); err != nil {
		return 0, 0, err
	}
	return s.directory.ExportCounts(ctx, f)
}
