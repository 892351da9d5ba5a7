package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wesmun/nfc-core/internal/access"
	"github.com/wesmun/nfc-core/internal/attendee"
	"github.com/wesmun/nfc-core/internal/audit"
	"github.com/wesmun/nfc-core/internal/auth"
	"github.com/wesmun/nfc-core/internal/infrastructure/database"
)

// BulkDeleteResult reports a bulk delete.
type BulkDeleteResult struct {
	Deleted   int      `json:"deleted"`
	Missing   []string `json:"missing"`
	Forbidden []string `json:"forbidden"`
}

// DataOnlyInput describes an attendee created without a login.
type DataOnlyInput struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Diet      string `json:"diet"`
	Allergens string `json:"allergens"`
}

// DataOnlyResult is the per-item outcome of a bulk data-only create.
type DataOnlyResult struct {
	Email   string     `json:"email"`
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	User    *auth.User `json:"user,omitempty"`
}

// Delete removes one account. Staff accounts, the emergency admin and the
// caller's own account cannot be deleted.
func (s *Service) Delete(ctx context.Context, actor *access.Principal, userID string, origin audit.Origin) error {
	if err := actor.Require(auth.PermManageUsers); err != nil {
		return err
	}
	if userID == actor.ID() {
		return auth.ErrSelfModification
	}

	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if protected(target) {
		return ErrProtectedAccount
	}

	if err := s.users.Delete(ctx, target.ID); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:        actor.ID(),
		TargetUserID:   target.ID,
		Action:         audit.ActionUserDelete,
		Details:        map[string]any{"user_id": target.ID, "bulk": false},
		Origin:         origin,
		TargetSnapshot: snapshot(target),
	})
	s.logger.Info("user deleted", "user_id", target.ID, "actor_id", actor.ID())
	return nil
}

// BulkDelete removes every deletable account in ids. Protected accounts and
// the caller are reported as forbidden; unknown ids as missing.
func (s *Service) BulkDelete(ctx context.Context, actor *access.Principal, ids []string, origin audit.Origin) (*BulkDeleteResult, error) {
	if err := actor.Require(auth.PermManageUsers); err != nil {
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

	res := &BulkDeleteResult{Missing: []string{}, Forbidden: []string{}}
	var targets []*auth.User
	for _, id := range ids {
		u, ok := found[id]
		switch {
		case !ok:
			res.Missing = append(res.Missing, id)
		case id == actor.ID() || protected(u):
			res.Forbidden = append(res.Forbidden, id)
		default:
			targets = append(targets, u)
		}
	}

	err = database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		users := auth.NewUserRepository(tx)
		for _, u := range targets {
			if err := users.Delete(ctx, u.ID); err != nil {
				return fmt.Errorf("deleting %s: %w", u.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Deleted = len(targets)

	for _, u := range targets {
		s.audit.Record(ctx, audit.Entry{
			ActorID:        actor.ID(),
			TargetUserID:   u.ID,
			Action:         audit.ActionUserDelete,
			Details:        map[string]any{"user_id": u.ID, "bulk": true},
			Origin:         origin,
			TargetSnapshot: snapshot(u),
		})
	}
	return res, nil
}

// CreateDataOnly registers an approved attendee that has no password and
// so can never log in. The account and its profile are created together.
func (s *Service) CreateDataOnly(ctx context.Context, actor *access.Principal, in DataOnlyInput, origin audit.Origin) (*auth.User, error) {
	if err := actor.RequireRegistrar(); err != nil {
		return nil, err
	}

	email := auth.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" {
		return nil, fmt.Errorf("%w: email and name are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	diet, err := attendee.ParseDiet(in.Diet)
	if err != nil {
		return nil, err
	}
	if err := attendee.ValidateAllergens(in.Allergens); err != nil {
		return nil, err
	}
	if s.cfg.EmergencyEmail != "" && email == s.cfg.EmergencyEmail {
		return nil, auth.ErrEmailExists
	}

	user := &auth.User{
		Email:          email,
		Name:           name,
		Role:           auth.RoleUser,
		ApprovalStatus: auth.StatusApproved,
		CreatedBy:      actor.ID(),
	}
	err = database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := auth.NewUserRepository(tx).Create(ctx, user); err != nil {
			return err
		}
		return attendee.NewProfileRepository(tx).Create(ctx, user.ID, diet, in.Allergens)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID(),
		TargetUserID: user.ID,
		Action:       audit.ActionDataOnlyUserCreate,
		Details:      map[string]any{"email": user.Email, "name": user.Name, "diet": string(diet)},
		Origin:       origin,
	})
	return user, nil
}

// BulkCreateDataOnly creates each input independently and reports the
// outcome per item.
func (s *Service) BulkCreateDataOnly(ctx context.Context, actor *access.Principal, in []DataOnlyInput, origin audit.Origin) ([]DataOnlyResult, error) {
	if err := actor.RequireRegistrar(); err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: users must be a non-empty array", ErrInvalidInput)
	}

	results := make([]DataOnlyResult, 0, len(in))
	for _, item := range in {
		r := DataOnlyResult{Email: auth.NormalizeEmail(item.Email)}
		user, err := s.CreateDataOnly(ctx, actor, item, origin)
		switch {
		case err == nil:
			r.Success = true
			r.User = user
		case errors.Is(err, auth.ErrEmailExists):
			r.Message = "user already exists"
		default:
			r.Message = err.Error()
		}
		results = append(results, r)
	}
	return results, nil
}
