package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/wesmun/nfc-core/internal/access"
	"github.com/wesmun/nfc-core/internal/audit"
	"github.com/wesmun/nfc-core/internal/auth"
)

// ListPending returns accounts awaiting approval, newest first.
func (s *Service) ListPending(ctx context.Context, actor *access.Principal) ([]auth.User, error) {
	if err := actor.Require(auth.PermApproveUsers); err != nil {
		return nil, err
	}
	return s.users.ListPending(ctx)
}

// Decide approves or rejects a pending account. Rejection deletes the
// account after the audit entry is written.
func (s *Service) Decide(ctx context.Context, actor *access.Principal, userID string, approved bool, origin audit.Origin) error {
	if err := actor.Require(auth.PermApproveUsers); err != nil {
		return err
	}

	target, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return ErrNotPending
	}
	if err != nil {
		return err
	}
	if target.ApprovalStatus != auth.StatusPending {
		return ErrNotPending
	}

	if approved {
		return s.approve(ctx, actor, target, origin)
	}
	return s.reject(ctx, actor, target, origin)
}

func (s *Service) approve(ctx context.Context, actor *access.Principal, target *auth.User, origin audit.Origin) error {
	err := s.users.Approve(ctx, target.ID, actor.ID())
	if errors.Is(err, auth.ErrUserNotFound) {
		return ErrNotPending
	}
	if err != nil {
		return fmt.Errorf("approving user: %w", err)
	}

	if err := s.profiles.EnsureProfile(ctx, target.ID); err != nil {
		s.logger.Error("profile creation on approval failed", "user_id", target.ID, "error", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID(),
		TargetUserID: target.ID,
		Action:       audit.ActionUserApproved,
		Details:      map[string]any{"status": string(auth.StatusApproved)},
		Origin:       origin,
	})
	s.logger.Info("user approved", "user_id", target.ID, "actor_id", actor.ID())
	return nil
}

func (s *Service) reject(ctx context.Context, actor *access.Principal, target *auth.User, origin audit.Origin) error {
	s.audit.Record(ctx, audit.Entry{
		ActorID:        actor.ID(),
		TargetUserID:   target.ID,
		Action:         audit.ActionUserRejected,
		Details:        map[string]any{"status": "rejected"},
		Origin:         origin,
		TargetSnapshot: snapshot(target),
	})

	if err := s.users.Delete(ctx, target.ID); err != nil && !errors.Is(err, auth.ErrUserNotFound) {
		return fmt.Errorf("deleting rejected user: %w", err)
	}
	s.logger.Info("user rejected", "user_id", target.ID, "actor_id", actor.ID())
	return nil
}
