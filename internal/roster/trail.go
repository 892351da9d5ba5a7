package roster

import (
	"context"

	"github.com/wesmun/nfc-core/internal/access"
	"github.com/wesmun/nfc-core/internal/audit"
	"github.com/wesmun/nfc-core/internal/auth"
)

// ListAudit returns a page of the audit trail.
func (s *Service) ListAudit(ctx context.Context, actor *access.Principal, f audit.Filter) (*audit.ListResult, error) {
	if err := actor.Require(auth.PermViewAuditLogs); err != nil {
		return nil, err
	}
	return s.auditLogs.List(ctx, f)
}

// DeleteAudit removes one audit entry. Only the emergency admin may prune
// the trail, and the pruning itself is audited.
func (s *Service) DeleteAudit(ctx context.Context, actor *access.Principal, id int64, origin audit.Origin) error {
	if err := actor.RequireEmergency(); err != nil {
		return err
	}
	if err := s.auditLogs.Delete(ctx, id); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID: actor.ID(),
		Action:  audit.ActionAuditDelete,
		Details: map[string]any{"deleted_log_id": id},
		Origin:  origin,
	})
	return nil
}

// BulkDeleteAudit removes the listed entries and returns how many existed.
func (s *Service) BulkDeleteAudit(ctx context.Context, actor *access.Principal, ids []int64, origin audit.Origin) (int64, error) {
	if err := actor.RequireEmergency(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrNoTargets
	}

	n, err := s.auditLogs.DeleteMany(ctx, ids)
	if err != nil {
		return 0, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID: actor.ID(),
		Action:  audit.ActionAuditBulkDelete,
		Details: map[string]any{"deleted_log_ids": ids, "deleted": n},
		Origin:  origin,
	})
	return n, nil
}
