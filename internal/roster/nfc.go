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

// ScanResult is the outcome of a scan. When the scanned value was a user
// id rather than a link uuid, RedirectUUID carries the correct uuid and
// Attendee is nil.
type ScanResult struct {
	Attendee     *attendee.Attendee
	RedirectUUID string
}

// IssueLink creates the NFC link for an approved user. A second link for
// the same user is rejected with attendee.ErrLinkExists.
func (s *Service) IssueLink(ctx context.Context, actor *access.Principal, userID string, origin audit.Origin) (*attendee.NfcLink, error) {
	if err := actor.RequireRegistrar(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}

	target, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, ErrNotApproved
	}
	if err != nil {
		return nil, err
	}
	if target.ApprovalStatus != auth.StatusApproved {
		return nil, ErrNotApproved
	}

	link, err := s.links.Create(ctx, target.ID, actor.ID())
	if errors.Is(err, attendee.ErrUserNotFound) {
		return nil, ErrNotApproved
	}
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID(),
		TargetUserID: target.ID,
		Action:       audit.ActionNfcLinkCreate,
		Details:      map[string]any{"uuid": link.UUID},
		Origin:       origin,
	})
	return link, nil
}

// Scan looks up the owner of a link uuid, counts the scan and audits it.
// Callers answer an unauthenticated scan with an empty response before
// calling Scan.
func (s *Service) Scan(ctx context.Context, actor *access.Principal, id string, origin audit.Origin) (*ScanResult, error) {
	if err := actor.Require(auth.PermViewAllUsers); err != nil {
		return nil, err
	}

	a, err := s.directory.LookupByUUID(ctx, id)
	if errors.Is(err, attendee.ErrLinkNotFound) {
		correct, lerr := s.directory.LinkUUIDForUser(ctx, id)
		if lerr == nil {
			return &ScanResult{RedirectUUID: correct}, nil
		}
		if !errors.Is(lerr, attendee.ErrLinkNotFound) {
			return nil, lerr
		}
		return nil, attendee.ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}

	link, err := s.links.RecordScan(ctx, id)
	if err != nil {
		return nil, err
	}
	a.NfcLink = link

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID(),
		TargetUserID: a.ID,
		Action:       audit.ActionNfcScan,
		Details:      map[string]any{"uuid": id, "scan_count": link.ScanCount},
		Origin:       origin,
	})
	s.publish(EventScanRecorded, map[string]any{
		"uuid":       id,
		"user_id":    a.ID,
		"name":       a.Name,
		"scan_count": link.ScanCount,
		"actor_id":   actor.ID(),
	})
	return &ScanResult{Attendee: a}, nil
}

// UpdateByScan applies a scan-station profile update to the owner of the
// link uuid. Every touched field must be allowed for the caller or nothing
// is written.
func (s *Service) UpdateByScan(ctx context.Context, actor *access.Principal, id string, u attendee.ProfileUpdate, origin audit.Origin) error {
	if actor == nil {
		return access.ErrUnauthenticated
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

	a, err := s.directory.LookupByUUID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.applyProfile(ctx, a.ID, u); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID(),
		TargetUserID: a.ID,
		Action:       audit.ActionProfileUpdate,
		Details:      map[string]any{"updates": u, "uuid": id},
		Origin:       origin,
	})
	s.publish(EventScanProfileUpdated, map[string]any{
		"uuid":     id,
		"user_id":  a.ID,
		"updates":  u,
		"actor_id": actor.ID(),
	})
	return nil
}

// applyProfile creates and updates the profile atomically.
func (s *Service) applyProfile(ctx context.Context, userID string, u attendee.ProfileUpdate) error {
	return database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		return attendee.NewProfileRepository(tx).Apply(ctx, userID, u)
	})
}
