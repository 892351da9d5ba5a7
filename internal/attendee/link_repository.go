package attendee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wesmun/nfc-core/internal/infrastructure/database"
)

// LinkRepository persists NFC links.
type LinkRepository struct {
	db  database.Querier
	now func() time.Time
}

// NewLinkRepository creates a link repository over db.
func NewLinkRepository(db database.Querier) *LinkRepository {
	return &LinkRepository{db: db, now: time.Now}
}

const linkColumns = `id, user_id, uuid, scan_count, last_scanned_at, created_by, created_at`

// Create issues a new link for userID. It returns ErrLinkExists when the
// user already has one and ErrUserNotFound when the user does not exist.
func (r *LinkRepository) Create(ctx context.Context, userID, createdBy string) (*NfcLink, error) {
	link := &NfcLink{
		ID:        uuid.NewString(),
		UserID:    userID,
		UUID:      uuid.NewString(),
		CreatedBy: createdBy,
		CreatedAt: r.now().UTC(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO nfc_links (id, user_id, uuid, scan_count, created_by, created_at)
		 VALUES (?, ?, ?, 0, (SELECT id FROM users WHERE id = ?), ?)`,
		link.ID, link.UserID, link.UUID, createdBy, database.FormatTime(link.CreatedAt),
	)
	switch {
	case database.IsUniqueViolation(err):
		return nil, ErrLinkExists
	case database.IsForeignKeyViolation(err):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("creating NFC link: %w", err)
	}
	return link, nil
}

// GetByUUID returns the link with the given scan uuid.
func (r *LinkRepository) GetByUUID(ctx context.Context, id string) (*NfcLink, error) {
	return r.get(ctx, "SELECT "+linkColumns+" FROM nfc_links WHERE uuid = ?", id)
}

// GetByUserID returns the link owned by userID.
func (r *LinkRepository) GetByUserID(ctx context.Context, userID string) (*NfcLink, error) {
	return r.get(ctx, "SELECT "+linkColumns+" FROM nfc_links WHERE user_id = ?", userID)
}

// RecordScan increments the scan counter and stamps last_scanned_at in
// one statement, returning the updated link.
func (r *LinkRepository) RecordScan(ctx context.Context, id string) (*NfcLink, error) {
	return r.get(ctx,
		`UPDATE nfc_links
		 SET scan_count = scan_count + 1, last_scanned_at = ?
		 WHERE uuid = ?
		 RETURNING `+linkColumns,
		database.FormatTime(r.now()), id,
	)
}

func (r *LinkRepository) get(ctx context.Context, query string, args ...any) (*NfcLink, error) {
	link, err := scanLink(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting NFC link: %w", err)
	}
	return link, nil
}

func scanLink(s rowScanner) (*NfcLink, error) {
	var l NfcLink
	var lastScanned, createdBy sql.NullString
	var createdAt string

	if err := s.Scan(&l.ID, &l.UserID, &l.UUID, &l.ScanCount, &lastScanned, &createdBy, &createdAt); err != nil {
		return nil, err
	}
	if lastScanned.Valid {
		t := database.ParseTime(lastScanned.String)
		l.LastScannedAt = &t
	}
	l.CreatedBy = createdBy.String
	l.CreatedAt = database.ParseTime(createdAt)
	return &l, nil
}
