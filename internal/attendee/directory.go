package attendee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wesmun/nfc-core/internal/auth"
	"github.com/wesmun/nfc-core/internal/infrastructure/database"
)

// Directory answers read queries that join users with their profile and
// NFC link.
type Directory struct {
	db database.Querier
}

// NewDirectory creates a directory over db.
func NewDirectory(db database.Querier) *Directory {
	return &Directory{db: db}
}

const attendeeJoin = `
	FROM users u
	LEFT JOIN profiles p ON p.user_id = u.id
	LEFT JOIN nfc_links n ON n.user_id = u.id`

func attendeeSelect() string {
	return "SELECT " + auth.UserColumns("u") + `,
		p.user_id, p.bags_checked, p.attendance, p.received_food, p.diet, p.allergens, p.created_at, p.updated_at,
		n.id, n.uuid, n.scan_count, n.last_scanned_at, n.created_by, n.created_at` + attendeeJoin
}

// ListApproved returns every approved user, newest first.
func (d *Directory) ListApproved(ctx context.Context) ([]Attendee, error) {
	rows, err := d.db.QueryContext(ctx,
		attendeeSelect()+` WHERE u.approval_status = 'approved' ORDER BY u.created_at DESC, u.id`)
	if err != nil {
		return nil, fmt.Errorf("listing attendees: %w", err)
	}
	defer rows.Close()

	out := []Attendee{}
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attendees: %w", err)
	}
	return out, nil
}

// Get returns one user with profile and link regardless of approval.
func (d *Directory) Get(ctx context.Context, userID string) (*Attendee, error) {
	a, err := scanAttendee(d.db.QueryRowContext(ctx, attendeeSelect()+` WHERE u.id = ?`, userID))
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return a, err
}

// LookupByUUID returns the approved owner of the link uuid.
func (d *Directory) LookupByUUID(ctx context.Context, id string) (*Attendee, error) {
	a, err := scanAttendee(d.db.QueryRowContext(ctx,
		attendeeSelect()+` WHERE n.uuid = ? AND u.approval_status = 'approved'`, id))
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, ErrLinkNotFound
	}
	return a, err
}

// LinkUUIDForUser returns the link uuid of an approved user, used to
// redirect scans that carry a user id instead of a link uuid.
func (d *Directory) LinkUUIDForUser(ctx context.Context, userID string) (string, error) {
	var id string
	err := d.db.QueryRowContext(ctx,
		`SELECT n.uuid FROM nfc_links n
		 JOIN users u ON u.id = n.user_id
		 WHERE n.user_id = ? AND u.approval_status = 'approved'`, userID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrLinkNotFound
	}
	if err != nil {
		return "", fmt.Errorf("looking up link by user: %w", err)
	}
	return id, nil
}

// Lookup returns id, email and role for each existing id in ids.
func (d *Directory) Lookup(ctx context.Context, ids []string) (map[string]*auth.User, error) {
	out := make(map[string]*auth.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	//nolint:gosec // placeholders only
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+auth.UserColumns("u")+" FROM users u WHERE u.id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("looking up users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := auth.ScanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type nullableProfile struct {
	userID, diet, allergens, createdAt, updatedAt sql.NullString
	bags, attendance, food                        sql.NullInt64
}

type nullableLink struct {
	id, uuid, lastScanned, createdBy, createdAt sql.NullString
	scanCount                                   sql.NullInt64
}

func scanAttendee(s interface{ Scan(...any) error }) (*Attendee, error) {
	var p nullableProfile
	var l nullableLink

	u, err := auth.ScanUser(s,
		&p.userID, &p.bags, &p.attendance, &p.food, &p.diet, &p.allergens, &p.createdAt, &p.updatedAt,
		&l.id, &l.uuid, &l.scanCount, &l.lastScanned, &l.createdBy, &l.createdAt,
	)
	if err != nil {
		return nil, err
	}

	a := &Attendee{User: *u}
	if p.userID.Valid {
		a.Profile = &Profile{
			UserID:       p.userID.String,
			BagsChecked:  p.bags.Int64 != 0,
			Attendance:   p.attendance.Int64 != 0,
			ReceivedFood: p.food.Int64 != 0,
			Diet:         Diet(p.diet.String),
			Allergens:    p.allergens.String,
			CreatedAt:    database.ParseTime(p.createdAt.String),
			UpdatedAt:    database.ParseTime(p.updatedAt.String),
		}
	}
	if l.id.Valid {
		a.NfcLink = &NfcLink{
			ID:        l.id.String,
			UserID:    u.ID,
			UUID:      l.uuid.String,
			ScanCount: l.scanCount.Int64,
			CreatedBy: l.createdBy.String,
			CreatedAt: database.ParseTime(l.createdAt.String),
		}
		if l.lastScanned.Valid {
			t := database.ParseTime(l.lastScanned.String)
			a.NfcLink.LastScannedAt = &t
		}
	}
	return a, nil
}
