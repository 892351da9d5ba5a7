package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wesmun/nfc-core/internal/infrastructure/database"
)

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListPending(ctx context.Context) ([]User, error)
	UpdateRole(ctx context.Context, id string, role Role) error
	Approve(ctx context.Context, id, approverID string) error
	MarkEmergencyAdmin(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// SQLiteUserRepository implements UserRepository using SQLite. It accepts a
// database.Querier so the same code runs inside a transaction.
type SQLiteUserRepository struct {
	db database.Querier
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db database.Querier) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = `id, email, name, image, role, approval_status, password_hash,
	is_emergency_admin, approved_by, approved_at, created_by, created_at, updated_at`

// Create inserts a new user account. The ID is generated if empty, the
// email is stored trimmed and lowercased.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	if user.ApprovalStatus == "" {
		user.ApprovalStatus = StatusPending
	}
	user.Email = NormalizeEmail(user.Email)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	stamp := database.FormatTime(now)

	var approvedAt sql.NullString
	if user.ApprovedAt != nil {
		approvedAt = sql.NullString{String: database.FormatTime(*user.ApprovedAt), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, nullString(user.Image),
		string(user.Role), string(user.ApprovalStatus), user.PasswordHash,
		boolToInt(user.IsEmergencyAdmin), nullString(user.ApprovedBy), approvedAt,
		nullString(user.CreatedBy), stamp, stamp,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their unique ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", NormalizeEmail(email))
}

// ListPending returns accounts awaiting approval, newest first.
func (r *SQLiteUserRepository) ListPending(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE approval_status = 'pending' ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("listing pending users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// UpdateRole changes a user's role.
func (r *SQLiteUserRepository) UpdateRole(ctx context.Context, id string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	return requireAffected(result)
}

// Approve moves a pending account to approved. It returns ErrUserNotFound
// when no pending account has the id.
func (r *SQLiteUserRepository) Approve(ctx context.Context, id, approverID string) error {
	now := database.FormatTime(time.Now())

	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET approval_status = 'approved', approved_by = (SELECT id FROM users WHERE id = ?),
		     approved_at = ?, updated_at = ?
		 WHERE id = ? AND approval_status = 'pending'`,
		approverID, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("approving user: %w", err)
	}
	return requireAffected(result)
}

// MarkEmergencyAdmin flags the account as the emergency admin and forces it
// to an approved admin.
func (r *SQLiteUserRepository) MarkEmergencyAdmin(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET is_emergency_admin = 1, role = 'admin', approval_status = 'approved', updated_at = ?
		 WHERE id = ?`,
		database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("marking emergency admin: %w", err)
	}
	return requireAffected(result)
}

// Delete removes a user account by ID. Profile, NFC link and sessions
// cascade; audit references are nulled.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return requireAffected(result)
}

func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, arg any) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	return u, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ScanUser reads the user columns in UserColumns order followed by any
// extra destinations. It is exported for packages that join users with
// other tables.
func ScanUser(s rowScanner, extra ...any) (*User, error) {
	return scanUser(s, extra...)
}

// UserColumns returns the column list ScanUser expects, qualified by alias.
func UserColumns(alias string) string {
	cols := strings.Split(strings.Join(strings.Fields(userColumns), ""), ",")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func scanUser(s rowScanner, extra ...any) (*User, error) {
	var u User
	var image, approvedBy, approvedAt, createdBy sql.NullString
	var role, status, createdAt, updatedAt string
	var emergency int

	dest := append([]any{&u.ID, &u.Email, &u.Name, &image, &role, &status, &u.PasswordHash,
		&emergency, &approvedBy, &approvedAt, &createdBy, &createdAt, &updatedAt}, extra...)
	err := s.Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.ApprovalStatus = ApprovalStatus(status)
	u.IsEmergencyAdmin = emergency != 0
	u.Image = image.String
	u.ApprovedBy = approvedBy.String
	u.CreatedBy = createdBy.String
	if approvedAt.Valid {
		t := database.ParseTime(approvedAt.String)
		u.ApprovedAt = &t
	}
	u.CreatedAt = database.ParseTime(createdAt)
	u.UpdatedAt = database.ParseTime(updatedAt)

	return &u, nil
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Helper functions.

func requireAffected(result sql.Result) error {
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
