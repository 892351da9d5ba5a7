package attendee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wesmun/nfc-core/internal/infrastructure/database"
)

// ProfileRepository persists attendee profiles.
type ProfileRepository struct {
	db database.Querier
}

// NewProfileRepository creates a profile repository over db.
func NewProfileRepository(db database.Querier) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `user_id, bags_checked, attendance, received_food, diet, allergens, created_at, updated_at`

// EnsureProfile creates an empty profile for userID if none exists.
func (r *ProfileRepository) EnsureProfile(ctx context.Context, userID string) error {
	return r.ensure(ctx, userID, DefaultDiet, "")
}

// Create inserts a profile with the given diet and allergens. An existing
// profile is left untouched.
func (r *ProfileRepository) Create(ctx context.Context, userID string, diet Diet, allergens string) error {
	if !diet.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDiet, diet)
	}
	if err := ValidateAllergens(allergens); err != nil {
		return err
	}
	return r.ensure(ctx, userID, diet, allergens)
}

func (r *ProfileRepository) ensure(ctx context.Context, userID string, diet Diet, allergens string) error {
	now := database.FormatTime(time.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, diet, allergens, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, string(diet), nullString(allergens), now, now,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

// Get returns the profile for userID.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE user_id = ?", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// Apply writes the touched fields of u, creating the profile first when it
// is missing. The caller validates u and checks permissions.
func (r *ProfileRepository) Apply(ctx context.Context, userID string, u ProfileUpdate) error {
	sets, args := u.assignments()
	if len(sets) == 0 {
		return ErrNoFields
	}

	if err := r.EnsureProfile(ctx, userID); err != nil {
		return err
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, database.FormatTime(time.Now()), userID)

	//nolint:gosec // column names come from assignments, values are bound
	query := "UPDATE profiles SET " + strings.Join(sets, ", ") + " WHERE user_id = ?"
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}

// ApplyMany writes u to every profile in userIDs, creating missing
// profiles. Ids that do not reference a user are skipped.
func (r *ProfileRepository) ApplyMany(ctx context.Context, userIDs []string, u ProfileUpdate) error {
	for _, id := range userIDs {
		err := r.Apply(ctx, id, u)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return err
		}
	}
	return nil
}

func (u ProfileUpdate) assignments() ([]string, []any) {
	var sets []string
	var args []any
	if u.BagsChecked != nil {
		sets = append(sets, "bags_checked = ?")
		args = append(args, boolToInt(*u.BagsChecked))
	}
	if u.Attendance != nil {
		sets = append(sets, "attendance = ?")
		args = append(args, boolToInt(*u.Attendance))
	}
	if u.ReceivedFood != nil {
		sets = append(sets, "received_food = ?")
		args = append(args, boolToInt(*u.ReceivedFood))
	}
	if u.Diet != nil {
		sets = append(sets, "diet = ?")
		args = append(args, string(*u.Diet))
	}
	if u.Allergens != nil {
		sets = append(sets, "allergens = ?")
		args = append(args, nullString(*u.Allergens))
	}
	return sets, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(s rowScanner) (*Profile, error) {
	var p Profile
	var bags, attendance, food int
	var diet, createdAt, updatedAt string
	var allergens sql.NullString

	if err := s.Scan(&p.UserID, &bags, &attendance, &food, &diet, &allergens, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.BagsChecked = bags != 0
	p.Attendance = attendance != 0
	p.ReceivedFood = food != 0
	p.Diet = Diet(diet)
	p.Allergens = allergens.String
	p.CreatedAt = database.ParseTime(createdAt)
	p.UpdatedAt = database.ParseTime(updatedAt)
	return &p, nil
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
