package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/wesmun/nfc-core/internal/infrastructure/database/dbtest"
)

func createUser(t *testing.T, repo *SQLiteUserRepository, email string, role Role, status ApprovalStatus) *User {
	t.Helper()
	u := &User{Email: email, Name: email, Role: role, ApprovalStatus: status}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create(%s) error = %v", email, err)
	}
	return u
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	repo := NewUserRepository(dbtest.Open(t))
	ctx := context.Background()

	user := &User{Email: "  Ada@WESMUN.com ", Name: "Ada", PasswordHash: "hash"}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == "" {
		t.Fatal("Create() should generate an ID")
	}
	if user.Role != RoleUser || user.ApprovalStatus != StatusPending {
		t.Errorf("defaults = %s/%s, want user/pending", user.Role, user.ApprovalStatus)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Email != "ada@wesmun.com" {
		t.Errorf("Email = %q, want normalised", got.Email)
	}
	if got.PasswordHash != "hash" || got.Name != "Ada" {
		t.Errorf("got = %+v", got)
	}
	if got.CreatedAt.IsZero() || got.ApprovedAt != nil {
		t.Errorf("timestamps = created %v approved %v", got.CreatedAt, got.ApprovedAt)
	}

	byEmail, err := repo.GetByEmail(ctx, "ADA@wesmun.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if byEmail.ID != user.ID {
		t.Errorf("GetByEmail() ID = %q, want %q", byEmail.ID, user.ID)
	}
}

func TestUserRepository_NotFound(t *testing.T) {
	repo := NewUserRepository(dbtest.Open(t))
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID() error = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.GetByEmail(ctx, "missing@wesmun.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByEmail() error = %v, want ErrUserNotFound", err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Delete() error = %v, want ErrUserNotFound", err)
	}
	if err := repo.UpdateRole(ctx, "missing", RoleAdmin); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateRole() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	repo := NewUserRepository(dbtest.Open(t))
	createUser(t, repo, "dup@wesmun.com", RoleUser, StatusPending)

	err := repo.Create(context.Background(), &User{Email: "DUP@wesmun.com", Name: "again"})
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("error = %v, want ErrEmailExists", err)
	}
}

func TestUserRepository_ListPending(t *testing.T) {
	repo := NewUserRepository(dbtest.Open(t))
	ctx := context.Background()

	users, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(users) != 0 {
		t.Errorf("ListPending() = %d, want empty", len(users))
	}

	createUser(t, repo, "a@wesmun.com", RoleUser, StatusPending)
	createUser(t, repo, "b@wesmun.com", RoleUser, StatusApproved)
	last := createUser(t, repo, "c@wesmun.com", RoleUser, StatusPending)

	users, err = repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ListPending() = %d, want 2", len(users))
	}
	if users[0].ID != last.ID {
		t.Errorf("newest pending should come first, got %s", users[0].Email)
	}
}

func TestUserRepository_Approve(t *testing.T) {
	repo := NewUserRepository(dbtest.Open(t))
	ctx := context.Background()

	admin := createUser(t, repo, "admin@wesmun.com", RoleAdmin, StatusApproved)
	pending := createUser(t, repo, "new@wesmun.com", RoleUser, StatusPending)

	if err := repo.Approve(ctx, pending.ID, admin.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, pending.ID) //nolint:errcheck // checked via fields
	if got.ApprovalStatus != StatusApproved {
		t.Errorf("status = %s, want approved", got.ApprovalStatus)
	}
	if got.ApprovedBy != admin.ID || got.ApprovedAt == nil {
		t.Errorf("approved_by = %q approved_at = %v", got.ApprovedBy, got.ApprovedAt)
	}

	if err := repo.Approve(ctx, pending.ID, admin.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second Approve() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_UpdateRole(t *testing.T) {
	repo := NewUserRepository(dbtest.Open(t))
	ctx := context.Background()
	u := createUser(t, repo, "sec@wesmun.com", RoleUser, StatusApproved)

	if err := repo.UpdateRole(ctx, u.ID, RoleSecurity); err != nil {
		t.Fatalf("UpdateRole() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, u.ID) //nolint:errcheck // checked via fields
	if got.Role != RoleSecurity {
		t.Errorf("Role = %s, want security", got.Role)
	}

	if err := repo.UpdateRole(ctx, u.ID, Role("root")); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("invalid role error = %v, want ErrInvalidRole", err)
	}
}

func TestUserRepository_MarkEmergencyAdmin(t *testing.T) {
	repo := NewUserRepository(dbtest.Open(t))
	ctx := context.Background()
	u := createUser(t, repo, "break@wesmun.com", RoleUser, StatusPending)

	if err := repo.MarkEmergencyAdmin(ctx, u.ID); err != nil {
		t.Fatalf("MarkEmergencyAdmin() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, u.ID) //nolint:errcheck // checked via fields
	if !IsEmergencyAdmin(got) || got.Role != RoleAdmin || got.ApprovalStatus != StatusApproved {
		t.Errorf("got = %+v", got)
	}
}

func TestUserRepository_DeleteCascades(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	u := createUser(t, repo, "gone@wesmun.com", RoleUser, StatusApproved)

	sessions := NewSessionStore(db, 0)
	token, err := sessions.Create(ctx, u.ID)
	if err != nil {
		t.Fatalf("Create session error = %v", err)
	}

	if err := repo.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if got, err := sessions.Validate(ctx, token); err != nil || got != nil {
		t.Errorf("session after delete = %v, %v", got, err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM session_tokens").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("session rows = %d, want cascade delete", n)
	}
}

func TestUserColumns(t *testing.T) {
	got := UserColumns("u")
	if got[:8] != "u.id, u." {
		t.Errorf("UserColumns() = %q", got)
	}
}
