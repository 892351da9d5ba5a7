package roster

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/wesmun/nfc-core/internal/access"
	"github.com/wesmun/nfc-core/internal/attendee"
	"github.com/wesmun/nfc-core/internal/audit"
	"github.com/wesmun/nfc-core/internal/auth"
	"github.com/wesmun/nfc-core/internal/events"
	"github.com/wesmun/nfc-core/internal/infrastructure/database/dbtest"
	"github.com/wesmun/nfc-core/internal/infrastructure/logging"
)

const testDomain = "wesmun.com"

var origin = audit.Origin{IPAddress: "10.0.0.7", UserAgent: "scanner/1.0"}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	svc       *Service
	db        *sql.DB
	published *capturePublisher

	admin     *access.Principal
	security  *access.Principal
	overseer  *access.Principal
	member    *access.Principal
	emergency *access.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.Open(t)
	logger := logging.Discard()
	logs := audit.NewSQLiteRepository(db)
	pub := &capturePublisher{}

	svc, err := NewService(Config{
		AllowedDomain:  testDomain,
		EmergencyEmail: "root@" + testDomain,
	}, Deps{
		DB:        db,
		Audit:     audit.NewRecorder(logs, logger, nil),
		AuditLogs: logs,
		Publisher: pub,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	f := &fixture{svc: svc, db: db, published: pub}
	f.admin = access.NewPrincipal(f.user(t, "admin@wesmun.com", auth.RoleAdmin, auth.StatusApproved))
	f.security = access.NewPrincipal(f.user(t, "guard@wesmun.com", auth.RoleSecurity, auth.StatusApproved))
	f.overseer = access.NewPrincipal(f.user(t, "watch@wesmun.com", auth.RoleOverseer, auth.StatusApproved))
	f.member = access.NewPrincipal(f.user(t, "delegate@wesmun.com", auth.RoleUser, auth.StatusApproved))

	root := &auth.User{
		Email: "root@wesmun.com", Name: auth.EmergencyAdminName, Role: auth.RoleAdmin,
		ApprovalStatus: auth.StatusApproved, IsEmergencyAdmin: true,
	}
	if err := auth.NewUserRepository(db).Create(context.Background(), root); err != nil {
		t.Fatalf("creating emergency admin: %v", err)
	}
	f.emergency = access.NewPrincipal(root)
	return f
}

func (f *fixture) user(t *testing.T, email string, role auth.Role, status auth.ApprovalStatus) *auth.User {
	t.Helper()
	u := &auth.User{Email: email, Name: strings.Split(email, "@")[0], Role: role, ApprovalStatus: status}
	if err := auth.NewUserRepository(f.db).Create(context.Background(), u); err != nil {
		t.Fatalf("creating %s: %v", email, err)
	}
	return u
}

func (f *fixture) auditCount(t *testing.T, action string) int {
	t.Helper()
	var n int
	if err := f.db.QueryRow("SELECT COUNT(*) FROM audit_logs WHERE action = ?", action).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", action, err)
	}
	return n
}

func (f *fixture) profile(t *testing.T, userID string) *attendee.Profile {
	t.Helper()
	p, err := attendee.NewProfileRepository(f.db).Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get profile: %v", err)
	}
	return p
}

func (f *fixture) userExists(t *testing.T, id string) bool {
	t.Helper()
	_, err := auth.NewUserRepository(f.db).GetByID(context.Background(), id)
	if err != nil && !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("GetByID: %v", err)
	}
	return err == nil
}

func ptr[T any](v T) *T { return &v }

func TestNewServiceRequiresDeps(t *testing.T) {
	if _, err := NewService(Config{AllowedDomain: testDomain}, Deps{}); err == nil {
		t.Error("NewService() with no deps should fail")
	}
}

func TestIssueLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.user(t, "alice@wesmun.com", auth.RoleUser, auth.StatusApproved)

	link, err := f.svc.IssueLink(ctx, f.security, target.ID, origin)
	if err != nil {
		t.Fatalf("IssueLink() error = %v", err)
	}
	if link.UUID == "" || link.UserID != target.ID {
		t.Errorf("link = %+v", link)
	}

	if _, err := f.svc.IssueLink(ctx, f.admin, target.ID, origin); !errors.Is(err, attendee.ErrLinkExists) {
		t.Errorf("second IssueLink() error = %v, want ErrLinkExists", err)
	}
	var n int
	if err := f.db.QueryRow("SELECT COUNT(*) FROM nfc_links WHERE user_id = ?", target.ID).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("links for user = %d, want 1", n)
	}
	if got := f.auditCount(t, audit.ActionNfcLinkCreate); got != 1 {
		t.Errorf("nfc_link_create entries = %d, want 1", got)
	}
}

func TestIssueLinkRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.user(t, "bob@wesmun.com", auth.RoleUser, auth.StatusPending)
	approved := f.user(t, "carol@wesmun.com", auth.RoleUser, auth.StatusApproved)

	tests := []struct {
		name    string
		actor   *access.Principal
		userID  string
		wantErr error
	}{
		{"pending target", f.security, pending.ID, ErrNotApproved},
		{"unknown target", f.security, "no-such-user", ErrNotApproved},
		{"empty id", f.security, "", ErrInvalidInput},
		{"overseer", f.overseer, approved.ID, access.ErrForbidden},
		{"delegate", f.member, approved.ID, access.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.IssueLink(ctx, tt.actor, tt.userID, origin); !errors.Is(err, tt.wantErr) {
				t.Errorf("IssueLink() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.user(t, "dan@wesmun.com", auth.RoleUser, auth.StatusApproved)
	link, err := f.svc.IssueLink(ctx, f.admin, target.ID, origin)
	if err != nil {
		t.Fatalf("IssueLink() error = %v", err)
	}

	for want := int64(1); want <= 2; want++ {
		res, err := f.svc.Scan(ctx, f.overseer, link.UUID, origin)
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if res.Attendee == nil || res.Attendee.ID != target.ID {
			t.Fatalf("Scan() attendee = %+v", res.Attendee)
		}
		if res.Attendee.NfcLink.ScanCount != want {
			t.Errorf("scan_count = %d, want %d", res.Attendee.NfcLink.ScanCount, want)
		}
		if res.Attendee.NfcLink.LastScannedAt == nil {
			t.Error("last_scanned_at not set")
		}
	}

	if got := f.auditCount(t, audit.ActionNfcScan); got != 2 {
		t.Errorf("nfc_scan entries = %d, want 2", got)
	}
	if got := f.published.types(); len(got) != 2 || got[0] != EventScanRecorded {
		t.Errorf("published = %v", got)
	}
}

func TestScanRedirectsUserID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.user(t, "erin@wesmun.com", auth.RoleUser, auth.StatusApproved)
	link, err := f.svc.IssueLink(ctx, f.admin, target.ID, origin)
	if err != nil {
		t.Fatalf("IssueLink() error = %v", err)
	}

	res, err := f.svc.Scan(ctx, f.security, target.ID, origin)
	if err != nil {
		t.Fatalf("Scan(user id) error = %v", err)
	}
	if res.RedirectUUID != link.UUID || res.Attendee != nil {
		t.Errorf("Scan(user id) = %+v, want redirect to %s", res, link.UUID)
	}
	if got := f.auditCount(t, audit.ActionNfcScan); got != 0 {
		t.Errorf("redirect should not count as a scan, got %d entries", got)
	}
}

func TestScanMisses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unlinked := f.user(t, "fay@wesmun.com", auth.RoleUser, auth.StatusApproved)

	if _, err := f.svc.Scan(ctx, f.security, "00000000-0000-0000-0000-000000000000", origin); !errors.Is(err, attendee.ErrLinkNotFound) {
		t.Errorf("unknown uuid error = %v", err)
	}
	if _, err := f.svc.Scan(ctx, f.security, unlinked.ID, origin); !errors.Is(err, attendee.ErrLinkNotFound) {
		t.Errorf("unlinked user id error = %v", err)
	}
	if _, err := f.svc.Scan(ctx, f.member, unlinked.ID, origin); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("delegate scan error = %v, want ErrForbidden", err)
	}
}

func TestUpdateByScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.user(t, "gus@wesmun.com", auth.RoleUser, auth.StatusApproved)
	link, err := f.svc.IssueLink(ctx, f.admin, target.ID, origin)
	if err != nil {
		t.Fatalf("IssueLink() error = %v", err)
	}

	err = f.svc.UpdateByScan(ctx, f.security, link.UUID,
		attendee.ProfileUpdate{BagsChecked: ptr(true), Attendance: ptr(true)}, origin)
	if err != nil {
		t.Fatalf("UpdateByScan() error = %v", err)
	}
	p := f.profile(t, target.ID)
	if !p.BagsChecked || !p.Attendance {
		t.Errorf("profile = %+v, want bags and attendance set", p)
	}
	if got := f.auditCount(t, audit.ActionProfileUpdate); got != 1 {
		t.Errorf("profile_update entries = %d, want 1", got)
	}

	t.Run("mixed fields are all or nothing", func(t *testing.T) {
		err := f.svc.UpdateByScan(ctx, f.security, link.UUID,
			attendee.ProfileUpdate{BagsChecked: ptr(false), Diet: ptr(attendee.DietVeg)}, origin)
		if !errors.Is(err, access.ErrForbidden) {
			t.Fatalf("error = %v, want ErrForbidden", err)
		}
		p := f.profile(t, target.ID)
		if !p.BagsChecked || p.Diet != attendee.DietNonVeg {
			t.Errorf("profile changed on rejected update: %+v", p)
		}
	})

	t.Run("allergens length", func(t *testing.T) {
		ok := strings.Repeat("x", attendee.MaxAllergensLength)
		if err := f.svc.UpdateByScan(ctx, f.admin, link.UUID, attendee.ProfileUpdate{Allergens: &ok}, origin); err != nil {
			t.Errorf("500 chars error = %v", err)
		}
		long := ok + "x"
		if err := f.svc.UpdateByScan(ctx, f.admin, link.UUID, attendee.ProfileUpdate{Allergens: &long}, origin); !errors.Is(err, attendee.ErrAllergensTooLong) {
			t.Errorf("501 chars error = %v, want ErrAllergensTooLong", err)
		}
		if got := f.profile(t, target.ID).Allergens; got != ok {
			t.Errorf("allergens length = %d, want %d", len(got), len(ok))
		}
	})

	t.Run("empty update", func(t *testing.T) {
		if err := f.svc.UpdateByScan(ctx, f.admin, link.UUID, attendee.ProfileUpdate{}, origin); !errors.Is(err, attendee.ErrNoFields) {
			t.Errorf("error = %v, want ErrNoFields", err)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		if err := f.svc.UpdateByScan(ctx, nil, link.UUID, attendee.ProfileUpdate{BagsChecked: ptr(true)}, origin); !errors.Is(err, access.ErrUnauthenticated) {
			t.Errorf("error = %v, want ErrUnauthenticated", err)
		}
	})

	t.Run("unknown uuid", func(t *testing.T) {
		if err := f.svc.UpdateByScan(ctx, f.admin, "missing", attendee.ProfileUpdate{BagsChecked: ptr(true)}, origin); !errors.Is(err, attendee.ErrLinkNotFound) {
			t.Errorf("error = %v, want ErrLinkNotFound", err)
		}
	})
}

func TestDecide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keep := f.user(t, "hal@wesmun.com", auth.RoleUser, auth.StatusPending)
	drop := f.user(t, "ivy@wesmun.com", auth.RoleUser, auth.StatusPending)

	pending, err := f.svc.ListPending(ctx, f.admin)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := f.svc.Decide(ctx, f.admin, keep.ID, true, origin); err != nil {
		t.Fatalf("approve error = %v", err)
	}
	got, err := auth.NewUserRepository(f.db).GetByID(ctx, keep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ApprovalStatus != auth.StatusApproved || got.ApprovedBy != f.admin.ID() {
		t.Errorf("approved user = %+v", got)
	}
	f.profile(t, keep.ID)

	if err := f.svc.Decide(ctx, f.admin, drop.ID, false, origin); err != nil {
		t.Fatalf("reject error = %v", err)
	}
	if f.userExists(t, drop.ID) {
		t.Error("rejected user still exists")
	}
	var email string
	if err := f.db.QueryRow("SELECT target_user_email FROM audit_logs WHERE action = ?", audit.ActionUserRejected).Scan(&email); err != nil {
		t.Fatalf("reading rejection entry: %v", err)
	}
	if email != drop.Email {
		t.Errorf("rejection snapshot email = %q, want %q", email, drop.Email)
	}

	if err := f.svc.Decide(ctx, f.admin, keep.ID, true, origin); !errors.Is(err, ErrNotPending) {
		t.Errorf("re-approve error = %v, want ErrNotPending", err)
	}
	if err := f.svc.Decide(ctx, f.security, keep.ID, true, origin); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("security approve error = %v, want ErrForbidden", err)
	}
}

func TestDeleteProtections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.user(t, "jay@wesmun.com", auth.RoleUser, auth.StatusApproved)

	tests := []struct {
		name    string
		userID  string
		wantErr error
	}{
		{"self", f.admin.ID(), auth.ErrSelfModification},
		{"security", f.security.ID(), ErrProtectedAccount},
		{"overseer", f.overseer.ID(), ErrProtectedAccount},
		{"emergency admin", f.emergency.ID(), ErrProtectedAccount},
		{"unknown", "no-such-user", auth.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.svc.Delete(ctx, f.admin, tt.userID, origin); !errors.Is(err, tt.wantErr) {
				t.Errorf("Delete() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if !errors.Is(ErrProtectedAccount, access.ErrForbidden) {
		t.Error("ErrProtectedAccount should match ErrForbidden")
	}

	if err := f.svc.Delete(ctx, f.admin, target.ID, origin); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if f.userExists(t, target.ID) {
		t.Error("deleted user still exists")
	}
	var email string
	if err := f.db.QueryRow("SELECT target_user_email FROM audit_logs WHERE action = ?", audit.ActionUserDelete).Scan(&email); err != nil {
		t.Fatal(err)
	}
	if email != target.Email {
		t.Errorf("delete snapshot email = %q", email)
	}
}

func TestBulkDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "kim@wesmun.com", auth.RoleUser, auth.StatusApproved)
	b := f.user(t, "lee@wesmun.com", auth.RoleUser, auth.StatusPending)

	res, err := f.svc.BulkDelete(ctx, f.admin,
		[]string{a.ID, b.ID, a.ID, f.admin.ID(), f.security.ID(), f.emergency.ID(), "ghost"}, origin)
	if err != nil {
		t.Fatalf("BulkDelete() error = %v", err)
	}
	if res.Deleted != 2 {
		t.Errorf("Deleted = %d, want 2", res.Deleted)
	}
	if len(res.Missing) != 1 || res.Missing[0] != "ghost" {
		t.Errorf("Missing = %v", res.Missing)
	}
	if len(res.Forbidden) != 3 {
		t.Errorf("Forbidden = %v, want admin, security and emergency", res.Forbidden)
	}
	if f.userExists(t, a.ID) || f.userExists(t, b.ID) {
		t.Error("bulk deleted users still exist")
	}
	if !f.userExists(t, f.security.ID()) {
		t.Error("protected user was deleted")
	}
	if got := f.auditCount(t, audit.ActionUserDelete); got != 2 {
		t.Errorf("user_delete entries = %d, want 2", got)
	}

	if _, err := f.svc.BulkDelete(ctx, f.admin, []string{"", ""}, origin); !errors.Is(err, ErrNoTargets) {
		t.Errorf("empty ids error = %v, want ErrNoTargets", err)
	}
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.user(t, "max@wesmun.com", auth.RoleUser, auth.StatusApproved)

	err := f.svc.UpdateUser(ctx, f.admin, target.ID, AdminUpdate{
		Role:    ptr(auth.RoleSecurity),
		Profile: attendee.ProfileUpdate{Diet: ptr(attendee.DietVeg)},
	}, origin)
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	got, _ := auth.NewUserRepository(f.db).GetByID(ctx, target.ID) //nolint:errcheck // checked below
	if got == nil || got.Role != auth.RoleSecurity {
		t.Errorf("role = %+v, want security", got)
	}
	if d := f.profile(t, target.ID).Diet; d != attendee.DietVeg {
		t.Errorf("diet = %q, want veg", d)
	}

	var details string
	if err := f.db.QueryRow("SELECT details FROM audit_logs WHERE action = ?", audit.ActionRoleUpdate).Scan(&details); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(details, `"previous_role":"user"`) || !strings.Contains(details, `"new_role":"security"`) {
		t.Errorf("role_update details = %s", details)
	}
	if got := f.auditCount(t, audit.ActionProfileUpdateAdmin); got != 1 {
		t.Errorf("profile_update_admin entries = %d", got)
	}
}

func TestUpdateUserRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.user(t, "guest@example.org", auth.RoleUser, auth.StatusApproved)
	target := f.user(t, "ned@wesmun.com", auth.RoleUser, auth.StatusApproved)

	tests := []struct {
		name    string
		actor   *access.Principal
		userID  string
		update  AdminUpdate
		wantErr error
	}{
		{"outside domain", f.admin, guest.ID, AdminUpdate{Role: ptr(auth.RoleOverseer)}, access.ErrForbidden},
		{"self", f.admin, f.admin.ID(), AdminUpdate{Role: ptr(auth.RoleUser)}, auth.ErrSelfModification},
		{"emergency target", f.admin, f.emergency.ID(), AdminUpdate{Role: ptr(auth.RoleUser)}, ErrProtectedAccount},
		{"invalid role", f.admin, target.ID, AdminUpdate{Role: ptr(auth.Role("king"))}, auth.ErrInvalidRole},
		{"nothing", f.admin, target.ID, AdminUpdate{}, attendee.ErrNoFields},
		{"not admin", f.security, target.ID, AdminUpdate{Profile: attendee.ProfileUpdate{BagsChecked: ptr(true)}}, access.ErrForbidden},
		{"unknown", f.admin, "ghost", AdminUpdate{Role: ptr(auth.RoleUser)}, auth.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.svc.UpdateUser(ctx, tt.actor, tt.userID, tt.update, origin); !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateUser() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	err := f.svc.UpdateUser(ctx, f.admin, guest.ID, AdminUpdate{Role: ptr(auth.RoleOverseer)}, origin)
	var domainErr *RoleDomainError
	if !errors.As(err, &domainErr) || len(domainErr.Emails) != 1 || domainErr.Emails[0] != guest.Email {
		t.Errorf("error = %v, want RoleDomainError for %s", err, guest.Email)
	}

	// Profile-only edits are allowed for accounts outside the domain.
	if err := f.svc.UpdateUser(ctx, f.admin, guest.ID, AdminUpdate{Profile: attendee.ProfileUpdate{ReceivedFood: ptr(true)}}, origin); err != nil {
		t.Errorf("profile edit for guest error = %v", err)
	}
}

func TestBulkUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "ola@wesmun.com", auth.RoleUser, auth.StatusApproved)
	b := f.user(t, "pat@wesmun.com", auth.RoleUser, auth.StatusApproved)
	guest := f.user(t, "quinn@example.org", auth.RoleUser, auth.StatusApproved)

	_, err := f.svc.BulkUpdate(ctx, f.admin, []string{a.ID, guest.ID}, AdminUpdate{Role: ptr(auth.RoleSecurity)}, origin)
	var domainErr *RoleDomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("error = %v, want RoleDomainError", err)
	}
	if len(domainErr.Emails) != 1 || domainErr.Emails[0] != guest.Email {
		t.Errorf("invalid emails = %v", domainErr.Emails)
	}
	if got, _ := auth.NewUserRepository(f.db).GetByID(ctx, a.ID); got.Role != auth.RoleUser { //nolint:errcheck // user exists
		t.Errorf("role changed despite rejection: %s", got.Role)
	}

	res, err := f.svc.BulkUpdate(ctx, f.admin, []string{a.ID, b.ID, guest.ID, "ghost"},
		AdminUpdate{Profile: attendee.ProfileUpdate{Attendance: ptr(true)}}, origin)
	if err != nil {
		t.Fatalf("BulkUpdate() error = %v", err)
	}
	if res.Updated != 3 || len(res.Missing) != 1 || res.Missing[0] != "ghost" {
		t.Errorf("result = %+v", res)
	}
	for _, id := range []string{a.ID, b.ID, guest.ID} {
		if !f.profile(t, id).Attendance {
			t.Errorf("attendance not set for %s", id)
		}
	}
	if got := f.auditCount(t, audit.ActionProfileUpdateAdminBulk); got != 1 {
		t.Errorf("bulk entries = %d, want 1", got)
	}

	if _, err := f.svc.BulkUpdate(ctx, f.admin, nil, AdminUpdate{Role: ptr(auth.RoleUser)}, origin); !errors.Is(err, ErrNoTargets) {
		t.Errorf("no ids error = %v", err)
	}
}

func TestBulkUpdate_StaffRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := auth.NewUserRepository(f.db)

	// Staff accounts cannot be deleted but can be re-roled.
	res, err := f.svc.BulkUpdate(ctx, f.admin, []string{f.security.ID(), f.overseer.ID()}, AdminUpdate{Role: ptr(auth.RoleUser)}, origin)
	if err != nil {
		t.Fatalf("BulkUpdate() error = %v", err)
	}
	if res.Updated != 2 {
		t.Errorf("updated = %d, want 2", res.Updated)
	}
	for _, id := range []string{f.security.ID(), f.overseer.ID()} {
		if got, _ := users.GetByID(ctx, id); got.Role != auth.RoleUser { //nolint:errcheck // user exists
			t.Errorf("role of %s = %s, want user", id, got.Role)
		}
	}

	_, err = f.svc.BulkUpdate(ctx, f.admin, []string{f.member.ID(), f.emergency.ID()}, AdminUpdate{Role: ptr(auth.RoleSecurity)}, origin)
	if !errors.Is(err, ErrProtectedAccount) {
		t.Fatalf("emergency target error = %v, want ErrProtectedAccount", err)
	}
	if got, _ := users.GetByID(ctx, f.member.ID()); got.Role != auth.RoleUser { //nolint:errcheck // user exists
		t.Errorf("member re-roled despite rejection: %s", got.Role)
	}
}

func TestOwnProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Own(ctx, f.member); err != nil {
		t.Errorf("Own() error = %v", err)
	}
	// Delegates can read but not write their own profile.
	if err := f.svc.UpdateOwn(ctx, f.member, attendee.ProfileUpdate{Diet: ptr(attendee.DietVeg)}, origin); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("delegate UpdateOwn() error = %v, want ErrForbidden", err)
	}

	if err := f.svc.UpdateOwn(ctx, f.admin, attendee.ProfileUpdate{Diet: ptr(attendee.DietVeg)}, origin); err != nil {
		t.Fatalf("admin UpdateOwn() error = %v", err)
	}
	own, err := f.svc.Own(ctx, f.admin)
	if err != nil {
		t.Fatal(err)
	}
	if own.Profile == nil || own.Profile.Diet != attendee.DietVeg {
		t.Errorf("own profile = %+v", own.Profile)
	}
	if got := f.auditCount(t, audit.ActionProfileUpdateSelf); got != 1 {
		t.Errorf("profile_update_self entries = %d", got)
	}
}

func TestCreateDataOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CreateDataOnly(ctx, f.security, DataOnlyInput{
		Email: " Rita@Example.org ", Name: "Rita", Diet: "veg", Allergens: "peanuts",
	}, origin)
	if err != nil {
		t.Fatalf("CreateDataOnly() error = %v", err)
	}
	if u.Email != "rita@example.org" || u.ApprovalStatus != auth.StatusApproved || u.CreatedBy != f.security.ID() {
		t.Errorf("user = %+v", u)
	}
	p := f.profile(t, u.ID)
	if p.Diet != attendee.DietVeg || p.Allergens != "peanuts" {
		t.Errorf("profile = %+v", p)
	}

	tests := []struct {
		name    string
		actor   *access.Principal
		in      DataOnlyInput
		wantErr error
	}{
		{"duplicate", f.security, DataOnlyInput{Email: "rita@example.org", Name: "Rita"}, auth.ErrEmailExists},
		{"reserved", f.admin, DataOnlyInput{Email: "root@wesmun.com", Name: "Root"}, auth.ErrEmailExists},
		{"missing name", f.admin, DataOnlyInput{Email: "x@example.org"}, ErrInvalidInput},
		{"bad diet", f.admin, DataOnlyInput{Email: "y@example.org", Name: "Y", Diet: "vegan"}, attendee.ErrInvalidDiet},
		{"overseer", f.overseer, DataOnlyInput{Email: "z@example.org", Name: "Z"}, access.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateDataOnly(ctx, tt.actor, tt.in, origin); !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateDataOnly() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBulkCreateDataOnly(t *testing.T) {
	f := newFixture(t)

	results, err := f.svc.BulkCreateDataOnly(context.Background(), f.admin, []DataOnlyInput{
		{Email: "sam@example.org", Name: "Sam"},
		{Email: "sam@example.org", Name: "Sam again"},
		{Email: "tess@example.org", Name: ""},
	}, origin)
	if err != nil {
		t.Fatalf("BulkCreateDataOnly() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if !results[0].Success || results[0].User == nil {
		t.Errorf("first = %+v", results[0])
	}
	if results[1].Success || results[1].Message != "user already exists" {
		t.Errorf("duplicate = %+v", results[1])
	}
	if results[2].Success {
		t.Errorf("missing name should fail: %+v", results[2])
	}
	if got := f.auditCount(t, audit.ActionDataOnlyUserCreate); got != 1 {
		t.Errorf("data_only_user_create entries = %d, want 1", got)
	}
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.user(t, "uma@wesmun.com", auth.RoleUser, auth.StatusApproved)
	if _, err := f.svc.IssueLink(ctx, f.admin, target.ID, origin); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.ListAudit(ctx, f.overseer, audit.Filter{Action: audit.ActionNfcLinkCreate})
	if err != nil {
		t.Fatalf("ListAudit() error = %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("Total = %d, want 1", res.Total)
	}
	if _, err := f.svc.ListAudit(ctx, f.security, audit.Filter{}); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("security ListAudit() error = %v", err)
	}

	id := res.Logs[0].ID
	if err := f.svc.DeleteAudit(ctx, f.admin, id, origin); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("admin DeleteAudit() error = %v, want ErrForbidden", err)
	}
	if err := f.svc.DeleteAudit(ctx, f.emergency, id, origin); err != nil {
		t.Fatalf("emergency DeleteAudit() error = %v", err)
	}
	if err := f.svc.DeleteAudit(ctx, f.emergency, id, origin); !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("second DeleteAudit() error = %v, want ErrNotFound", err)
	}
	if got := f.auditCount(t, audit.ActionAuditDelete); got != 1 {
		t.Errorf("audit_delete entries = %d, want 1", got)
	}

	n, err := f.svc.BulkDeleteAudit(ctx, f.emergency, []int64{id, 9999}, origin)
	if err != nil {
		t.Fatalf("BulkDeleteAudit() error = %v", err)
	}
	if n != 0 {
		t.Errorf("deleted = %d, want 0", n)
	}
	if _, err := f.svc.BulkDeleteAudit(ctx, f.emergency, nil, origin); !errors.Is(err, ErrNoTargets) {
		t.Errorf("empty BulkDeleteAudit() error = %v", err)
	}
}

func TestExportRequiresViewAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "vic@wesmun.com", auth.RoleUser, auth.StatusApproved)

	if _, err := f.svc.Export(ctx, f.member, attendee.ExportFilter{}); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("delegate Export() error = %v", err)
	}
	rows, err := f.svc.Export(ctx, f.overseer, attendee.ExportFilter{})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	// Only role=user accounts are exported: the delegate and vic.
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
	total, filtered, err := f.svc.ExportCounts(ctx, f.security, attendee.ExportFilter{Attendance: ptr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || filtered != 0 {
		t.Errorf("counts = %d/%d, want 2/0", total, filtered)
	}
}
