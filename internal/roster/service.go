package roster

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/wesmun/nfc-core/internal/attendee"
	"github.com/wesmun/nfc-core/internal/audit"
	"github.com/wesmun/nfc-core/internal/auth"
	"github.com/wesmun/nfc-core/internal/events"
	"github.com/wesmun/nfc-core/internal/infrastructure/logging"
)

// Scan feed event types.
const (
	EventScanRecorded       = "scan.recorded"
	EventScanProfileUpdated = "scan.profile_updated"
)

// AuditRecorder writes best-effort audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// Config holds roster policy.
type Config struct {
	// AllowedDomain is the privileged domain: only accounts in it may hold
	// a role other than user.
	AllowedDomain string

	// EmergencyEmail is the reserved emergency admin address, if any.
	EmergencyEmail string
}

// Deps are the collaborators of Service.
type Deps struct {
	DB        *sql.DB
	Audit     AuditRecorder
	AuditLogs audit.Repository
	Publisher events.Publisher
	Logger    *logging.Logger
}

// Service implements the roster state transitions.
type Service struct {
	cfg       Config
	db        *sql.DB
	users     *auth.SQLiteUserRepository
	profiles  *attendee.ProfileRepository
	links     *attendee.LinkRepository
	directory *attendee.Directory
	audit     AuditRecorder
	auditLogs audit.Repository
	publisher events.Publisher
	logger    *logging.Logger
}

// NewService creates the roster service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.DB == nil || deps.Audit == nil || deps.AuditLogs == nil || deps.Logger == nil {
		return nil, errors.New("roster: db, audit, audit logs and logger are required")
	}
	if cfg.AllowedDomain == "" {
		return nil, errors.New("roster: allowed domain is required")
	}

	return &Service{
		cfg:       cfg,
		db:        deps.DB,
		users:     auth.NewUserRepository(deps.DB),
		profiles:  attendee.NewProfileRepository(deps.DB),
		links:     attendee.NewLinkRepository(deps.DB),
		directory: attendee.NewDirectory(deps.DB),
		audit:     deps.Audit,
		auditLogs: deps.AuditLogs,
		publisher: deps.Publisher,
		logger:    deps.Logger.With("component", "roster"),
	}, nil
}

func (s *Service) publish(eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// protected reports whether u may never be deleted, singly or in bulk.
// Role changes only shield the emergency admin; see checkRoleTarget.
func protected(u *auth.User) bool {
	if auth.IsEmergencyAdmin(u) {
		return true
	}
	switch u.Role {
	case auth.RoleAdmin, auth.RoleSecurity, auth.RoleOverseer:
		return true
	}
	return false
}

func snapshot(u *auth.User) *audit.Party {
	return &audit.Party{ID: u.ID, Name: u.Name, Email: u.Email}
}

// dedupe drops blanks and repeats, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
