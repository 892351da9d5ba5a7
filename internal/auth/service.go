package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/wesmun/nfc-core/internal/audit"
	"github.com/wesmun/nfc-core/internal/infrastructure/logging"
)

// EmergencyAdminName is the display name given to the bootstrapped
// emergency admin account.
const EmergencyAdminName = "Emergency Admin"

// ProfileInitializer creates the empty attendee profile for a new account.
type ProfileInitializer interface {
	EnsureProfile(ctx context.Context, userID string) error
}

// AuditRecorder writes best-effort audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// ServiceConfig holds the account policy.
type ServiceConfig struct {
	// AllowedDomain restricts registration and password login, e.g. "wesmun.com".
	AllowedDomain string

	// EmergencyUsername and EmergencyPassword enable the break-glass login
	// when both are set. The account address is <username>@<AllowedDomain>.
	EmergencyUsername string
	EmergencyPassword string
}

// ServiceDeps are the collaborators of Service.
type ServiceDeps struct {
	Users    UserRepository
	Sessions *SessionStore
	Limiter  *RateLimiter
	Profiles ProfileInitializer
	Audit    AuditRecorder
	Logger   *logging.Logger
}

// Service implements registration, login and logout.
type Service struct {
	cfg      ServiceConfig
	users    UserRepository
	sessions *SessionStore
	limiter  *RateLimiter
	profiles ProfileInitializer
	audit    AuditRecorder
	logger   *logging.Logger
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	User      *User
	Emergency bool
}

// NewService creates the authentication service.
func NewService(cfg ServiceConfig, deps ServiceDeps) (*Service, error) {
	if cfg.AllowedDomain == "" {
		return nil, errors.New("auth: allowed domain is required")
	}
	if deps.Users == nil || deps.Sessions == nil || deps.Limiter == nil {
		return nil, errors.New("auth: users, sessions and limiter are required")
	}
	if deps.Profiles == nil || deps.Audit == nil || deps.Logger == nil {
		return nil, errors.New("auth: profiles, audit and logger are required")
	}

	return &Service{
		cfg:      cfg,
		users:    deps.Users,
		sessions: deps.Sessions,
		limiter:  deps.Limiter,
		profiles: deps.Profiles,
		audit:    deps.Audit,
		logger:   deps.Logger.With("component", "auth"),
	}, nil
}

// AllowedDomain returns the configured account domain.
func (s *Service) AllowedDomain() string {
	return s.cfg.AllowedDomain
}

// EmergencyEmail returns the reserved emergency admin address, or "" when
// the break-glass login is not configured.
func (s *Service) EmergencyEmail() string {
	if s.cfg.EmergencyUsername == "" || s.cfg.EmergencyPassword == "" {
		return ""
	}
	return NormalizeEmail(s.cfg.EmergencyUsername + "@" + s.cfg.AllowedDomain)
}

// Sessions exposes the session store for cookie lifetime and validation.
func (s *Service) Sessions() *SessionStore {
	return s.sessions
}

// Register creates a pending account with the default role. Approval by an
// administrator is always required before the account can log in.
func (s *Service) Register(ctx context.Context, email, password, name string) (*User, error) {
	email = NormalizeEmail(email)

	if !InDomain(email, s.cfg.AllowedDomain) {
		return nil, ErrInvalidDomain
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if reserved := s.EmergencyEmail(); reserved != "" && email == reserved {
		return nil, ErrEmailExists
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:          email,
		Name:           name,
		Role:           RoleUser,
		ApprovalStatus: StatusPending,
		PasswordHash:   hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.profiles.EnsureProfile(ctx, user.ID); err != nil {
		s.logger.Error("profile creation failed", "user_id", user.ID, "error", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login authenticates email and password and mints a session.
//
// Unknown accounts and wrong passwords both return ErrInvalidCredentials
// and count against the rate limit. A failing limiter lookup is logged and
// the login proceeds.
func (s *Service) Login(ctx context.Context, email, password string, origin audit.Origin) (*LoginResult, error) {
	email = NormalizeEmail(email)

	if s.isEmergencyCredentials(email, password) {
		return s.emergencyLogin(ctx, email, origin)
	}

	if !InDomain(email, s.cfg.AllowedDomain) {
		return nil, ErrInvalidDomain
	}

	allowed, err := s.limiter.Allowed(ctx, email, ActionLogin)
	if err != nil {
		s.logger.Error("rate limit check failed", "error", err)
		allowed = true
	}
	if !allowed {
		s.logger.Warn("login rate limited", "ip", origin.IPAddress)
		return nil, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if user == nil || !VerifyPassword(password, user.PasswordHash) {
		s.recordFailure(ctx, email)
		return nil, ErrInvalidCredentials
	}

	if user.ApprovalStatus != StatusApproved {
		return nil, ErrPendingApproval
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID: user.ID,
		Action:  audit.ActionUserLogin,
		Details: map[string]any{"email": user.Email},
		Origin:  origin,
	})

	return &LoginResult{Token: token, User: user}, nil
}

// Logout deletes the session for token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Delete(ctx, token)
}

// Validate resolves a raw session token. It returns (nil, nil) for unknown,
// expired or unapproved sessions.
func (s *Service) Validate(ctx context.Context, token string) (*User, error) {
	return s.sessions.Validate(ctx, token)
}

// PurgeExpired removes expired sessions and rate-limit windows that can no
// longer throttle anyone.
func (s *Service) PurgeExpired(ctx context.Context) (sessions, windows int64, err error) {
	sessions, err = s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, 0, err
	}
	windows, err = s.limiter.PurgeStale(ctx)
	if err != nil {
		return sessions, 0, err
	}
	return sessions, windows, nil
}

func (s *Service) isEmergencyCredentials(email, password string) bool {
	reserved := s.EmergencyEmail()
	if reserved == "" {
		return false
	}
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(reserved)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.EmergencyPassword)) == 1
	return emailOK && passOK
}

// emergencyLogin fetches or bootstraps the emergency admin account. It
// skips the rate limit and the approval check.
func (s *Service) emergencyLogin(ctx context.Context, email string, origin audit.Origin) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		user, err = s.createEmergencyAdmin(ctx, email)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("looking up emergency admin: %w", err)
	}

	if !user.IsEmergencyAdmin || user.Role != RoleAdmin || user.ApprovalStatus != StatusApproved {
		if err := s.users.MarkEmergencyAdmin(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("marking emergency admin: %w", err)
		}
		user.IsEmergencyAdmin = true
		user.Role = RoleAdmin
		user.ApprovalStatus = StatusApproved
	}

	if err := s.profiles.EnsureProfile(ctx, user.ID); err != nil {
		s.logger.Error("emergency admin profile creation failed", "error", err)
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Warn("emergency admin login", "ip", origin.IPAddress)
	s.audit.Record(ctx, audit.Entry{
		ActorID: user.ID,
		Action:  audit.ActionEmergencyAdminLogin,
		Details: map[string]any{"email": user.Email},
		Origin:  origin,
	})

	return &LoginResult{Token: token, User: user, Emergency: true}, nil
}

func (s *Service) createEmergencyAdmin(ctx context.Context, email string) (*User, error) {
	user := &User{
		Email:            email,
		Name:             EmergencyAdminName,
		Role:             RoleAdmin,
		ApprovalStatus:   StatusApproved,
		IsEmergencyAdmin: true,
	}
	err := s.users.Create(ctx, user)
	if errors.Is(err, ErrEmailExists) {
		// Lost a race with a concurrent bootstrap.
		return s.users.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("creating emergency admin: %w", err)
	}
	return user, nil
}

func (s *Service) recordFailure(ctx context.Context, email string) {
	if err := s.limiter.RecordFailure(ctx, email, ActionLogin); err != nil {
		s.logger.Error("recording login failure failed", "error", err)
	}
}
