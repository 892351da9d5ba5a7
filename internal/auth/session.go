package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wesmun/nfc-core/internal/infrastructure/database"
)

// DefaultSessionTTL is the fixed lifetime of a session token.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionStore persists session tokens. Only token hashes are stored;
// expired rows are filtered at query time and purged by DeleteExpired.
type SessionStore struct {
	db  database.Querier
	ttl time.Duration
	now func() time.Time
}

// NewSessionStore creates a session store. A non-positive ttl selects
// DefaultSessionTTL.
func NewSessionStore(db database.Querier, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{db: db, ttl: ttl, now: time.Now}
}

// TTL returns the session lifetime, used for the cookie max-age.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Create mints a session for userID and returns the raw token.
func (s *SessionStore) Create(ctx context.Context, userID string) (string, error) {
	raw, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_tokens (user_id, token_hash, expires_at, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, HashToken(raw),
		database.FormatTime(now.Add(s.ttl)),
		database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return raw, nil
}

// Validate resolves a raw token to its approved, unexpired owner and
// touches last_used_at. It returns (nil, nil) when the token is unknown,
// expired or owned by an unapproved account; errors are infrastructure only.
func (s *SessionStore) Validate(ctx context.Context, raw string) (*User, error) {
	if raw == "" {
		return nil, nil
	}

	hash := HashToken(raw)
	now := database.FormatTime(s.now())

	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+UserColumns("u")+`
		 FROM session_tokens st
		 JOIN users u ON u.id = st.user_id
		 WHERE st.token_hash = ? AND st.expires_at > ? AND u.approval_status = 'approved'`,
		hash, now,
	))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("validating session: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE session_tokens SET last_used_at = ? WHERE token_hash = ?", now, hash,
	); err != nil {
		return nil, fmt.Errorf("touching session: %w", err)
	}
	return user, nil
}

// Delete removes the session for raw. Deleting an unknown token is not an error.
func (s *SessionStore) Delete(ctx context.Context, raw string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM session_tokens WHERE token_hash = ?", HashToken(raw),
	); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpired purges sessions past their expiry and returns the count.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM session_tokens WHERE expires_at <= ?", database.FormatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
