package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/wesmun/nfc-core/internal/infrastructure/database"
)

// ActionLogin is the rate-limit action for password logins.
const ActionLogin = "login"

// Default throttling: the sixth failure inside fifteen minutes is refused.
const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
)

// RateLimiter counts failed attempts per (identifier, action) in fixed
// windows. Counts are approximate under concurrency.
type RateLimiter struct {
	db          database.Querier
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a limiter. Non-positive arguments select the defaults.
func NewRateLimiter(db database.Querier, maxAttempts int, window time.Duration) *RateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RateLimiter{db: db, maxAttempts: maxAttempts, window: window, now: time.Now}
}

// Allowed reports whether identifier is still under the threshold, summing
// failures recorded in windows that started within the last window length.
func (l *RateLimiter) Allowed(ctx context.Context, identifier, action string) (bool, error) {
	since := database.FormatTime(l.now().Add(-l.window))

	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM rate_limits
		 WHERE identifier = ? AND action = ? AND window_start > ?`,
		NormalizeEmail(identifier), action, since,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking rate limit: %w", err)
	}
	return count < l.maxAttempts, nil
}

// RecordFailure increments the counter for the current fixed window.
func (l *RateLimiter) RecordFailure(ctx context.Context, identifier, action string) error {
	start := l.now().UTC().Truncate(l.window)

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO rate_limits (identifier, action, window_start, count)
		 VALUES (?, ?, ?, 1)
		 ON CONFLICT (identifier, action, window_start) DO UPDATE SET count = count + 1`,
		NormalizeEmail(identifier), action, database.FormatTime(start),
	)
	if err != nil {
		return fmt.Errorf("recording rate limit failure: %w", err)
	}
	return nil
}

// PurgeStale removes windows that can no longer affect Allowed.
func (l *RateLimiter) PurgeStale(ctx context.Context) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		"DELETE FROM rate_limits WHERE window_start <= ?",
		database.FormatTime(l.now().Add(-l.window)))
	if err != nil {
		return 0, fmt.Errorf("purging rate limits: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
