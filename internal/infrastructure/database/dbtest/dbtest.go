// Package dbtest opens throwaway SQLite databases with the production schema
// applied, for use in package tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/wesmun/nfc-core/internal/infrastructure/database"
	_ "github.com/wesmun/nfc-core/migrations" // registers the embedded schema
)

// Open returns a migrated database backed by a file in t.TempDir().
// The connection is closed when the test finishes.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db.DB
}

// Exec runs a statement and fails the test on error. It is meant for
// fixture setup that bypasses the repositories.
func Exec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()

	if _, err := db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
