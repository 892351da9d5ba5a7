// Package database provides SQLite connectivity for the WESMUN core service.
//
// This package manages:
//   - Database connection with WAL mode and enforced foreign keys
//   - Embedded schema migrations (see the migrations package)
//   - The Querier abstraction shared by *sql.DB and *sql.Tx
//   - Classification of engine errors (unique and foreign key violations)
//
// All queries use parameterised statements. Timestamps are stored as
// RFC 3339 UTC text so they sort and compare lexically.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
