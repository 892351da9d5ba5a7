package database

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// IsForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func IsForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// ErrorCode returns a short engine-level code for err, suitable for logs.
// It returns an empty string when err does not originate from SQLite.
func ErrorCode(err error) string {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return ""
	}

	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique:
		return "constraint_unique"
	case sqlite3.ErrConstraintPrimaryKey:
		return "constraint_primary_key"
	case sqlite3.ErrConstraintForeignKey:
		return "constraint_foreign_key"
	case sqlite3.ErrConstraintNotNull:
		return "constraint_not_null"
	case sqlite3.ErrConstraintCheck:
		return "constraint_check"
	}

	switch se.Code {
	case sqlite3.ErrBusy:
		return "busy"
	case sqlite3.ErrLocked:
		return "locked"
	case sqlite3.ErrConstraint:
		return "constraint"
	case sqlite3.ErrCantOpen:
		return "cant_open"
	case sqlite3.ErrCorrupt:
		return "corrupt"
	}
	return fmt.Sprintf("sqlite_%d", int(se.Code))
}
