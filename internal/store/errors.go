package store

import (
	"errors"

	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	// ErrSchemaMissing is returned when a write is attempted before ResetSchema.
	ErrSchemaMissing = errors.New("schema missing: run ResetSchema first")

	// ErrDuplicateFrame is returned when a frame key is inserted twice under
	// the fail conflict policy.
	ErrDuplicateFrame = errors.New("duplicate frame key")
)

// IsUniqueViolation reports whether err is a primary-key or unique
// constraint failure from either backend.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
