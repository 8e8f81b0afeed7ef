package store

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when an update or delete targets a missing row.
	ErrNotFound = errors.New("not found")

	// ErrConstraintViolation is returned when a brand name or a project name
	// within its brand is already taken.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrStorageUnavailable is returned when the log cannot be opened or migrated.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidRuleType is returned for a rule type outside RuleTypes.
	ErrInvalidRuleType = errors.New("invalid rule type")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
