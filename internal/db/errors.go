package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Classify maps an engine error onto the domain error kinds. op names the
// failing step and becomes the message.
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &domain.Error{Kind: domain.KindNotFound, Message: op, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.StorageError(op, err)
	case IsUniqueViolation(err), IsForeignKeyViolation(err):
		return &domain.Error{Kind: domain.KindConflict, Message: op, Err: err}
	case IsCheckViolation(err):
		return &domain.Error{Kind: domain.KindValidation, Message: op, Err: err}
	}
	return domain.StorageError(op, err)
}

func code(err error) (int, string, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), se.Error(), true
	}
	return 0, "", false
}

// IsUniqueViolation checks for UNIQUE and PRIMARY KEY constraint errors.
func IsUniqueViolation(err error) bool {
	c, msg, ok := code(err)
	if !ok {
		return false
	}
	if c == sqlite3.SQLITE_CONSTRAINT_UNIQUE || c == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	return c&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(msg, "UNIQUE constraint failed")
}

// IsUniqueViolationOn reports a unique violation naming column, such as
// "orders.client_ref".
func IsUniqueViolationOn(err error, column string) bool {
	if !IsUniqueViolation(err) {
		return false
	}
	_, msg, _ := code(err)
	return strings.Contains(msg, column)
}

// IsForeignKeyViolation reports RESTRICT and dangling reference errors.
func IsForeignKeyViolation(err error) bool {
	c, msg, ok := code(err)
	if !ok {
		return false
	}
	if c == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return c&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(msg, "FOREIGN KEY constraint failed")
}

func IsCheckViolation(err error) bool {
	c, msg, ok := code(err)
	if !ok {
		return false
	}
	if c == sqlite3.SQLITE_CONSTRAINT_CHECK {
		return true
	}
	return c&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(msg, "CHECK constraint failed")
}

// IsBusy reports lock contention that outlived busy_timeout.
func IsBusy(err error) bool {
	c, _, ok := code(err)
	if !ok {
		return false
	}
	return c&0xff == sqlite3.SQLITE_BUSY || c&0xff == sqlite3.SQLITE_LOCKED
}
