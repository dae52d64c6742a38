package db

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the repositories react to.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// IsNoRows reports whether err is sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsDuplicateKey reports a unique-key violation and the name of the violated key.
func IsDuplicateKey(err error) (string, bool) {
	myErr, ok := asMySQLError(err)
	if !ok || myErr.Number != mysqlErrDuplicateEntry {
		return "", false
	}
	// Message ends with: for key 'table.key_name'
	_, key, found := strings.Cut(myErr.Message, "for key ")
	if !found {
		return "", true
	}
	return strings.Trim(strings.TrimSpace(key), "`'\""), true
}

// IsRetryable reports whether the whole transaction can be retried as-is.
func IsRetryable(err error) bool {
	myErr, ok := asMySQLError(err)
	if !ok {
		return false
	}
	return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout
}

func asMySQLError(err error) (*mysql.MySQLError, bool) {
	var myErr *mysql.MySQLError
	if err == nil || !errors.As(err, &myErr) {
		return nil, false
	}
	return myErr, true
}
