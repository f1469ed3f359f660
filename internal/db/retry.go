package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	maxRetryAttempts    = 8
	initialRetryBackoff = 25 * time.Millisecond
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// IsBusyError returns true when the error represents a transient SQLite busy/locked state.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_BUSY_SNAPSHOT:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// ExecWithRetry executes the statement, retrying while SQLite reports a busy/locked state.
func ExecWithRetry(ctx context.Context, db Execer, query string, args ...any) (sql.Result, error) {
	var lastErr error
	backoff := initialRetryBackoff
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		res, err := db.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !IsBusyError(err) {
			return nil, err
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if backoff < 800*time.Millisecond {
			backoff *= 2
		}
	}
	return nil, lastErr
}
