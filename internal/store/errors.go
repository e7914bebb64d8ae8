package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// classify maps driver failures onto ledger error kinds. Errors that are
// already classified pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if ledger.KindOf(err) != nil {
		return err
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch code := se.Code(); {
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return ledger.Wrap(ledger.ErrTransientIO, op, err)
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ledger.Wrap(ledger.ErrDuplicate, op, err)
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ledger.Wrap(ledger.ErrNotFound, op, err)
		case code == sqlite3.SQLITE_CONSTRAINT_CHECK:
			return ledger.Wrap(ledger.ErrInvalid, op, err)
		}
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return ledger.Wrap(ledger.ErrTransientIO, op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// isBusy reports whether err is a lock timeout that is worth retrying.
func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

type scanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
