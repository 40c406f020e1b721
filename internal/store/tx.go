package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a concurrent writer won: the database was
	// busy, a lock could not be taken, or a row changed underneath a write.
	ErrConflict = errors.New("concurrent modification")

	// ErrNotRoot is returned when an event would be parented to an event
	// that is itself an occurrence.
	ErrNotRoot = errors.New("parent is not a series root")
)

// Tx is a unit of work. Every method runs inside one database transaction.
type Tx struct {
	tx *sql.Tx
	s  *Store
}

// WithTx runs fn inside a transaction and commits if it returns nil.
// Driver lock and serialization failures are reported as ErrConflict.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return conflictOr(fmt.Errorf("begin transaction: %w", err))
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after Commit

	if err := fn(&Tx{tx: sqlTx, s: s}); err != nil {
		return conflictOr(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return conflictOr(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// IsConflict reports whether err is a lock, busy or serialization failure.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return true
		}
	}
	return false
}

func conflictOr(err error) error {
	if errors.Is(err, ErrConflict) || !IsConflict(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConflict, err)
}
