package store

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned by Get for an unknown record ID.
	ErrNotFound = errors.New("record not found")

	// ErrStorageFull indicates the local store ran out of space. Fatal to
	// the operation, not to the process; puts are retried with backoff.
	ErrStorageFull = errors.New("local storage full")

	// ErrCorrupt indicates the local database is damaged. Reads are not
	// retried so corruption is surfaced instead of masked.
	ErrCorrupt = errors.New("local storage corrupt")
)

// mapSQLiteError translates driver errors into the store's taxonomy. Errors
// with no mapping pass through unchanged and are treated as transient by
// the caller.
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}

	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}

	switch se.Code {
	case sqlite3.ErrFull, sqlite3.ErrTooBig:
		return errors.Join(ErrStorageFull, err)
	case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
		return errors.Join(ErrCorrupt, err)
	default:
		return err
	}
}
