package positionstore

import "errors"

var (
	// ErrInvalidDSN is returned when Config.DSN is empty.
	ErrInvalidDSN = errors.New("positionstore: invalid or empty DSN")

	// ErrUnsupportedDriver is returned for any Driver value other than
	// "postgres" or "sqlite3".
	ErrUnsupportedDriver = errors.New("positionstore: unsupported driver")

	// ErrMigrationFailed wraps any error from applying schema migrations.
	ErrMigrationFailed = errors.New("positionstore: migration failed")

	// ErrConnectionFailed is returned once retry attempts are exhausted.
	ErrConnectionFailed = errors.New("positionstore: connection failed")

	// ErrPositionNotFound is returned by Get for a symbol with no row.
	ErrPositionNotFound = errors.New("positionstore: position not found")

	// ErrMultiplePositions names a breach of the single-open-position-per-
	// symbol invariant. No Store method returns it: Upsert replaces any
	// existing row for the symbol instead.
	ErrMultiplePositions = errors.New("positionstore: symbol already has an open position")
)
