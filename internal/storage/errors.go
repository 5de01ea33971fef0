package storage

import "errors"

// Errors shared by the memory, postgres and clickhouse stores.
var (
	// ErrNotFound is returned when a position result or strategy
	// aggregate does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a record with the same key was
	// already written. Position results are keyed by (run_id, position_id),
	// execution records by record_id.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned for a nil record or an empty key.
	ErrInvalidInput = errors.New("invalid input")
)
