package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("persistence: duplicate key")
	// ErrSessionEnded is returned when a write targets a session that has
	// already transitioned to the ended state.
	ErrSessionEnded = errors.New("persistence: session ended")
	// ErrConstraintViolation is returned when stored data would violate a
	// schema constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
