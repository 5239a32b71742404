package queue

import "errors"

var (
	// ErrValidation marks requests missing required identifiers.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an absent room, entry, or token.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation against an entry in a terminal state.
	ErrConflict = errors.New("conflict")
)
