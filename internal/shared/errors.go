package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation on create.
	ErrConflict = errors.New("already exists")
	// ErrInvalidTransition indicates a status change that the lifecycle forbids.
	ErrInvalidTransition = errors.New("status transition not allowed")
)
