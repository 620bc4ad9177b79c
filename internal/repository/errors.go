package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint (user email) would be violated.
	ErrConflict = errors.New("repository: conflict")
)
