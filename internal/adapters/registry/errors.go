package registry

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateID       = errors.New("duplicate resource id")
	ErrEmptySource       = errors.New("empty original source")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNoLoader          = errors.New("no loader wired for critical bypass")
)
