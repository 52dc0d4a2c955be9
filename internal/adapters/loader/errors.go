package loader

import "errors"

// Sentinel kinds for loader errors.
var (
	ErrNotLoading      = errors.New("resource not in loading state")
	ErrAlreadyInFlight = errors.New("load already in flight")
	ErrBadStatus       = errors.New("unexpected response status")
)
