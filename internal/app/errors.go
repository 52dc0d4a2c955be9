package service

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNotStarted = errors.New("engine not started")
	ErrNotPending = errors.New("resource not pending")
)
