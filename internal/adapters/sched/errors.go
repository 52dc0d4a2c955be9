package sched

import "errors"

// Sentinel kinds for scheduler errors.
var (
	ErrCriticalTier    = errors.New("critical tier bypasses the scheduler")
	ErrSchedulerClosed = errors.New("scheduler is closed")
)
