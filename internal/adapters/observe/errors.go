package observe

import "errors"

// Sentinel kinds for observer errors.
var (
	ErrNilCallback    = errors.New("nil visibility callback")
	ErrObserverClosed = errors.New("observer is closed")
)
