package bus

import "errors"

// Sentinel kinds for bus errors.
var (
	ErrBusClosed            = errors.New("bus is closed")
	ErrNilHandler           = errors.New("nil handler")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)
