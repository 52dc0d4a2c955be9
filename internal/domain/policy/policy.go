// Package policy holds the admission-control and retry policy tables shared
// by the scheduler and the loader. Everything here is pure computation; the
// components that consult it own all state.
package policy

import (
	"time"

	"github.com/okian/mosaic/internal/domain/model"
)

// Default policy constants.
const (
	DefaultMaxRetries      = 2
	DefaultBackoffBase     = 1 * time.Second
	DefaultInterBatchDelay = 150 * time.Millisecond
)

// BatchTable maps a network class to the number of resources a drain cycle
// may admit on a standard device.
type BatchTable map[model.NetworkClass]int

// DefaultBatchTable returns the stock admission table.
func DefaultBatchTable() BatchTable {
	return BatchTable{
		model.ClassFast:   4,
		model.ClassNormal: 2,
		model.ClassSlow:   1,
	}
}

// BatchSize resolves the admission bound for one drain cycle. Constrained
// devices halve the tabled value, floored at one. Unknown classes fall back
// to the normal-class entry.
func BatchSize(table BatchTable, nc model.NetworkClass, dc model.DeviceClass) int {
	size, ok := table[nc]
	if !ok {
		size = table[model.ClassNormal]
	}
	if size < 1 {
		size = 1
	}
	if dc == model.DeviceConstrained {
		size /= 2
		if size < 1 {
			size = 1
		}
	}
	return size
}

// Backoff returns the linear backoff delay before retry number attempt
// (first retry is attempt 1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}

// TierBefore reports whether tier a drains strictly before tier b.
func TierBefore(a, b model.PriorityTier) bool {
	return a < b
}
