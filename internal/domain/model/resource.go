// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a tracked resource.
//
// Valid transitions form a straight line with a single fork at the end:
//
//	pending -> queued -> loading -> loaded
//	                             -> errored
//
// No transition skips a state. A queued resource dropped from scheduling
// returns to pending; an errored resource re-enters loading only through
// the loader's internal retry chain, never from the outside.
type State uint8

const (
	StatePending State = iota
	StateQueued
	StateLoading
	StateLoaded
	StateErrored
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateQueued:
		return "queued"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateLoaded || s == StateErrored
}

// PriorityTier ranks resources for drain order. Lower values drain first.
// TierCritical bypasses scheduling entirely and never enters the pending list.
type PriorityTier uint8

const (
	// TierUnset is the zero value. Registration treats it as TierNormal,
	// so an untagged resource never rides the critical bypass.
	TierUnset PriorityTier = iota
	TierCritical
	TierHigh
	TierNormal
	TierLow
)

// String returns the lowercase name of the tier.
func (t PriorityTier) String() string {
	switch t {
	case TierUnset:
		return "unset"
	case TierCritical:
		return "critical"
	case TierHigh:
		return "high"
	case TierNormal:
		return "normal"
	case TierLow:
		return "low"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// ParseTier converts a tier name to a PriorityTier.
func ParseTier(s string) (PriorityTier, error) {
	switch s {
	case "critical":
		return TierCritical, nil
	case "high":
		return TierHigh, nil
	case "normal":
		return TierNormal, nil
	case "low":
		return TierLow, nil
	default:
		return TierNormal, fmt.Errorf("unknown priority tier %q", s)
	}
}

// NetworkClass is the coarse connection-quality tier the scheduler sizes
// batches from. It is recomputed on every change notification, never stored
// beyond the profiler.
type NetworkClass uint8

const (
	ClassFast NetworkClass = iota
	ClassNormal
	ClassSlow
)

// String returns the lowercase name of the class.
func (c NetworkClass) String() string {
	switch c {
	case ClassFast:
		return "fast"
	case ClassNormal:
		return "normal"
	case ClassSlow:
		return "slow"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// DeviceClass distinguishes full-powered hosts from constrained ones.
// Constrained devices halve every batch size, floored at one.
type DeviceClass uint8

const (
	DeviceStandard DeviceClass = iota
	DeviceConstrained
)

// String returns the lowercase name of the device class.
func (d DeviceClass) String() string {
	switch d {
	case DeviceStandard:
		return "standard"
	case DeviceConstrained:
		return "constrained"
	default:
		return fmt.Sprintf("device(%d)", uint8(d))
	}
}

// ParseDeviceClass converts a device class name to a DeviceClass.
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch s {
	case "standard", "":
		return DeviceStandard, nil
	case "constrained":
		return DeviceConstrained, nil
	default:
		return DeviceStandard, fmt.Errorf("unknown device class %q", s)
	}
}

// Resource is one media item tracked for optimized loading. The registry
// exclusively owns the authoritative record; everyone else reads copies
// through its accessors.
type Resource struct {
	ID             string       // stable identifier, unique per session
	OriginalSource string       // the true media locator
	FallbackSource string       // optional alternate applied on terminal failure
	Tier           PriorityTier // assigned once at registration, immutable after

	// Declared dimensions, used to synthesize placeholders.
	Width  int
	Height int

	State      State
	RetryCount int

	RegisteredAt time.Time
	// Elapsed is the wall time from loading start to terminal outcome.
	Elapsed time.Duration
	// AppliedSource is what was last pushed to the rendered element: the
	// original source on success, the fallback or a placeholder on failure.
	AppliedSource string
}
