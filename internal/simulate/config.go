// Package simulate exercises the full loading pipeline in-process with
// synthetic resources, a scripted viewport and a drifting network signal.
package simulate

import (
	"time"
)

// Config controls one simulation run.
type Config struct {
	// NumResources is how many synthetic resources to register.
	NumResources int

	// CriticalShare is the fraction of resources registered as critical.
	CriticalShare float64

	// FailureRate is the probability that a single fetch attempt fails.
	FailureRate float64

	// MinLatency and MaxLatency bound the simulated fetch time.
	MinLatency time.Duration
	MaxLatency time.Duration

	// ScrollInterval spaces synthetic viewport sightings.
	ScrollInterval time.Duration

	// NetworkScript lists raw connection tiers the signal cycles through,
	// e.g. ["4g", "3g", "2g"]. Empty means a steady default.
	NetworkScript []string

	// NetworkInterval spaces the script steps.
	NetworkInterval time.Duration

	// DeviceClass is "standard" or "constrained".
	DeviceClass string

	// MaxRetries bounds reattempts per resource.
	MaxRetries int

	Verbose bool
}

// Defaults for simulation runs.
const (
	DefaultNumResources    = 40
	DefaultCriticalShare   = 0.05
	DefaultFailureRate     = 0.1
	DefaultMinLatency      = 5 * time.Millisecond
	DefaultMaxLatency      = 40 * time.Millisecond
	DefaultScrollInterval  = 10 * time.Millisecond
	DefaultNetworkInterval = 250 * time.Millisecond
	DefaultMaxRetries      = 2
)

// NewConfig returns a Config with defaults.
func NewConfig() *Config {
	return &Config{
		NumResources:    DefaultNumResources,
		CriticalShare:   DefaultCriticalShare,
		FailureRate:     DefaultFailureRate,
		MinLatency:      DefaultMinLatency,
		MaxLatency:      DefaultMaxLatency,
		ScrollInterval:  DefaultScrollInterval,
		NetworkInterval: DefaultNetworkInterval,
		DeviceClass:     "standard",
		MaxRetries:      DefaultMaxRetries,
	}
}
