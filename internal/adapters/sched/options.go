package sched

import (
	"time"

	"github.com/juju/clock"

	"github.com/okian/mosaic/internal/domain/model"
	"github.com/okian/mosaic/internal/domain/policy"
	"github.com/okian/mosaic/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithBatchTable sets the per-network-class admission table.
func WithBatchTable(t policy.BatchTable) Option {
	return func(s *Scheduler) {
		if len(t) > 0 {
			s.batchTable = t
		}
	}
}

// WithDeviceClass sets the device class batch sizes are derated for.
func WithDeviceClass(d model.DeviceClass) Option {
	return func(s *Scheduler) {
		s.device = d
	}
}

// WithInterBatchDelay sets the rest inserted between drain cycles.
func WithInterBatchDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithClock sets the clock driving the inter-batch delay.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
