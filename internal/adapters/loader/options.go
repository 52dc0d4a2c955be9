package loader

import (
	"time"

	"github.com/juju/clock"

	"github.com/okian/mosaic/pkg/logger"
)

// Option applies a configuration option to the RetryLoader.
type Option func(*RetryLoader)

// WithMaxRetries sets the retry bound per resource.
func WithMaxRetries(n int) Option {
	return func(l *RetryLoader) {
		if n >= 0 {
			l.maxRetries = n
		}
	}
}

// WithBackoffBase sets the base delay for the linear backoff schedule.
func WithBackoffBase(d time.Duration) Option {
	return func(l *RetryLoader) {
		if d > 0 {
			l.backoffBase = d
		}
	}
}

// WithAttemptTimeout bounds a single fetch attempt. A stalled fetch counts
// as a failed attempt once the timeout fires.
func WithAttemptTimeout(d time.Duration) Option {
	return func(l *RetryLoader) {
		if d > 0 {
			l.attemptTimeout = d
		}
	}
}

// WithPlaceholders sets the provider used when an exhausted resource has no
// fallback source.
func WithPlaceholders(p Placeholders) Option {
	return func(l *RetryLoader) {
		if p != nil {
			l.placeholders = p
		}
	}
}

// WithClock sets the clock driving backoff delays.
func WithClock(c clock.Clock) Option {
	return func(l *RetryLoader) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger sets a custom logger for the loader.
func WithLogger(lg logger.Logger) Option {
	return func(l *RetryLoader) {
		if lg != nil {
			l.logger = lg
		}
	}
}
