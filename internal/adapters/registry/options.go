package registry

import (
	"github.com/okian/mosaic/pkg/logger"
)

// Option applies a configuration option to the InMemoryRegistry.
type Option func(*InMemoryRegistry)

// WithMaxRetries sets the retry bound used to clamp retry counts.
func WithMaxRetries(n int) Option {
	return func(r *InMemoryRegistry) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithLogger sets a custom logger for the registry.
func WithLogger(l logger.Logger) Option {
	return func(r *InMemoryRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}
