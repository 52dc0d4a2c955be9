package bus

import (
	"github.com/okian/mosaic/pkg/logger"
)

// Option applies a configuration option to the InMemoryBus.
type Option func(*InMemoryBus)

// WithLogger sets a custom logger for the bus.
func WithLogger(l logger.Logger) Option {
	return func(b *InMemoryBus) {
		if l != nil {
			b.logger = l
		}
	}
}
