package netprofile

import (
	"github.com/okian/mosaic/pkg/logger"
)

// Option applies a configuration option to the profiler.
type Option func(*settings)

// WithLogger sets a custom logger for the profiler.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
