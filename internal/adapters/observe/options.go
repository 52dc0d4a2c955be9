package observe

import (
	"github.com/okian/mosaic/pkg/logger"
)

// Option applies a configuration option to the observer.
type Option func(*settings)

// WithThreshold sets the fraction of a resource's area that must be visible
// before its watch fires.
func WithThreshold(t float64) Option {
	return func(s *settings) {
		if t > 0 && t <= 1 {
			s.threshold = t
		}
	}
}

// WithMargin sets how far ahead of the visible area, in pixels, a resource
// counts as approaching visibility. The margin is advisory for sources that
// pre-expand their detection region.
func WithMargin(px int) Option {
	return func(s *settings) {
		if px >= 0 {
			s.margin = px
		}
	}
}

// WithLogger sets a custom logger for the observer.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
