// Package config defines process configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Layered loading lives in Load: defaults, optional YAML file, env vars.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// MaxRetries bounds reattempts after the first failed fetch.
	MaxRetries int `koanf:"max_retries"`

	// BackoffBaseMS is the linear backoff unit between fetch attempts.
	BackoffBaseMS int `koanf:"backoff_base_ms"`

	// AttemptTimeoutMS caps a single fetch attempt.
	AttemptTimeoutMS int `koanf:"attempt_timeout_ms"`

	// InterBatchDelayMS spaces consecutive drain cycles.
	InterBatchDelayMS int `koanf:"inter_batch_delay_ms"`

	// DeviceClass is "standard" or "constrained".
	DeviceClass string `koanf:"device_class"`

	// VisibilityThreshold is the minimum intersection ratio that counts
	// as visible, in (0, 1].
	VisibilityThreshold float64 `koanf:"visibility_threshold"`

	// ViewportMarginPX expands the observed region for prefetch.
	ViewportMarginPX int `koanf:"viewport_margin_px"`

	// BatchFast, BatchNormal and BatchSlow size drain batches per
	// network class.
	BatchFast   int `koanf:"batch_fast"`
	BatchNormal int `koanf:"batch_normal"`
	BatchSlow   int `koanf:"batch_slow"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		MaxRetries:          2,
		BackoffBaseMS:       1000,
		AttemptTimeoutMS:    30_000,
		InterBatchDelayMS:   150,
		DeviceClass:         "standard",
		VisibilityThreshold: 0.1,
		ViewportMarginPX:    200,
		BatchFast:           4,
		BatchNormal:         2,
		BatchSlow:           1,
	}
}
