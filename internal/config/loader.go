package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if MOSAIC_CONFIG is set
//  3. env (prefix MOSAIC_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("MOSAIC_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: MOSAIC_ADDR, MOSAIC_MAX_RETRIES, ...
	// Map env keys like MOSAIC_MAX_RETRIES -> max_retries (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("MOSAIC_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "mosaic_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	}
	if cfg.BackoffBaseMS < 0 {
		return fmt.Errorf("%w: backoff_base_ms must not be negative", ErrInvalidConfig)
	}
	if cfg.AttemptTimeoutMS <= 0 {
		return fmt.Errorf("%w: attempt_timeout_ms must be positive", ErrInvalidConfig)
	}
	if cfg.VisibilityThreshold <= 0 || cfg.VisibilityThreshold > 1 {
		return fmt.Errorf("%w: visibility_threshold must be in (0, 1]", ErrInvalidConfig)
	}
	switch cfg.DeviceClass {
	case "standard", "constrained":
	default:
		return fmt.Errorf("%w: unknown device_class %q", ErrInvalidConfig, cfg.DeviceClass)
	}
	for name, size := range map[string]int{
		"batch_fast":   cfg.BatchFast,
		"batch_normal": cfg.BatchNormal,
		"batch_slow":   cfg.BatchSlow,
	} {
		if size < 1 {
			return fmt.Errorf("%w: %s must be at least 1", ErrInvalidConfig, name)
		}
	}
	return nil
}
