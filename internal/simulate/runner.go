package simulate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	service "github.com/okian/mosaic/internal/app"
	"github.com/okian/mosaic/internal/domain/model"
	"github.com/okian/mosaic/pkg/logger"
)

// Stats aggregates the outcome of a simulation run.
type Stats struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Registered    int
	Loaded        int64
	Errored       int64
	FetchAttempts int
	FetchFailures int
}

// Run executes one complete simulation and reports the outcome.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("simulate")

	log.Info(ctx, "starting simulation",
		logger.Int("resources", config.NumResources),
		logger.Any("failureRate", config.FailureRate),
		logger.String("deviceClass", config.DeviceClass),
		logger.Int("maxRetries", config.MaxRetries),
	)

	deviceClass, err := model.ParseDeviceClass(config.DeviceClass)
	if err != nil {
		return nil, err
	}

	fetcher := newStubFetcher(config)
	viewport := newScrollingViewport(config.ScrollInterval)

	opts := []service.Option{
		service.WithFetcher(fetcher),
		service.WithVisibilitySource(viewport),
		service.WithDeviceClass(deviceClass),
		service.WithMaxRetries(config.MaxRetries),
		service.WithBackoffBase(10 * time.Millisecond),
		service.WithInterBatchDelay(5 * time.Millisecond),
	}

	var signal *driftingSignal
	if len(config.NetworkScript) > 0 {
		signal = newDriftingSignal(config.NetworkScript, config.NetworkInterval)
		defer signal.stop()
		opts = append(opts, service.WithNetworkSignal(signal))
	}

	engine := service.New(opts...)
	if err := engine.Start(ctx); err != nil {
		return nil, fmt.Errorf("engine start failed: %w", err)
	}
	defer engine.Stop()

	var loaded, errored atomic.Int64
	settled := make(chan struct{}, config.NumResources)

	if _, err := engine.Subscribe(model.TopicResourceLoaded, func(_ context.Context, _ any) {
		loaded.Add(1)
		settled <- struct{}{}
	}); err != nil {
		return nil, err
	}
	if _, err := engine.Subscribe(model.TopicResourceError, func(_ context.Context, _ any) {
		errored.Add(1)
		settled <- struct{}{}
	}); err != nil {
		return nil, err
	}

	resources := generateResources(config)
	for _, res := range resources {
		id, err := engine.Register(ctx, res, nil)
		if err != nil {
			return nil, fmt.Errorf("registration failed: %w", err)
		}
		if res.Tier != model.TierCritical {
			viewport.scrollTo(id)
		}
		if config.Verbose {
			log.Debug(ctx, "registered resource",
				logger.String("id", id),
				logger.String("tier", res.Tier.String()),
			)
		}
	}
	stats.Registered = len(resources)

	for settledCount := 0; settledCount < len(resources); {
		select {
		case <-settled:
			settledCount++
		case <-ctx.Done():
			return nil, fmt.Errorf("simulation cut short: %w", ctx.Err())
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	stats.Loaded = loaded.Load()
	stats.Errored = errored.Load()
	stats.FetchAttempts, stats.FetchFailures = fetcher.counts()

	log.Info(ctx, "simulation finished",
		logger.Int("registered", stats.Registered),
		logger.Int("loaded", int(stats.Loaded)),
		logger.Int("errored", int(stats.Errored)),
		logger.Int("fetchAttempts", stats.FetchAttempts),
		logger.Int("fetchFailures", stats.FetchFailures),
		logger.Duration("duration", stats.Duration),
		logger.String("networkClass", engine.NetworkClass().String()),
	)

	return stats, nil
}
