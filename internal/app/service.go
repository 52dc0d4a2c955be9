// Package service provides the core engine that wires the bus, registry,
// observer, profiler, scheduler and loader into one media loading pipeline.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/mosaic/internal/adapters/bus"
	"github.com/okian/mosaic/internal/adapters/loader"
	"github.com/okian/mosaic/internal/adapters/netprofile"
	"github.com/okian/mosaic/internal/adapters/observe"
	"github.com/okian/mosaic/internal/adapters/placeholder"
	"github.com/okian/mosaic/internal/adapters/registry"
	"github.com/okian/mosaic/internal/adapters/sched"
	"github.com/okian/mosaic/internal/domain/model"
	"github.com/okian/mosaic/internal/domain/policy"
	"github.com/okian/mosaic/pkg/logger"
)

// Service owns the component graph for the loading pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	bus          bus.Bus
	registry     *registry.InMemoryRegistry
	observer     observe.Observer
	profiler     netprofile.Profiler
	scheduler    *sched.Scheduler
	loader       *loader.RetryLoader
	placeholders *placeholder.Provider

	// Pluggable inputs
	fetcher       loader.Fetcher
	visibilitySrc observe.Source
	networkSignal netprofile.Signal

	// Configuration
	maxRetries      int
	backoffBase     time.Duration
	attemptTimeout  time.Duration
	interBatchDelay time.Duration
	deviceClass     model.DeviceClass
	batchTable      policy.BatchTable
	threshold       float64
	marginPX        int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithFetcher swaps the transfer implementation. Defaults to HTTP.
func WithFetcher(f loader.Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithVisibilitySource supplies viewport sightings. Without one, every
// watched resource is treated as immediately visible.
func WithVisibilitySource(src observe.Source) Option {
	return func(s *Service) {
		s.visibilitySrc = src
	}
}

// WithNetworkSignal supplies connection readings. Without one, the network
// class stays normal.
func WithNetworkSignal(sig netprofile.Signal) Option {
	return func(s *Service) {
		s.networkSignal = sig
	}
}

// WithMaxRetries bounds reattempts after the first failed fetch.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithBackoffBase sets the linear backoff unit between attempts.
func WithBackoffBase(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.backoffBase = d
		}
	}
}

// WithAttemptTimeout caps a single fetch attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.attemptTimeout = d
		}
	}
}

// WithInterBatchDelay spaces consecutive drain cycles.
func WithInterBatchDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interBatchDelay = d
		}
	}
}

// WithDeviceClass sets the device capability class.
func WithDeviceClass(dc model.DeviceClass) Option {
	return func(s *Service) {
		s.deviceClass = dc
	}
}

// WithBatchTable overrides the per-network-class batch sizes.
func WithBatchTable(t policy.BatchTable) Option {
	return func(s *Service) {
		if len(t) > 0 {
			s.batchTable = t
		}
	}
}

// WithVisibilityThreshold sets the minimum intersection ratio that counts
// as visible.
func WithVisibilityThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 && t <= 1 {
			s.threshold = t
		}
	}
}

// WithViewportMargin expands the observed region for prefetch.
func WithViewportMargin(px int) Option {
	return func(s *Service) {
		if px >= 0 {
			s.marginPX = px
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		maxRetries:      policy.DefaultMaxRetries,
		backoffBase:     policy.DefaultBackoffBase,
		attemptTimeout:  30 * time.Second,
		interBatchDelay: policy.DefaultInterBatchDelay,
		deviceClass:     model.DeviceStandard,
		batchTable:      policy.DefaultBatchTable(),
		threshold:       0.1,
		marginPX:        200,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds and connects the components. It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("engine")
	}

	s.logger.Info(ctx, "starting media loading engine...")

	s.bus = bus.New(bus.WithLogger(s.logger.Named("bus")))
	s.registry = registry.New(
		registry.WithMaxRetries(s.maxRetries),
		registry.WithLogger(s.logger.Named("registry")),
	)
	s.placeholders = placeholder.New()

	if s.fetcher == nil {
		s.fetcher = loader.NewHTTPFetcher(nil)
	}
	s.loader = loader.New(s.registry, s.bus, s.fetcher,
		loader.WithMaxRetries(s.maxRetries),
		loader.WithBackoffBase(s.backoffBase),
		loader.WithAttemptTimeout(s.attemptTimeout),
		loader.WithPlaceholders(s.placeholders),
		loader.WithLogger(s.logger.Named("loader")),
	)
	// The registry needs the loader before the first critical registration
	// so the bypass path has somewhere to dispatch.
	s.registry.SetLoader(s.loader)

	s.profiler = netprofile.New(s.bus, s.networkSignal,
		netprofile.WithLogger(s.logger.Named("netprofile")),
	)

	scheduler, err := sched.New(s.bus, s.registry, s.profiler, s.loader,
		sched.WithBatchTable(s.batchTable),
		sched.WithDeviceClass(s.deviceClass),
		sched.WithInterBatchDelay(s.interBatchDelay),
		sched.WithLogger(s.logger.Named("sched")),
	)
	if err != nil {
		return err
	}
	s.scheduler = scheduler

	s.observer = observe.New(s.visibilitySrc,
		observe.WithThreshold(s.threshold),
		observe.WithMargin(s.marginPX),
		observe.WithLogger(s.logger.Named("observe")),
	)

	s.started = true
	s.logger.Info(ctx, "media loading engine started",
		logger.Int("maxRetries", s.maxRetries),
		logger.String("deviceClass", s.deviceClass.String()),
		logger.Duration("interBatchDelay", s.interBatchDelay),
	)

	return nil
}

// Stop tears the component graph down. Registered resources survive in the
// registry for inspection; nothing new is scheduled afterwards.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping media loading engine...")

	if s.observer != nil {
		s.observer.Close()
	}
	if s.scheduler != nil {
		_ = s.scheduler.Close()
	}
	if s.profiler != nil {
		s.profiler.Close()
	}
	if s.bus != nil {
		_ = s.bus.Close()
	}

	s.started = false
	s.logger.Info(context.Background(), "media loading engine stopped")
}

// Register records a resource, applies its pending placeholder and arms
// visibility tracking. Critical resources load immediately instead of
// waiting to be seen. The returned id is the one callers use afterwards.
func (s *Service) Register(ctx context.Context, res model.Resource, sink registry.Sink) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return "", ErrNotStarted
	}

	id, err := s.registry.Register(ctx, res, sink)
	if err != nil {
		return "", err
	}

	if res.Tier == model.TierCritical {
		return id, nil
	}

	if err := s.registry.Apply(ctx, id, s.placeholders.Pending(res.Width, res.Height)); err != nil {
		s.logger.Warn(ctx, "pending placeholder not applied",
			logger.String("id", id), logger.Error(err))
	}

	if err := s.watch(id); err != nil {
		return "", err
	}
	return id, nil
}

// Unwatch stops visibility tracking for id and drops it from the pending
// queue if it was already sighted. A queued record returns to pending so a
// later Watch can pick it up again; one already handed to the loader runs
// to completion.
func (s *Service) Unwatch(ctx context.Context, id string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return
	}
	s.observer.Unwatch(id)
	s.scheduler.Remove(ctx, id)

	rec, err := s.registry.Get(ctx, id)
	if err != nil || rec.State != model.StateQueued {
		return
	}
	if err := s.registry.Release(ctx, id); err != nil {
		s.logger.Debug(ctx, "unwatched resource not released",
			logger.String("id", id), logger.Error(err))
	}
}

// Watch re-arms visibility tracking for a pending resource that was
// previously unwatched. Critical resources never need a watch.
func (s *Service) Watch(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}

	rec, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Tier == model.TierCritical {
		return nil
	}
	if rec.State != model.StatePending {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, id, rec.State)
	}
	return s.watch(id)
}

// ForceReload returns an errored resource to pending and re-arms it. A
// critical resource is redispatched immediately.
func (s *Service) ForceReload(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}

	if err := s.registry.ResetForReload(ctx, id); err != nil {
		return err
	}

	rec, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}

	if rec.Tier == model.TierCritical {
		if err := s.registry.MarkQueued(ctx, id); err != nil {
			return err
		}
		if err := s.registry.MarkLoading(ctx, id); err != nil {
			return err
		}
		go func() { _ = s.loader.Load(context.WithoutCancel(ctx), id) }()
		return nil
	}

	if err := s.registry.Apply(ctx, id, s.placeholders.Pending(rec.Width, rec.Height)); err != nil {
		s.logger.Warn(ctx, "pending placeholder not applied",
			logger.String("id", id), logger.Error(err))
	}
	return s.watch(id)
}

// Pause suspends drain cycles; in-flight loads finish.
func (s *Service) Pause(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return
	}
	s.bus.Publish(ctx, model.TopicPause, struct{}{})
}

// Resume lifts a pause and kicks the queue.
func (s *Service) Resume(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return
	}
	s.bus.Publish(ctx, model.TopicResume, struct{}{})
}

// Resource returns the current record for id.
func (s *Service) Resource(ctx context.Context, id string) (model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return model.Resource{}, ErrNotStarted
	}
	return s.registry.Get(ctx, id)
}

// Snapshot returns all records in registration order.
func (s *Service) Snapshot(ctx context.Context) []model.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil
	}
	return s.registry.Snapshot(ctx)
}

// NetworkClass reports the profiler's current reading.
func (s *Service) NetworkClass() model.NetworkClass {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return model.ClassNormal
	}
	return s.profiler.CurrentClass()
}

// Subscribe exposes the bus for callers that want lifecycle events.
func (s *Service) Subscribe(topic string, h bus.Handler) (bus.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return bus.Subscription{}, ErrNotStarted
	}
	return s.bus.Subscribe(topic, h)
}

// GetStats returns engine statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"maxRetries":  s.maxRetries,
		"deviceClass": s.deviceClass.String(),
	}

	if s.started {
		busStats := s.bus.Stats()
		stats["resources"] = s.registry.Len(ctx)
		stats["pending"] = s.scheduler.PendingLen()
		stats["draining"] = s.scheduler.Draining()
		stats["networkClass"] = s.profiler.CurrentClass().String()
		stats["busPublished"] = busStats.Published
		stats["busDelivered"] = busStats.Delivered
		stats["busHandlerFaults"] = busStats.HandlerFaults
	}

	return stats
}

// watch arms one-shot visibility tracking that feeds the bus.
func (s *Service) watch(id string) error {
	b := s.bus
	return s.observer.Watch(id, func(seen string) {
		b.Publish(context.Background(), model.TopicResourceVisible, model.VisibilityChange{ID: seen})
	})
}
