// Package registry holds the authoritative per-resource state records.
//
// The registry is the single writer of Resource state: every transition goes
// through one of the Mark methods, which enforce the lifecycle
// pending -> queued -> loading -> loaded|errored. Other components read
// copies through Get and never mutate records directly. The rendered element
// a resource paints into is referenced through its Sink, never owned.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/mosaic/internal/domain/model"
	"github.com/okian/mosaic/internal/domain/policy"
	"github.com/okian/mosaic/pkg/logger"
	"github.com/okian/mosaic/pkg/metrics"
)

// Sink receives the final source for a resource: the original locator on
// success, the fallback or a placeholder on terminal failure.
type Sink interface {
	Apply(source string)
}

// Loader is the registry's hook for critical-tier bypass loads.
type Loader interface {
	Load(ctx context.Context, id string) error
}

// Registry is the contract for resource state bookkeeping.
type Registry interface {
	// Register records a new resource. An empty ID is assigned one and
	// an unset tier defaults to normal.
	// Critical-tier resources are handed to the loader immediately,
	// bypassing the scheduler.
	Register(ctx context.Context, res model.Resource, sink Sink) (string, error)

	// Get returns a copy of the resource record.
	Get(ctx context.Context, id string) (model.Resource, error)

	// MarkQueued transitions pending -> queued.
	MarkQueued(ctx context.Context, id string) error

	// MarkLoading transitions queued -> loading.
	MarkLoading(ctx context.Context, id string) error

	// MarkLoaded transitions loading -> loaded and records the elapsed
	// load time.
	MarkLoaded(ctx context.Context, id string, elapsed time.Duration) error

	// MarkError transitions loading -> errored.
	MarkError(ctx context.Context, id string) error

	// IncrementRetry bumps the retry count of a loading resource and
	// returns the new value, clamped to the configured bound.
	IncrementRetry(ctx context.Context, id string) (int, error)

	// Release returns a queued resource to pending after it is dropped
	// from the scheduler, so a later sighting can re-enter the queue.
	Release(ctx context.Context, id string) error

	// ResetForReload re-arms an errored resource: errored -> pending with
	// a zeroed retry count. This is the only sanctioned external re-entry
	// into the lifecycle.
	ResetForReload(ctx context.Context, id string) error

	// Apply pushes the final source through the resource's sink.
	Apply(ctx context.Context, id string, source string) error

	// Len returns the number of tracked resources.
	Len(ctx context.Context) int

	// Snapshot returns copies of all records, in registration order.
	Snapshot(ctx context.Context) []model.Resource
}

type record struct {
	res  model.Resource
	sink Sink
}

// InMemoryRegistry implements Registry over a mutex-guarded map.
type InMemoryRegistry struct {
	mu         sync.RWMutex
	records    map[string]*record
	order      []string
	maxRetries int

	loader Loader
	logger logger.Logger
}

// New creates a registry with configuration options.
func New(opts ...Option) *InMemoryRegistry {
	r := &InMemoryRegistry{
		records:    make(map[string]*record),
		maxRetries: policy.DefaultMaxRetries,
		logger:     logger.Get().Named("registry"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// SetLoader wires the loader used for critical-tier bypass. It must be set
// before the first critical registration; the engine does this during Start.
func (r *InMemoryRegistry) SetLoader(l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loader = l
}

// Register records a new resource.
func (r *InMemoryRegistry) Register(ctx context.Context, res model.Resource, sink Sink) (string, error) {
	if res.OriginalSource == "" {
		return "", ErrEmptySource
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.Tier == model.TierUnset {
		res.Tier = model.TierNormal
	}
	res.State = model.StatePending
	res.RetryCount = 0
	res.RegisteredAt = time.Now()

	r.mu.Lock()
	if _, exists := r.records[res.ID]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, res.ID)
	}
	r.records[res.ID] = &record{res: res, sink: sink}
	r.order = append(r.order, res.ID)
	critical := res.Tier == model.TierCritical
	ld := r.loader
	r.mu.Unlock()

	metrics.RecordResourceRegistered(res.Tier.String())
	r.logger.Debug(ctx, "resource registered",
		logger.String("id", res.ID),
		logger.String("tier", res.Tier.String()),
	)

	if critical {
		if ld == nil {
			return "", ErrNoLoader
		}
		// Critical resources never see the pending list: straight to
		// loading and into the loader.
		if err := r.MarkQueued(ctx, res.ID); err != nil {
			return "", err
		}
		if err := r.MarkLoading(ctx, res.ID); err != nil {
			return "", err
		}
		// The load must outlive the registration call; a canceled caller
		// context would abort the retry chain mid-flight.
		loadCtx := context.WithoutCancel(ctx)
		go func() {
			if err := ld.Load(loadCtx, res.ID); err != nil {
				r.logger.Error(loadCtx, "critical load failed", logger.String("id", res.ID), logger.Error(err))
			}
		}()
	}

	return res.ID, nil
}

// Get returns a copy of the resource record.
func (r *InMemoryRegistry) Get(ctx context.Context, id string) (model.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return model.Resource{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.res, nil
}

// transition moves a record from one state to exactly the next.
func (r *InMemoryRegistry) transition(id string, from, to model.State, mutate func(*model.Resource)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.res.State != from {
		return fmt.Errorf("%w: %s is %s, want %s", ErrInvalidTransition, id, rec.res.State, from)
	}
	rec.res.State = to
	if mutate != nil {
		mutate(&rec.res)
	}
	return nil
}

// MarkQueued transitions pending -> queued.
func (r *InMemoryRegistry) MarkQueued(ctx context.Context, id string) error {
	return r.transition(id, model.StatePending, model.StateQueued, nil)
}

// MarkLoading transitions queued -> loading.
func (r *InMemoryRegistry) MarkLoading(ctx context.Context, id string) error {
	return r.transition(id, model.StateQueued, model.StateLoading, nil)
}

// MarkLoaded transitions loading -> loaded.
func (r *InMemoryRegistry) MarkLoaded(ctx context.Context, id string, elapsed time.Duration) error {
	err := r.transition(id, model.StateLoading, model.StateLoaded, func(res *model.Resource) {
		res.Elapsed = elapsed
	})
	if err != nil {
		return err
	}
	metrics.RecordResourceLoaded()
	return nil
}

// MarkError transitions loading -> errored.
func (r *InMemoryRegistry) MarkError(ctx context.Context, id string) error {
	err := r.transition(id, model.StateLoading, model.StateErrored, nil)
	if err != nil {
		return err
	}
	metrics.RecordResourceErrored()
	return nil
}

// IncrementRetry bumps a loading resource's retry count, clamped at the
// configured bound. The clamp keeps the retry invariant even if the loader
// over-notifies.
func (r *InMemoryRegistry) IncrementRetry(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.res.State != model.StateLoading {
		return rec.res.RetryCount, fmt.Errorf("%w: %s is %s, want loading", ErrInvalidTransition, id, rec.res.State)
	}
	if rec.res.RetryCount < r.maxRetries {
		rec.res.RetryCount++
		metrics.RecordLoadRetry()
	}
	return rec.res.RetryCount, nil
}

// Release returns a queued resource to pending.
func (r *InMemoryRegistry) Release(ctx context.Context, id string) error {
	return r.transition(id, model.StateQueued, model.StatePending, nil)
}

// ResetForReload re-arms an errored resource.
func (r *InMemoryRegistry) ResetForReload(ctx context.Context, id string) error {
	return r.transition(id, model.StateErrored, model.StatePending, func(res *model.Resource) {
		res.RetryCount = 0
		res.Elapsed = 0
		res.AppliedSource = ""
	})
}

// Apply pushes the final source through the resource's sink.
func (r *InMemoryRegistry) Apply(ctx context.Context, id string, source string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.res.AppliedSource = source
	sink := rec.sink
	r.mu.Unlock()

	if sink != nil {
		sink.Apply(source)
	}
	return nil
}

// Len returns the number of tracked resources.
func (r *InMemoryRegistry) Len(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Snapshot returns copies of all records in registration order.
func (r *InMemoryRegistry) Snapshot(ctx context.Context) []model.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Resource, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].res)
	}
	return out
}
