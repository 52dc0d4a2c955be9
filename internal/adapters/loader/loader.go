// Package loader performs the actual fetch of a single resource, with retry
// and linear backoff handled internally.
//
// A failing fetch is retried inside Load without returning control to the
// scheduler, so the batch slot stays occupied for the whole retry chain. Only
// retry exhaustion surfaces outward, and then only as a fallback/placeholder
// substitution plus an informational bus event, never as an error that could
// halt a drain cycle.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/okian/mosaic/internal/adapters/bus"
	"github.com/okian/mosaic/internal/domain/model"
	"github.com/okian/mosaic/internal/domain/policy"
	"github.com/okian/mosaic/pkg/logger"
	"github.com/okian/mosaic/pkg/metrics"
)

// Default loader configuration constants.
const (
	defaultAttemptTimeout = 30 * time.Second
)

// Registry is what the loader needs from resource bookkeeping.
type Registry interface {
	Get(ctx context.Context, id string) (model.Resource, error)
	MarkLoaded(ctx context.Context, id string, elapsed time.Duration) error
	MarkError(ctx context.Context, id string) error
	IncrementRetry(ctx context.Context, id string) (int, error)
	Apply(ctx context.Context, id string, source string) error
}

// Placeholders synthesizes the error stand-in applied when a resource has no
// fallback source.
type Placeholders interface {
	Error(width, height int) string
}

// Loader runs the fetch-and-retry chain for one resource at a time per id.
type Loader interface {
	// Load drives the resource at id to a terminal state. The resource
	// must already be in the loading state. Load blocks through the whole
	// retry chain; terminal failure is absorbed, not returned.
	Load(ctx context.Context, id string) error
}

// RetryLoader implements Loader over a Fetcher with juju/retry semantics.
type RetryLoader struct {
	registry     Registry
	bus          bus.Bus
	fetcher      Fetcher
	placeholders Placeholders

	maxRetries     int
	backoffBase    time.Duration
	attemptTimeout time.Duration
	clock          clock.Clock

	mu       sync.Mutex
	inflight map[string]struct{}

	logger logger.Logger
}

// New creates a loader with configuration options.
func New(reg Registry, b bus.Bus, f Fetcher, opts ...Option) *RetryLoader {
	l := &RetryLoader{
		registry:       reg,
		bus:            b,
		fetcher:        f,
		maxRetries:     policy.DefaultMaxRetries,
		backoffBase:    policy.DefaultBackoffBase,
		attemptTimeout: defaultAttemptTimeout,
		clock:          clock.WallClock,
		inflight:       make(map[string]struct{}),
		logger:         logger.Get().Named("loader"),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load drives the resource at id to a terminal state.
func (l *RetryLoader) Load(ctx context.Context, id string) error {
	if err := l.acquire(id); err != nil {
		return err
	}
	defer l.release(id)

	rec, err := l.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.State != model.StateLoading {
		return fmt.Errorf("%w: %s is %s", ErrNotLoading, id, rec.State)
	}

	start := l.clock.Now()
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, l.attemptTimeout)
			defer cancel()

			n, ferr := l.fetcher.Fetch(attemptCtx, rec.OriginalSource)
			if ferr != nil {
				return ferr
			}
			metrics.RecordFetchBytes(n)
			return nil
		},
		IsFatalError: func(err error) bool {
			// Shutdown is not a load failure; stop retrying at once.
			return errors.Is(err, context.Canceled)
		},
		NotifyFunc: func(lastError error, attempt int) {
			if attempt > l.maxRetries {
				return
			}
			count, rerr := l.registry.IncrementRetry(ctx, id)
			if rerr != nil {
				l.logger.Warn(ctx, "retry bookkeeping failed", logger.String("id", id), logger.Error(rerr))
				return
			}
			l.logger.Debug(ctx, "fetch attempt failed; retrying",
				logger.String("id", id),
				logger.Int("retry", count),
				logger.Error(lastError),
			)
		},
		Attempts:    l.maxRetries + 1,
		Delay:       l.backoffBase,
		BackoffFunc: l.linearBackoff,
		Clock:       l.clock,
		Stop:        ctx.Done(),
	})

	if err == nil {
		return l.finishLoaded(ctx, id, l.clock.Now().Sub(start))
	}
	if ctx.Err() != nil {
		// Canceled mid-chain; leave the record alone for the session
		// teardown to discard.
		return ctx.Err()
	}
	return l.finishErrored(ctx, id)
}

// finishLoaded records success and applies the real source.
func (l *RetryLoader) finishLoaded(ctx context.Context, id string, elapsed time.Duration) error {
	if err := l.registry.MarkLoaded(ctx, id, elapsed); err != nil {
		return err
	}
	rec, err := l.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := l.registry.Apply(ctx, id, rec.OriginalSource); err != nil {
		return err
	}

	metrics.RecordLoadLatency(float64(elapsed.Milliseconds()))
	l.logger.Info(ctx, "resource loaded",
		logger.String("id", id),
		logger.Duration("elapsed", elapsed),
		logger.Int("retries", rec.RetryCount),
	)
	l.bus.Publish(ctx, model.TopicResourceLoaded, model.LoadResult{ID: id, Elapsed: elapsed})
	return nil
}

// finishErrored records exhaustion and substitutes fallback content. The
// terminal failure is absorbed here; callers see a nil error.
func (l *RetryLoader) finishErrored(ctx context.Context, id string) error {
	if err := l.registry.MarkError(ctx, id); err != nil {
		return err
	}
	rec, err := l.registry.Get(ctx, id)
	if err != nil {
		return err
	}

	substitute := rec.FallbackSource
	if substitute == "" && l.placeholders != nil {
		substitute = l.placeholders.Error(rec.Width, rec.Height)
	}
	if substitute != "" {
		if err := l.registry.Apply(ctx, id, substitute); err != nil {
			return err
		}
	}

	l.logger.Warn(ctx, "retries exhausted",
		logger.String("id", id),
		logger.Int("retries", rec.RetryCount),
	)
	l.bus.Publish(ctx, model.TopicResourceError, model.LoadFailure{ID: id, RetryCount: rec.RetryCount})
	return nil
}

// linearBackoff grows the delay as backoffBase * retryCount.
func (l *RetryLoader) linearBackoff(_ time.Duration, attempt int) time.Duration {
	return policy.Backoff(l.backoffBase, attempt)
}

// acquire takes the single-flight slot for id.
func (l *RetryLoader) acquire(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.inflight[id]; busy {
		return fmt.Errorf("%w: %s", ErrAlreadyInFlight, id)
	}
	l.inflight[id] = struct{}{}
	return nil
}

func (l *RetryLoader) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inflight, id)
}

// InFlight reports whether a load for id is currently running.
func (l *RetryLoader) InFlight(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.inflight[id]
	return busy
}
