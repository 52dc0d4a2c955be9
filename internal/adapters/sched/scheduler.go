// Package sched decides when a queued resource starts loading.
//
// The pending list is kept sorted by priority tier, insertion order preserved
// within a tier, so nothing is ever starved by reordering. A drain cycle
// admits up to the batch size the current network and device class allow,
// dispatches the batch concurrently, awaits it, then rests briefly before the
// next cycle. The drain routine is single-flight: the explicit idle/draining
// state machine rejects re-entrant starts instead of queueing them. A batch
// already admitted is never interrupted, not by pause and not by a
// higher-priority arrival; the batch boundary is the only preemption point.
package sched

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/okian/mosaic/internal/adapters/bus"
	"github.com/okian/mosaic/internal/domain/model"
	"github.com/okian/mosaic/internal/domain/policy"
	"github.com/okian/mosaic/pkg/logger"
	"github.com/okian/mosaic/pkg/metrics"
)

// Registry is what the scheduler needs from resource bookkeeping.
type Registry interface {
	Get(ctx context.Context, id string) (model.Resource, error)
	MarkQueued(ctx context.Context, id string) error
	MarkLoading(ctx context.Context, id string) error
}

// Profiler reports the network class read fresh at every cycle start.
type Profiler interface {
	CurrentClass() model.NetworkClass
}

// Loader runs one resource to a terminal state, retries included.
type Loader interface {
	Load(ctx context.Context, id string) error
}

// drainState is the scheduler's explicit single-flight guard.
type drainState uint8

const (
	stateIdle drainState = iota
	stateDraining
)

type entry struct {
	id   string
	tier model.PriorityTier
	seq  uint64
}

// Scheduler admits queued resources to the loader in priority order.
type Scheduler struct {
	bus      bus.Bus
	registry Registry
	profiler Profiler
	loader   Loader

	clock      clock.Clock
	batchTable policy.BatchTable
	device     model.DeviceClass
	delay      time.Duration

	mu      sync.Mutex
	pending []entry
	seq     uint64
	state   drainState
	paused  bool
	closed  bool

	done   chan struct{}
	logger logger.Logger
}

// New creates a scheduler and subscribes it to the visibility, pause and
// resume topics.
func New(b bus.Bus, reg Registry, prof Profiler, ld Loader, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		bus:        b,
		registry:   reg,
		profiler:   prof,
		loader:     ld,
		clock:      clock.WallClock,
		batchTable: policy.DefaultBatchTable(),
		device:     model.DeviceStandard,
		delay:      policy.DefaultInterBatchDelay,
		done:       make(chan struct{}),
		logger:     logger.Get().Named("sched"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if _, err := b.Subscribe(model.TopicResourceVisible, s.onVisible); err != nil {
		return nil, err
	}
	if _, err := b.Subscribe(model.TopicPause, func(ctx context.Context, _ any) { s.Pause(ctx) }); err != nil {
		return nil, err
	}
	if _, err := b.Subscribe(model.TopicResume, func(ctx context.Context, _ any) { s.Resume(ctx) }); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) onVisible(ctx context.Context, payload any) {
	v, ok := payload.(model.VisibilityChange)
	if !ok {
		return
	}
	if err := s.Enqueue(ctx, v.ID); err != nil {
		// Re-sighted resources that already left the pending state land
		// here; nothing to do.
		s.logger.Debug(ctx, "visibility event not enqueued", logger.String("id", v.ID), logger.Error(err))
	}
}

// Enqueue marks a resource queued and inserts it into the pending list.
func (s *Scheduler) Enqueue(ctx context.Context, id string) error {
	rec, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Tier == model.TierCritical {
		return ErrCriticalTier
	}
	if err := s.registry.MarkQueued(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.seq++
	s.pending = append(s.pending, entry{id: id, tier: rec.Tier, seq: s.seq})
	sort.Slice(s.pending, func(i, j int) bool {
		if s.pending[i].tier != s.pending[j].tier {
			return policy.TierBefore(s.pending[i].tier, s.pending[j].tier)
		}
		return s.pending[i].seq < s.pending[j].seq
	})
	n := len(s.pending)
	s.mu.Unlock()

	metrics.UpdatePendingResources(n)
	s.kick(ctx)
	return nil
}

// Remove drops a pending resource before it is dequeued. Best-effort: ids
// not in the pending list are ignored, and a resource already handed to the
// loader runs to completion.
func (s *Scheduler) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	for i, e := range s.pending {
		if e.id == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	n := len(s.pending)
	s.mu.Unlock()
	metrics.UpdatePendingResources(n)
}

// Pause halts further cycle starts. An in-flight batch still completes.
func (s *Scheduler) Pause(ctx context.Context) {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	metrics.UpdateSchedulerPaused(true)
	s.logger.Info(ctx, "draining paused")
}

// Resume restarts draining if anything is pending.
func (s *Scheduler) Resume(ctx context.Context) {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	metrics.UpdateSchedulerPaused(false)
	s.logger.Info(ctx, "draining resumed")
	s.kick(ctx)
}

// PendingIDs returns the ids currently pending, in drain order.
func (s *Scheduler) PendingIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.pending))
	for i, e := range s.pending {
		out[i] = e.id
	}
	return out
}

// PendingLen returns the pending list length.
func (s *Scheduler) PendingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Draining reports whether a drain cycle is currently active.
func (s *Scheduler) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateDraining
}

// Close stops the scheduler. Pending entries are abandoned; the registry
// keeps their records for the session teardown.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// kick starts a drain goroutine unless one is active, the scheduler is
// paused, or nothing is pending.
func (s *Scheduler) kick(ctx context.Context) {
	s.mu.Lock()
	if s.state == stateDraining || s.paused || s.closed || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.state = stateDraining
	s.mu.Unlock()

	// The drain loop outlives any single caller; a request-scoped context
	// dying must not stall the queue.
	go s.drain(context.WithoutCancel(ctx))
}

// drain runs cycles until the pending list empties, pause takes effect, or
// the scheduler shuts down. It is the only writer of the drain state while
// active.
func (s *Scheduler) drain(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.paused || s.closed || len(s.pending) == 0 {
			// Going idle under the same lock as the emptiness check
			// keeps a racing Enqueue from seeing a stale draining
			// state and losing its wakeup.
			s.state = stateIdle
			s.mu.Unlock()
			return
		}

		class := s.profiler.CurrentClass()
		size := policy.BatchSize(s.batchTable, class, s.device)
		if size > len(s.pending) {
			size = len(s.pending)
		}
		batch := make([]entry, size)
		copy(batch, s.pending[:size])
		s.pending = append([]entry(nil), s.pending[size:]...)
		remaining := len(s.pending)
		s.mu.Unlock()

		metrics.UpdateBatchSize(size)
		metrics.UpdatePendingResources(remaining)

		s.runBatch(ctx, batch, class)
		metrics.RecordDrainCycle()

		select {
		case <-s.clock.After(s.delay):
		case <-s.done:
			s.setIdle()
			return
		}
	}
}

// runBatch transitions the batch to loading and dispatches it concurrently,
// waiting for every member to reach a terminal outcome.
func (s *Scheduler) runBatch(ctx context.Context, batch []entry, class model.NetworkClass) {
	admitted := make([]string, 0, len(batch))
	for _, e := range batch {
		if err := s.registry.MarkLoading(ctx, e.id); err != nil {
			// Typically a resource torn down after dequeue; drop it.
			s.logger.Debug(ctx, "batch member dropped", logger.String("id", e.id), logger.Error(err))
			continue
		}
		admitted = append(admitted, e.id)
	}

	s.logger.Debug(ctx, "drain cycle admitting batch",
		logger.Int("size", len(admitted)),
		logger.String("class", class.String()),
	)

	// A plain group: one failing member must not cancel its batch mates.
	var g errgroup.Group
	for _, id := range admitted {
		id := id
		g.Go(func() error {
			return s.loader.Load(ctx, id)
		})
	}
	if err := g.Wait(); err != nil {
		// Terminal load failures are absorbed by the loader; anything
		// surfacing here is bookkeeping trouble, not a fetch error.
		s.logger.Error(ctx, "batch dispatch error", logger.Error(err))
	}
}

func (s *Scheduler) setIdle() {
	s.mu.Lock()
	s.state = stateIdle
	s.mu.Unlock()
}
