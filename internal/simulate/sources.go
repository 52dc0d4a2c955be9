package simulate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/mosaic/internal/adapters/observe"
)

// stubFetcher simulates network transfers with configurable latency and a
// per-attempt failure probability.
type stubFetcher struct {
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64

	mu       sync.Mutex
	attempts int
	failures int
}

func newStubFetcher(config *Config) *stubFetcher {
	return &stubFetcher{
		minLatency:  config.MinLatency,
		maxLatency:  config.MaxLatency,
		failureRate: config.FailureRate,
	}
}

func (f *stubFetcher) Fetch(ctx context.Context, _ string) (int64, error) {
	latency := f.minLatency
	if f.maxLatency > f.minLatency {
		latency += time.Duration(getRandomFloat() * float64(f.maxLatency-f.minLatency))
	}
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if getRandomFloat() < f.failureRate {
		f.failures++
		return 0, errors.New("simulated fetch failure")
	}
	return int64(1024 + getRandomFloat()*512*1024), nil
}

func (f *stubFetcher) counts() (attempts, failures int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts, f.failures
}

// scrollingViewport replays sightings for queued ids at a fixed interval,
// imitating a user scrolling down a page.
type scrollingViewport struct {
	interval time.Duration
	ch       chan observe.Sighting

	mu     sync.Mutex
	queue  []string
	closed bool
	done   chan struct{}
}

func newScrollingViewport(interval time.Duration) *scrollingViewport {
	v := &scrollingViewport{
		interval: interval,
		ch:       make(chan observe.Sighting, 64),
		done:     make(chan struct{}),
	}
	go v.run()
	return v
}

func (v *scrollingViewport) Sightings() <-chan observe.Sighting { return v.ch }

func (v *scrollingViewport) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	close(v.done)
	return nil
}

// scrollTo queues an id for a future sighting, preserving page order.
func (v *scrollingViewport) scrollTo(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.queue = append(v.queue, id)
}

func (v *scrollingViewport) run() {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-v.done:
			return
		case <-ticker.C:
			v.mu.Lock()
			if len(v.queue) == 0 || v.closed {
				v.mu.Unlock()
				continue
			}
			id := v.queue[0]
			v.queue = v.queue[1:]
			v.mu.Unlock()

			select {
			case v.ch <- observe.Sighting{ID: id, Ratio: 1}:
			case <-v.done:
				return
			}
		}
	}
}

// driftingSignal cycles through a script of raw connection tiers.
type driftingSignal struct {
	interval time.Duration
	script   []string

	mu    sync.Mutex
	index int
	pulse chan struct{}
	done  chan struct{}
}

func newDriftingSignal(script []string, interval time.Duration) *driftingSignal {
	s := &driftingSignal{
		interval: interval,
		script:   script,
		pulse:    make(chan struct{}, 4),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *driftingSignal) RawTier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script[s.index%len(s.script)]
}

func (s *driftingSignal) Changes() <-chan struct{} { return s.pulse }

func (s *driftingSignal) stop() { close(s.done) }

func (s *driftingSignal) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.index++
			s.mu.Unlock()
			select {
			case s.pulse <- struct{}{}:
			default:
			}
		}
	}
}
