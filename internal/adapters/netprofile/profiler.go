// Package netprofile classifies the host connection into the coarse quality
// tiers the scheduler sizes batches from.
//
// The mapping from raw signal tiers to a NetworkClass is a fixed lookup
// table; the scheduler never reads raw signals. Hosts without a connection
// signal get the default-class variant, which always reports normal.
package netprofile

import (
	"context"
	"sync"

	"github.com/okian/mosaic/internal/adapters/bus"
	"github.com/okian/mosaic/internal/domain/model"
	"github.com/okian/mosaic/pkg/logger"
	"github.com/okian/mosaic/pkg/metrics"
)

// Signal abstracts the host's connection-quality signal.
type Signal interface {
	// RawTier reports the current raw connection tier, e.g. "slow-2g",
	// "2g", "3g", "4g".
	RawTier() string

	// Changes pulses whenever the raw tier may have changed. The channel
	// closes when the signal goes away.
	Changes() <-chan struct{}
}

// Profiler reports the current network class.
type Profiler interface {
	CurrentClass() model.NetworkClass
	Close() error
}

// classify is the fixed raw-tier lookup table. Unknown tiers map to normal.
func classify(raw string) model.NetworkClass {
	switch raw {
	case "slow-2g", "2g":
		return model.ClassSlow
	case "3g":
		return model.ClassNormal
	case "4g":
		return model.ClassFast
	default:
		return model.ClassNormal
	}
}

// New builds a Profiler over the given signal, publishing a NetworkChange on
// the bus whenever the detected class actually changes. A nil signal yields
// the default-class variant.
func New(b bus.Bus, sig Signal, opts ...Option) Profiler {
	cfg := settings{logger: logger.Get().Named("netprofile")}
	for _, opt := range opts {
		opt(&cfg)
	}

	if sig == nil {
		cfg.logger.Info(context.Background(), "no connection signal; defaulting to normal class")
		return defaultProfiler{}
	}

	p := &signalProfiler{
		settings: cfg,
		bus:      b,
		sig:      sig,
		class:    classify(sig.RawTier()),
		done:     make(chan struct{}),
	}
	metrics.UpdateNetworkClass(p.class.String())
	go p.run()
	return p
}

type settings struct {
	logger logger.Logger
}

// signalProfiler tracks a live connection signal.
type signalProfiler struct {
	settings

	bus bus.Bus
	sig Signal

	mu    sync.RWMutex
	class model.NetworkClass

	done   chan struct{}
	closed sync.Once
}

func (p *signalProfiler) run() {
	ctx := context.Background()
	for {
		select {
		case <-p.done:
			return
		case _, ok := <-p.sig.Changes():
			if !ok {
				return
			}
			next := classify(p.sig.RawTier())

			p.mu.Lock()
			changed := next != p.class
			p.class = next
			p.mu.Unlock()

			if !changed {
				continue
			}

			metrics.UpdateNetworkClass(next.String())
			p.logger.Info(ctx, "network class changed", logger.String("class", next.String()))
			p.bus.Publish(ctx, model.TopicNetworkChanged, model.NetworkChange{Class: next})
		}
	}
}

func (p *signalProfiler) CurrentClass() model.NetworkClass {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.class
}

func (p *signalProfiler) Close() error {
	p.closed.Do(func() { close(p.done) })
	return nil
}

// defaultProfiler is the variant for hosts without a connection signal.
type defaultProfiler struct{}

func (defaultProfiler) CurrentClass() model.NetworkClass { return model.ClassNormal }

func (defaultProfiler) Close() error { return nil }
