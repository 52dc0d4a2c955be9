// Package observe tracks which resources have entered the viewport.
//
// A watch is one-shot: the first sighting of a watched resource at or above
// the configured visibility threshold fires the callback exactly once and
// retires the watch. Watching the same id again re-arms it. When the host
// exposes no visibility-detection primitive the constructor degrades to an
// eager variant that fires every watch immediately, so every watched resource
// still receives its visibility signal.
package observe

import (
	"context"
	"sync"

	"github.com/okian/mosaic/pkg/logger"
)

// Default observer configuration constants.
const (
	defaultThreshold = 0.1
	defaultMargin    = 200 // pixels ahead of the viewport
)

// Sighting is one report from the host's visibility-detection primitive.
type Sighting struct {
	ID string
	// Ratio is the fraction of the resource's area currently visible.
	Ratio float64
}

// Source abstracts the host's visibility-detection primitive. A nil Source
// at construction selects the eager fallback.
type Source interface {
	// Sightings emits visibility reports until Close.
	Sightings() <-chan Sighting

	Close() error
}

// Observer arms one-shot visibility notifications per resource.
type Observer interface {
	// Watch arms a one-shot notification for id. Watching an id that
	// already fired re-arms it.
	Watch(id string, onVisible func(id string)) error

	// Unwatch drops an armed watch before it fires. Best-effort; unknown
	// ids are ignored.
	Unwatch(id string)

	// Watching reports whether id currently has an armed watch.
	Watching(id string) bool

	Close() error
}

// New builds an Observer over the given source. A nil source yields the
// eager-fallback variant; the degradation is logged once, not treated as
// fatal.
func New(src Source, opts ...Option) Observer {
	cfg := settings{
		threshold: defaultThreshold,
		margin:    defaultMargin,
		logger:    logger.Get().Named("observer"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if src == nil {
		cfg.logger.Warn(context.Background(), "visibility detection unavailable; watches fire eagerly")
		return &eagerObserver{}
	}

	o := &sourceObserver{
		settings: cfg,
		src:      src,
		watches:  make(map[string]func(string)),
		done:     make(chan struct{}),
	}
	go o.run()
	return o
}

type settings struct {
	threshold float64
	margin    int
	logger    logger.Logger
}

// sourceObserver consumes host sightings and fires armed watches.
type sourceObserver struct {
	settings

	src     Source
	mu      sync.Mutex
	watches map[string]func(string)
	done    chan struct{}
	closed  bool
}

func (o *sourceObserver) run() {
	for {
		select {
		case <-o.done:
			return
		case s, ok := <-o.src.Sightings():
			if !ok {
				return
			}
			if s.Ratio < o.threshold {
				continue
			}
			o.fire(s.ID)
		}
	}
}

// fire retires the watch before invoking the callback, so a callback that
// re-watches the same id arms a fresh one-shot.
func (o *sourceObserver) fire(id string) {
	o.mu.Lock()
	fn, ok := o.watches[id]
	if ok {
		delete(o.watches, id)
	}
	o.mu.Unlock()

	if ok {
		fn(id)
	}
}

func (o *sourceObserver) Watch(id string, onVisible func(id string)) error {
	if onVisible == nil {
		return ErrNilCallback
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrObserverClosed
	}
	o.watches[id] = onVisible
	return nil
}

func (o *sourceObserver) Unwatch(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.watches, id)
}

func (o *sourceObserver) Watching(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.watches[id]
	return ok
}

func (o *sourceObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	close(o.done)
	return o.src.Close()
}

// eagerObserver fires every watch immediately. It keeps no watch state; a
// watch is armed and retired within the same call.
type eagerObserver struct {
	mu     sync.Mutex
	closed bool
}

func (o *eagerObserver) Watch(id string, onVisible func(id string)) error {
	if onVisible == nil {
		return ErrNilCallback
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrObserverClosed
	}
	o.mu.Unlock()

	onVisible(id)
	return nil
}

func (o *eagerObserver) Unwatch(string) {}

func (o *eagerObserver) Watching(string) bool { return false }

func (o *eagerObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}
