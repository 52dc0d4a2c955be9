// Package bus provides the synchronous publish/subscribe hub the engine
// coordinates on.
//
// Dispatch runs subscribed handlers inline, in subscription order, within the
// Publish call. A handler that panics is isolated: the fault is recovered and
// logged, and the remaining handlers for that publish still run. No ordering
// guarantee exists across topics, only within one topic's subscriber list for
// one publish.
package bus

import (
	"context"
	"sync"

	"github.com/okian/mosaic/pkg/logger"
	"github.com/okian/mosaic/pkg/metrics"
)

// Handler receives a published payload for one topic.
type Handler func(ctx context.Context, payload any)

// Subscription identifies one (topic, handler) registration so it can be
// removed later. The bus owns the per-topic handler lists; subscribers do not
// own the bus.
type Subscription struct {
	topic string
	id    uint64
}

// Topic returns the topic this subscription is registered under.
func (s Subscription) Topic() string { return s.topic }

// Stats is a snapshot of bus activity counters.
type Stats struct {
	Published     uint64
	Delivered     uint64
	HandlerFaults uint64
	Subscribers   int
}

// Bus is the synchronous publish/subscribe contract.
type Bus interface {
	// Subscribe registers a handler for a topic and returns a handle for
	// Unsubscribe. Handlers for one topic run in subscription order.
	Subscribe(topic string, h Handler) (Subscription, error)

	// Unsubscribe removes a previously registered handler.
	Unsubscribe(sub Subscription) error

	// Publish dispatches payload to every handler subscribed to topic,
	// synchronously and in subscription order. Handler panics are isolated
	// and reported, never propagated.
	Publish(ctx context.Context, topic string, payload any)

	// Stats returns a snapshot of activity counters.
	Stats() Stats

	// Close drops all subscriptions. Subsequent operations return
	// ErrBusClosed; Publish becomes a no-op.
	Close() error
}

type subscriber struct {
	id uint64
	h  Handler
}

// InMemoryBus implements Bus with per-topic ordered subscriber lists.
type InMemoryBus struct {
	mu     sync.RWMutex
	topics map[string][]subscriber
	nextID uint64
	closed bool

	published uint64
	delivered uint64
	faults    uint64

	logger logger.Logger
}

// New creates an in-memory bus with configuration options.
func New(opts ...Option) *InMemoryBus {
	b := &InMemoryBus{
		topics: make(map[string][]subscriber),
		logger: logger.Get().Named("bus"),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe registers a handler for a topic.
func (b *InMemoryBus) Subscribe(topic string, h Handler) (Subscription, error) {
	if h == nil {
		return Subscription{}, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Subscription{}, ErrBusClosed
	}

	b.nextID++
	b.topics[topic] = append(b.topics[topic], subscriber{id: b.nextID, h: h})
	return Subscription{topic: topic, id: b.nextID}, nil
}

// Unsubscribe removes a handler by its subscription handle.
func (b *InMemoryBus) Unsubscribe(sub Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.topics[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

// Publish dispatches payload to every subscriber of topic, in order.
func (b *InMemoryBus) Publish(ctx context.Context, topic string, payload any) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	// Copy the list so handlers may subscribe/unsubscribe during dispatch
	// without holding the lock across handler invocations.
	subs := make([]subscriber, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.RUnlock()

	b.mu.Lock()
	b.published++
	b.mu.Unlock()
	metrics.RecordBusPublish(topic)

	for _, s := range subs {
		b.dispatch(ctx, topic, s, payload)
	}
}

// dispatch invokes one handler, isolating panics so one faulty subscriber
// cannot starve the rest of the list.
func (b *InMemoryBus) dispatch(ctx context.Context, topic string, s subscriber, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			b.faults++
			b.mu.Unlock()
			metrics.RecordBusHandlerFault()
			b.logger.Error(ctx, "handler fault during dispatch",
				logger.String("topic", topic),
				logger.Any("panic", r),
			)
		}
	}()

	s.h(ctx, payload)

	b.mu.Lock()
	b.delivered++
	b.mu.Unlock()
}

// Stats returns a snapshot of activity counters.
func (b *InMemoryBus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.topics {
		n += len(subs)
	}
	return Stats{
		Published:     b.published,
		Delivered:     b.delivered,
		HandlerFaults: b.faults,
		Subscribers:   n,
	}
}

// Close drops all subscriptions.
func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.topics = make(map[string][]subscriber)
	return nil
}
