package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/aescanero/podgen/pkg/domain"
	"github.com/aescanero/podgen/pkg/ports"
)

// ErrBusClosed is returned by Publish after Close
var ErrBusClosed = errors.New("event bus closed")

// delivery is one published event and the handlers subscribed when it was published
type delivery struct {
	ctx      context.Context
	event    domain.Event
	handlers []ports.EventHandler
}

// InMemoryEventBus implements EventBus with in-process handlers.
//
// Events are delivered by a single goroutine in publish order, across all
// topics, so a subscriber of both run and step events never sees a run end
// before the step events published ahead of it. Handlers should return
// quickly since they share that goroutine.
type InMemoryEventBus struct {
	subscribers map[string]map[uint64]ports.EventHandler
	nextID      uint64
	mu          sync.RWMutex

	queueMu sync.Mutex
	queue   []delivery
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus() *InMemoryEventBus {
	e := &InMemoryEventBus{
		subscribers: make(map[string]map[uint64]ports.EventHandler),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go e.deliverLoop()
	return e
}

// Publish queues an event for every current subscriber of a topic. It never
// waits on handlers.
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	handlers := make([]ports.EventHandler, 0, len(e.subscribers[topic]))
	for _, h := range e.subscribers[topic] {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	e.queueMu.Lock()
	if e.closed {
		e.queueMu.Unlock()
		return ErrBusClosed
	}
	if len(handlers) > 0 {
		e.queue = append(e.queue, delivery{
			ctx:      context.WithoutCancel(ctx),
			event:    event,
			handlers: handlers,
		})
	}
	e.queueMu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

// Subscribe registers a handler until ctx is cancelled
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[uint64]ports.EventHandler)
	}
	e.nextID++
	id := e.nextID
	e.subscribers[topic][id] = handler

	go func() {
		<-ctx.Done()
		e.unsubscribe(topic, id)
	}()

	return nil
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.subscribers, topic)
	return nil
}

// Close delivers the events already queued, then removes all subscriptions
func (e *InMemoryEventBus) Close() error {
	e.once.Do(func() {
		e.queueMu.Lock()
		e.closed = true
		e.queueMu.Unlock()

		close(e.done)
		<-e.stopped
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = make(map[string]map[uint64]ports.EventHandler)
	return nil
}

// Subscribers returns the number of handlers on a topic
func (e *InMemoryEventBus) Subscribers(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers[topic])
}

func (e *InMemoryEventBus) unsubscribe(topic string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.subscribers[topic], id)
	if len(e.subscribers[topic]) == 0 {
		delete(e.subscribers, topic)
	}
}

func (e *InMemoryEventBus) deliverLoop() {
	defer close(e.stopped)

	for {
		select {
		case <-e.wake:
			e.drain()
		case <-e.done:
			e.drain()
			return
		}
	}
}

func (e *InMemoryEventBus) drain() {
	for {
		e.queueMu.Lock()
		batch := e.queue
		e.queue = nil
		e.queueMu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, d := range batch {
			for _, h := range d.handlers {
				// Handler errors are the subscriber's concern
				_ = h(d.ctx, d.event)
			}
		}
	}
}
