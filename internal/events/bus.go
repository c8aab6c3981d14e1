package events

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Publisher is what stores publish to. A nil Publisher is not allowed; use
// Discard when events are not wanted.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Handler receives events synchronously on the publishing goroutine.
type Handler func(ctx context.Context, e Event)

// Sink forwards events out of process.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// Discard drops every event.
var Discard Publisher = discard{}

type subscription struct {
	eventType string
	handler   Handler
}

// Bus fans events out to in-process handlers and sinks.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]subscription
	nextID int
	sinks  []Sink
}

func NewBus(sinks ...Sink) *Bus {
	return &Bus{subs: make(map[int]subscription), sinks: sinks}
}

// Subscribe registers h for eventType, or for every event when eventType is "".
func (b *Bus) Subscribe(eventType string, h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{eventType: eventType, handler: h}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers e to matching handlers in subscription order, then to sinks.
// Sink failures are logged and never reach the publisher.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for id := 0; id < b.nextID; id++ {
		sub, ok := b.subs[id]
		if ok && (sub.eventType == "" || sub.eventType == e.Type) {
			handlers = append(handlers, sub.handler)
		}
	}
	sinks := b.sinks
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
	for _, s := range sinks {
		if err := s.Send(ctx, e); err != nil {
			log.Printf("[Events] Failed to forward %s: %v", e.Type, err)
		}
	}
}

// Close closes every sink.
func (b *Bus) Close() error {
	b.mu.Lock()
	sinks := b.sinks
	b.sinks = nil
	b.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
