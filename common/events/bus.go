// Package events provides the subsystem's publish/subscribe fabric.
// Components publish typed events to a Bus; any number of listeners
// subscribe, replacing the original design's single global redispatch
// point.
package events

import "sync"

// Event is implemented by every published event type
type Event interface {
	EventName() string
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine, so they must not block.
type Handler func(Event)

// Bus is a mutex-guarded listener registry
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[int]Handler),
	}
}

// Subscribe registers a handler and returns its unsubscribe function
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers an event to every registered handler
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	snapshot := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		snapshot = append(snapshot, h)
	}
	b.mu.RUnlock()

	for _, h := range snapshot {
		h(e)
	}
}

// Len returns the number of registered handlers
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
