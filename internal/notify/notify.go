// Package notify implements the process-wide change notifier. The local
// store publishes a no-payload "changed" event after every committed
// mutation; the sync engine is the primary subscriber. Delivery is
// synchronous and in registration order, so subscribers observe events in
// the order they were produced.
package notify

import "sync"

// Event identifies the kind of change being broadcast.
type Event int

const (
	// EventDataChanged signals that a local collection was mutated.
	EventDataChanged Event = iota
	// EventDataReplaced signals that local data was wholesale replaced by
	// an import. Subscribers must invalidate cached views, not patch them.
	EventDataReplaced
)

// Handler receives published events.
type Handler func(Event)

// Subscription identifies a registered handler for later removal.
type Subscription int

// Bus is an in-memory publisher with an ordered subscriber list.
// The zero value is not usable; call NewBus.
type Bus struct {
	mu     sync.Mutex
	nextID Subscription
	order  []Subscription
	subs   map[Subscription]Handler
}

// NewBus creates an empty notifier bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Subscription]Handler)}
}

// Subscribe registers a handler. Handlers are invoked in registration order.
func (b *Bus) Subscribe(h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.order = append(b.order, id)
	b.subs[id] = h
	return id
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(id Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
	for i, sid := range b.order {
		if sid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers the event to every subscriber synchronously, in
// registration order. Publish returns after all handlers have run.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		if h, ok := b.subs[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
