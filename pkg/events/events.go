// Package events is a synchronous listener bus. Handlers publish their
// lifecycle notifications through it and applications subscribe by name.
package events

import "sync"

// Event is a notification payload. Implementations are plain value structs.
type Event interface {
	EventName() string
}

// Listener receives every event emitted under the name it was registered for.
type Listener func(Event)

// Bus fans events out to listeners in registration order. A nil *Bus is
// valid and drops everything.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]Listener)}
}

// On registers l for events named name.
func (b *Bus) On(name string, l Listener) {
	if b == nil || l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[string][]Listener)
	}
	b.listeners[name] = append(b.listeners[name], l)
}

// Emit calls the listeners of e.EventName() in the caller's goroutine.
func (b *Bus) Emit(e Event) {
	if b == nil || e == nil {
		return
	}
	b.mu.RLock()
	ls := append([]Listener(nil), b.listeners[e.EventName()]...)
	b.mu.RUnlock()

	for _, l := range ls {
		l(e)
	}
}

// Count returns the number of listeners registered for name.
func (b *Bus) Count(name string) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Subscribe registers a typed listener. The event name is taken from the zero
// value of E, so E must be a value type with a value-receiver EventName.
func Subscribe[E Event](b *Bus, fn func(E)) {
	var zero E
	b.On(zero.EventName(), func(e Event) {
		if v, ok := e.(E); ok {
			fn(v)
		}
	})
}
