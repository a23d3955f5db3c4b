package eventflow

import (
	"fmt"
	"sync"
)

// TypeRegistry maps event type names to factory functions so that stored
// payloads can be decoded back into concrete Event values. A registry
// instance is owned by whoever owns the codec; there is no package-level
// registry.
type TypeRegistry struct {
	mu      sync.RWMutex
	factory map[string]func() Event
}

// NewTypeRegistry creates an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		factory: make(map[string]func() Event),
	}
}

// Register registers a new Event type using its default type name.
//
// The factory must return a fresh instance on every call, typically a
// pointer so decoded payloads land in the right place:
//
//	registry.Register(func() Event { return &InventoryChanged{} })
//
// Panics if the factory is nil, returns nil, or the event type is already
// registered, since all three are wiring mistakes caught at startup.
func (r *TypeRegistry) Register(fn func() Event) {
	if fn == nil {
		panic("cannot register nil factory")
	}
	ev := fn()
	if ev == nil {
		panic("factory returned nil event")
	}
	r.RegisterName(ev.EventType(), fn)
}

// RegisterName registers a new Event type under a custom name, independent
// of EventType(). Same panic rules as Register.
func (r *TypeRegistry) RegisterName(name string, fn func() Event) {
	if fn == nil {
		panic("cannot register nil factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factory[name]; exists {
		panic(fmt.Sprintf("event already registered: %s", name))
	}

	ev := fn()
	if ev == nil {
		panic(fmt.Sprintf("factory returned nil for event: %s", name))
	}

	r.factory[name] = fn
}

// New creates a new instance of a registered Event by its name.
func (r *TypeRegistry) New(name string) (Event, error) {
	r.mu.RLock()
	fn, ok := r.factory[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("event not registered: %s", name)
	}
	ev := fn()
	if ev == nil {
		return nil, fmt.Errorf("factory returned nil for event: %s", name)
	}
	return ev, nil
}

// Known reports whether an event name has a registered factory.
func (r *TypeRegistry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factory[name]
	return ok
}
