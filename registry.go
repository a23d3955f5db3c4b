package eventflow

import (
	"reflect"
	"sync"
)

// Registry maps event types to the ordered list of handlers subscribed to
// them. Registration order is dispatch order. Registering the same handler
// instance twice for the same type is a no-op, as is unregistering a
// handler that was never added.
type Registry struct {
	mu   sync.RWMutex
	subs map[string][]registration
}

type registration struct {
	key     handlerKey
	handler EventHandler
}

// handlerKey identifies a handler instance. Pointer-shaped handlers (the
// common case, including EventHandlerFunc values) are keyed by their
// pointer; comparable value handlers are keyed by value.
type handlerKey struct {
	typ reflect.Type
	ptr uintptr
	val any
}

func keyOf(h EventHandler) handlerKey {
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return handlerKey{typ: v.Type(), ptr: v.Pointer()}
	default:
		if v.Comparable() {
			return handlerKey{typ: v.Type(), val: h}
		}
		return handlerKey{typ: v.Type()}
	}
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[string][]registration),
	}
}

// Register subscribes handler to the given event type, appending it to the
// dispatch order. Idempotent per (event type, handler instance).
func (r *Registry) Register(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}

	key := keyOf(handler)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.subs[eventType] {
		if reg.key == key {
			return
		}
	}
	r.subs[eventType] = append(r.subs[eventType], registration{key: key, handler: handler})
}

// Unregister removes handler from the given event type, preserving the
// order of the remaining handlers. Removing an absent handler is a no-op.
func (r *Registry) Unregister(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}

	key := keyOf(handler)

	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.subs[eventType]
	for i, reg := range regs {
		if reg.key == key {
			r.subs[eventType] = append(regs[:i:i], regs[i+1:]...)
			if len(r.subs[eventType]) == 0 {
				delete(r.subs, eventType)
			}
			return
		}
	}
}

// HandlersFor returns the handlers subscribed to eventType in registration
// order. The returned slice is a copy and safe to iterate while other
// goroutines register or unregister.
func (r *Registry) HandlersFor(eventType string) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.subs[eventType]
	if len(regs) == 0 {
		return nil
	}
	handlers := make([]EventHandler, len(regs))
	for i, reg := range regs {
		handlers[i] = reg.handler
	}
	return handlers
}

// Types returns the event types that currently have at least one handler.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.subs))
	for t := range r.subs {
		types = append(types, t)
	}
	return types
}
