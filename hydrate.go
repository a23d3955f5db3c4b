package eventflow

import (
	"context"
)

// HydrateHandler applies one historical event type to aggregate state
// during replay.
type HydrateHandler interface {
	NewEvent() Event
	Apply(ctx context.Context, event Event)
}

type genericHydrateHandler[T Event] struct {
	applyFunc func(ctx context.Context, event T)
}

// NewHydrateHandler creates a HydrateHandler from an apply function; the
// event type is inferred from the function argument.
func NewHydrateHandler[T Event](
	applyFunc func(ctx context.Context, event T),
) HydrateHandler {
	return &genericHydrateHandler[T]{
		applyFunc: applyFunc,
	}
}

func (c genericHydrateHandler[T]) NewEvent() Event {
	tVar := new(T)
	return *tVar
}

func (c genericHydrateHandler[T]) Apply(ctx context.Context, e Event) {
	event := e.(T)
	c.applyFunc(ctx, event)
}

// Hydrate combines typed apply functions into a single replay function
// keyed by event type tag. Events with no matching handler are skipped,
// so old streams keep replaying after an event type is retired.
//
// Example Usage:
//
//	cart := &Cart{AggregateBase: NewAggregateBase(id)}
//	cart.apply = Hydrate(
//	    NewHydrateHandler(cart.onCartCreated),
//	    NewHydrateHandler(cart.onItemAdded),
//	)
func Hydrate(handlers ...HydrateHandler) func(ctx context.Context, ev Event) {
	eventHandlers := make(map[string]HydrateHandler)

	for _, handler := range handlers {
		eventHandlers[handler.NewEvent().EventType()] = handler
	}

	return func(ctx context.Context, ev Event) {
		if handler, ok := eventHandlers[ev.EventType()]; ok {
			handler.Apply(ctx, ev)
		}
	}
}
