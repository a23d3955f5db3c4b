package eventflow

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QueryBus acts as a central registry for query handlers, keyed by query
// and result type. Handlers are executed through a typed
// GenericQueryGateway.
//
// Example Usage:
//
//	bus := NewQueryBus()
//	RegisterQueryHandler[DLQStatsQuery, DLQStats](bus, statsHandler)
type QueryBus struct {
	handlers map[string]any
}

// NewQueryBus creates a new, empty bus ready for handler registration.
func NewQueryBus() *QueryBus {
	_ = Init()
	return &QueryBus{
		handlers: make(map[string]any),
	}
}

// RegisterQueryHandler registers a QueryHandler for a specific query and
// result type on the provided QueryBus, wrapping it with metrics. Panics
// if a handler is already registered for the same pair.
func RegisterQueryHandler[T Query, R any](bus *QueryBus, handler QueryHandler[T, R]) {
	key := fmt.Sprintf("%T|%T", *new(T), *new(R))

	if _, exists := bus.handlers[key]; exists {
		panic(fmt.Sprintf("handler already registered for query %s", key))
	}

	wrapped := queryHandlerFunc[T, R](func(ctx context.Context, qry T) (R, error) {
		start := time.Now()
		result, err := handler.HandleQuery(ctx, qry)
		if err != nil {
			return result, err
		}

		attrs := metric.WithAttributes(
			attribute.String("query.type", TypeName(qry)),
		)
		QueriesHandled.Add(ctx, 1, attrs)
		QueriesDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
		return result, nil
	})

	bus.handlers[key] = QueryHandler[T, R](wrapped)
}
