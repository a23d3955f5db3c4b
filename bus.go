package eventflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EventBus delivers envelopes to subscribed handlers. Handler failures are
// isolated: they are reported to the failure sink, never returned to the
// publisher, and never stop delivery to the remaining handlers.
type EventBus interface {
	Subscribe(eventType string, handler EventHandler)
	Unsubscribe(eventType string, handler EventHandler)
	Publish(ctx context.Context, envs ...*Envelope) error
	Close() error
}

// SyncBus dispatches on the caller's goroutine, delivering each envelope to
// its handlers in registration order before returning. Per-aggregate
// ordering is trivially preserved.
type SyncBus struct {
	registry *Registry
	sink     FailureSink
	logger   *slog.Logger
}

// SyncBusOption configures a SyncBus.
type SyncBusOption func(*SyncBus)

// WithSyncFailureSink routes handler failures into the given sink,
// typically a DLQ.
func WithSyncFailureSink(sink FailureSink) SyncBusOption {
	return func(b *SyncBus) {
		b.sink = sink
	}
}

// WithSyncLogger sets the bus logger.
func WithSyncLogger(logger *slog.Logger) SyncBusOption {
	return func(b *SyncBus) {
		b.logger = logger
	}
}

// NewSyncBus creates a synchronous event bus.
func NewSyncBus(opts ...SyncBusOption) *SyncBus {
	_ = Init()

	b := &SyncBus{
		registry: NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for an event type. Registering the same
// handler for the same type twice is a no-op.
func (b *SyncBus) Subscribe(eventType string, handler EventHandler) {
	b.registry.Register(eventType, handler)
}

// Unsubscribe removes a handler. Unknown handlers are ignored.
func (b *SyncBus) Unsubscribe(eventType string, handler EventHandler) {
	b.registry.Unregister(eventType, handler)
}

// Publish delivers the envelopes in order to every handler subscribed to
// their event types. It returns only infrastructure errors; handler errors
// go to the failure sink.
func (b *SyncBus) Publish(ctx context.Context, envs ...*Envelope) error {
	for _, env := range envs {
		if env == nil {
			continue
		}
		handlers := b.registry.HandlersFor(env.EventType())

		EventsPublished.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event.type", env.EventType()),
			attribute.String("bus", "sync"),
		))

		hctx := WithEnvelope(ctx, env)
		for _, h := range handlers {
			deliver(hctx, h, env, b.sink, b.logger, "sync")
		}
	}
	return nil
}

// Close is a no-op for the synchronous bus.
func (b *SyncBus) Close() error {
	return nil
}

// deliver invokes one handler for one envelope and reports any failure to
// the sink. Shared by the sync bus and the DLQ processor; the async bus
// composes execute and report itself to handle timeouts.
func deliver(ctx context.Context, h EventHandler, env *Envelope, sink FailureSink, logger *slog.Logger, busKind string) error {
	err := execute(ctx, h, env, busKind)
	return report(ctx, env, HandlerID(h), err, sink, logger)
}

// execute runs one handler with panic recovery and records duration and
// outcome metrics.
func execute(ctx context.Context, h EventHandler, env *Envelope, busKind string) error {
	id := HandlerID(h)
	start := time.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return h.Handle(ctx, env.Event)
	}()

	attrs := metric.WithAttributes(
		attribute.String("event.type", env.EventType()),
		attribute.String("handler", id),
		attribute.String("bus", busKind),
	)
	HandlerDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	if err != nil {
		HandlerFailures.Add(ctx, 1, attrs)
		return err
	}
	EventsDelivered.Add(ctx, 1, attrs)
	return nil
}

// report logs a handler failure and hands it to the failure sink. A nil err
// is a no-op. The returned HandlerError is for callers that redeliver (the
// DLQ processor); the buses discard it.
func report(ctx context.Context, env *Envelope, handlerID string, err error, sink FailureSink, logger *slog.Logger) error {
	if err == nil {
		return nil
	}
	if logger != nil {
		logger.ErrorContext(ctx, "event handler failed",
			"event-id", env.EventID,
			"event-type", env.EventType(),
			"handler", handlerID,
			"error", err,
		)
	}
	if sink != nil {
		sink.Capture(ctx, env, handlerID, err)
	}
	return &HandlerError{HandlerID: handlerID, Envelope: env, Err: err}
}
