package otel

import (
	"context"
	"reflect"
	"sync"

	"github.com/terraskye/eventflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var _ eventflow.EventBus = (*TelemetryEventBus)(nil)

// TelemetryEventBus wraps an EventBus with OpenTelemetry tracing.
//
// Publish runs inside a producer span whose context is injected into each
// envelope's metadata; subscribed handlers run inside a consumer span
// linked back to the producer trace, giving end-to-end tracing from
// publisher through every handler.
type TelemetryEventBus struct {
	next eventflow.EventBus
	cfg  *config

	mu      sync.Mutex
	wrapped map[string]map[handlerKey]eventflow.EventHandler
}

// handlerKey identifies a handler instance. Func, pointer, and reference
// handlers key by address; comparable values key by value.
type handlerKey struct {
	typ reflect.Type
	ptr uintptr
	val any
}

func keyOf(h eventflow.EventHandler) handlerKey {
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return handlerKey{typ: v.Type(), ptr: v.Pointer()}
	default:
		if v.Type().Comparable() {
			return handlerKey{typ: v.Type(), val: h}
		}
		return handlerKey{typ: v.Type()}
	}
}

// WithEventBusTelemetry wraps an EventBus with OpenTelemetry tracing and
// metrics.
func WithEventBusTelemetry(next eventflow.EventBus, options ...Option) *TelemetryEventBus {
	cfg := &config{}
	for _, o := range options {
		o.apply(cfg)
	}

	return &TelemetryEventBus{
		next:    next,
		cfg:     cfg,
		wrapped: make(map[string]map[handlerKey]eventflow.EventHandler),
	}
}

// Subscribe registers the handler wrapped with consumer tracing. The same
// handler subscribes to the same wrapper, so re-registration stays
// idempotent and Unsubscribe keeps working.
func (t *TelemetryEventBus) Subscribe(eventType string, handler eventflow.EventHandler) {
	t.next.Subscribe(eventType, t.consumerWrapper(eventType, handler))
}

// Unsubscribe removes the handler's telemetry wrapper from the bus.
func (t *TelemetryEventBus) Unsubscribe(eventType string, handler eventflow.EventHandler) {
	t.mu.Lock()
	key := keyOf(handler)
	wrapper, ok := t.wrapped[eventType][key]
	if ok {
		delete(t.wrapped[eventType], key)
	}
	t.mu.Unlock()

	if ok {
		t.next.Unsubscribe(eventType, wrapper)
	}
}

// Publish traces the publish as a producer span and injects its context
// into every envelope's metadata before delegating.
func (t *TelemetryEventBus) Publish(ctx context.Context, envs ...*eventflow.Envelope) error {
	ctx, span := tracer.Start(ctx, "eventbus.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(append([]attribute.KeyValue{
			AttrEventCount.Int64(int64(len(envs))),
		}, t.cfg.Attributes...)...),
	)
	defer span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for _, env := range envs {
		if env == nil {
			continue
		}
		if env.Metadata == nil {
			env.Metadata = make(map[string]any, len(carrier))
		}
		for key, value := range carrier {
			env.Metadata[key] = value
		}
	}

	err := t.next.Publish(ctx, envs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Close closes the underlying bus.
func (t *TelemetryEventBus) Close() error {
	return t.next.Close()
}

func (t *TelemetryEventBus) consumerWrapper(eventType string, handler eventflow.EventHandler) eventflow.EventHandler {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := keyOf(handler)
	if wrapper, ok := t.wrapped[eventType][key]; ok {
		return wrapper
	}

	inner := WithEventTelemetry(handler, WithAttributes(t.cfg.Attributes...))

	wrapper := eventflow.NewEventHandlerFunc(func(ctx context.Context, event eventflow.Event) error {
		// Recover the producer trace from the envelope metadata so the
		// consumer span links back to it.
		carrier := make(propagation.MapCarrier)
		if metadata := eventflow.MetadataFromContext(ctx); len(metadata) > 0 {
			for k, v := range metadata {
				if stringV, ok := v.(string); ok && len(stringV) > 0 {
					carrier[k] = stringV
				}
			}
		}
		producerCtx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)
		producerSpanContext := trace.SpanContextFromContext(producerCtx)

		ctx, span := tracer.Start(ctx, "subscription.receive "+event.EventType(),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithLinks(trace.Link{
				SpanContext: producerSpanContext,
				Attributes: []attribute.KeyValue{
					attribute.String("link.reason", "event.consumed.from.bus"),
				},
			}),
			trace.WithAttributes(
				AttrEventType.String(event.EventType()),
				AttrStreamID.String(eventflow.StreamIDFromContext(ctx)),
				AttrHandlerName.String(eventflow.HandlerID(handler)),
			),
		)
		defer span.End()

		return inner.Handle(ctx, event)
	})

	if t.wrapped[eventType] == nil {
		t.wrapped[eventType] = make(map[handlerKey]eventflow.EventHandler)
	}
	t.wrapped[eventType][key] = wrapper
	return wrapper
}
