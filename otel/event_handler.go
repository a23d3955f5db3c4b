package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terraskye/eventflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WithEventTelemetry wraps an EventHandler so every delivery runs inside a
// span carrying the envelope context, with handled/error counters and a
// duration histogram. A skipped event (wrong type for a typed handler)
// keeps the span status OK.
func WithEventTelemetry(next eventflow.EventHandler, options ...Option) eventflow.EventHandler {
	cfg := &config{}
	for _, o := range options {
		o.apply(cfg)
	}

	return eventflow.NewEventHandlerFunc(func(ctx context.Context, event eventflow.Event) error {
		attr := []attribute.KeyValue{
			AttrEventType.String(event.EventType()),
			AttrEventID.String(eventflow.EventIDFromContext(ctx).String()),
			AttrEventGlobalPos.String(fmt.Sprintf("%d", eventflow.GlobalVersionFromContext(ctx))),
			AttrEventStreamPos.String(fmt.Sprintf("%d", eventflow.VersionFromContext(ctx))),
			AttrStreamID.String(eventflow.StreamIDFromContext(ctx)),
		}
		attr = append(attr, cfg.Attributes...)
		if cfg.GetAttributes != nil {
			attr = append(attr, cfg.GetAttributes(ctx)...)
		}

		ctx, span := tracer.Start(ctx, fmt.Sprintf("events.handle %s", event.EventType()),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attr...),
		)
		defer span.End()

		EventBusHandled.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(event.EventType())))

		startTime := time.Now()
		err := next.Handle(ctx, event)
		EventBusDuration.Record(ctx,
			float64(time.Since(startTime).Milliseconds()),
			metric.WithAttributes(AttrEventType.String(event.EventType())),
		)

		if err != nil {
			var skipped *eventflow.ErrSkippedEvent
			if errors.As(err, &skipped) {
				span.SetStatus(codes.Ok, "event skipped")
			} else {
				EventBusErrors.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(event.EventType())))
				span.SetStatus(codes.Error, err.Error())
				span.RecordError(err)
			}
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	})
}
