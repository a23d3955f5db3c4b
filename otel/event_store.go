package otel

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/terraskye/eventflow"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var _ eventflow.EventStore = (*TelemetryStore)(nil)

// TelemetryStore wraps an EventStore with OpenTelemetry tracing and
// metrics. Appends run inside a client span; loads trace the whole
// iteration, closing the span when the iterator is exhausted.
type TelemetryStore struct {
	next eventflow.EventStore
}

// WithEventStoreTelemetry wraps an EventStore with OpenTelemetry tracing
// and metrics.
func WithEventStoreTelemetry(next eventflow.EventStore) eventflow.EventStore {
	return TelemetryStore{next: next}
}

// Append traces a single idempotent append.
func (t TelemetryStore) Append(ctx context.Context, env *eventflow.Envelope) error {
	ctx, span := tracer.Start(ctx, "EventStore.Append",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String("append"),
			AttrStreamID.String(env.StreamID),
			AttrEventType.String(env.EventType()),
		),
	)
	defer span.End()

	start := time.Now()
	err := t.next.Append(ctx, env)
	t.recordOp(ctx, "append", start, err, span)
	return err
}

// AppendToStream traces a revision-checked batch append.
func (t TelemetryStore) AppendToStream(ctx context.Context, streamID string, events []eventflow.Envelope, revision eventflow.StreamState) (eventflow.AppendResult, error) {
	ctx, span := tracer.Start(ctx, "EventStore.AppendToStream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String("append_to_stream"),
			AttrStreamID.String(streamID),
			AttrEventCount.Int64(int64(len(events))),
			AttrEventStreamPos.String(fmt.Sprintf("%T", revision)),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := t.next.AppendToStream(ctx, streamID, events, revision)
	t.recordOp(ctx, "append_to_stream", start, err, span)
	return result, err
}

// Load traces the filtered load as one span spanning the iteration.
func (t TelemetryStore) Load(ctx context.Context, filter eventflow.Filter) (*eventflow.Iterator[*eventflow.Envelope], error) {
	iter, err := t.next.Load(ctx, filter)
	if err != nil {
		EventStoreErrors.Add(ctx, 1)
		return iter, err
	}
	return t.traceIteration("EventStore.Load", filter.AggregateID, iter), nil
}

// LoadStream traces the stream load as one span spanning the iteration.
func (t TelemetryStore) LoadStream(ctx context.Context, id string) (*eventflow.Iterator[*eventflow.Envelope], error) {
	iter, err := t.next.LoadStream(ctx, id)
	if err != nil {
		EventStoreErrors.Add(ctx, 1)
		return iter, err
	}
	return t.traceIteration("EventStore.LoadStream", id, iter), nil
}

// LoadStreamFrom traces the partial stream load as one span spanning the
// iteration.
func (t TelemetryStore) LoadStreamFrom(ctx context.Context, id string, version uint64) (*eventflow.Iterator[*eventflow.Envelope], error) {
	iter, err := t.next.LoadStreamFrom(ctx, id, version)
	if err != nil {
		EventStoreErrors.Add(ctx, 1)
		return iter, err
	}
	return t.traceIteration("EventStore.LoadStreamFrom", id, iter), nil
}

// Close just forwards.
func (t TelemetryStore) Close() error {
	return t.next.Close()
}

func (t TelemetryStore) recordOp(ctx context.Context, op string, start time.Time, err error, span trace.Span) {
	EventStoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrOperation.String(op)),
	)
	EventStoreSaves.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op)))

	if err != nil {
		EventStoreErrors.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// traceIteration wraps an iterator so one span covers the pull of every
// event, ending when the consumer reaches EOF or an error.
func (t TelemetryStore) traceIteration(operation, streamID string, iter *eventflow.Iterator[*eventflow.Envelope]) *eventflow.Iterator[*eventflow.Envelope] {
	started := false
	var startedAt time.Time
	var span trace.Span
	var eventCount int64

	return eventflow.NewIteratorFunc(func(ctx context.Context) (*eventflow.Envelope, error) {
		if !started {
			started = true
			startedAt = time.Now()
			ctx, span = tracer.Start(ctx, operation,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(AttrStreamID.String(streamID)),
			)
		}

		if !iter.Next(ctx) {
			span.SetAttributes(AttrEventCount.Int64(eventCount))

			err := iter.Err()
			if err == nil {
				EventStoreDuration.Record(ctx, float64(time.Since(startedAt).Milliseconds()),
					metric.WithAttributes(AttrOperation.String("load")),
				)
				EventStoreLoads.Add(ctx, 1)
				span.End()
				return nil, io.EOF
			}

			EventStoreErrors.Add(ctx, 1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return nil, err
		}

		eventCount++
		return iter.Value(), nil
	})
}
