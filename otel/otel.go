package otel

import (
	"github.com/terraskye/eventflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/terraskye/eventflow/otel"
)

// Semantic attribute keys following OpenTelemetry conventions
const (
	// Stream attributes
	AttrStreamID      = attribute.Key("eventflow.stream.id")
	AttrStreamVersion = attribute.Key("eventflow.stream.version")

	// Event attributes
	AttrEventType      = attribute.Key("eventflow.event.type")
	AttrEventID        = attribute.Key("eventflow.event.id")
	AttrEventCount     = attribute.Key("eventflow.events.count")
	AttrEventGlobalPos = attribute.Key("eventflow.event.global_position")
	AttrEventStreamPos = attribute.Key("eventflow.event.stream_position")

	// Query attributes
	AttrQueryType  = attribute.Key("eventflow.query.type")
	AttrQueryID    = attribute.Key("eventflow.query.id")
	AttrResultType = attribute.Key("eventflow.query.result_type")

	// Bus attributes
	AttrHandlerName = attribute.Key("eventflow.handler.name")

	// Error attributes
	AttrErrorType  = attribute.Key("eventflow.error.type")
	AttrRetryCount = attribute.Key("eventflow.retry.count")

	// Operation attributes
	AttrOperation = attribute.Key("eventflow.operation")
)

var (
	meter  = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(eventflow.InstrumentationVersion))
	tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(eventflow.InstrumentationVersion))

	// Bus metrics
	EventBusHandled, _ = meter.Int64Counter(
		"eventflow.eventbus.handled",
		metric.WithDescription("Number of events handled by subscribers"),
		metric.WithUnit("{event}"),
	)

	EventBusErrors, _ = meter.Int64Counter(
		"eventflow.eventbus.errors",
		metric.WithDescription("Number of event bus handler errors"),
		metric.WithUnit("{error}"),
	)

	EventBusDuration, _ = meter.Float64Histogram(
		"eventflow.eventbus.duration",
		metric.WithDescription("Event bus handler duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	// Store metrics
	EventStoreSaves, _ = meter.Int64Counter(
		"eventflow.eventstore.saves",
		metric.WithDescription("Number of append operations"),
		metric.WithUnit("{operation}"),
	)

	EventStoreLoads, _ = meter.Int64Counter(
		"eventflow.eventstore.loads",
		metric.WithDescription("Number of load operations"),
		metric.WithUnit("{operation}"),
	)

	EventStoreDuration, _ = meter.Float64Histogram(
		"eventflow.eventstore.duration",
		metric.WithDescription("Event store operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	EventStoreErrors, _ = meter.Int64Counter(
		"eventflow.eventstore.errors",
		metric.WithDescription("Number of event store errors"),
		metric.WithUnit("{error}"),
	)

	// Query metrics
	QueriesInFlight, _ = meter.Int64UpDownCounter(
		"eventflow.queries.in_flight",
		metric.WithDescription("Number of queries currently being processed"),
		metric.WithUnit("{query}"),
	)

	QueriesFailed, _ = meter.Int64Counter(
		"eventflow.queries.failed",
		metric.WithDescription("Number of failed queries"),
		metric.WithUnit("{query}"),
	)
)
