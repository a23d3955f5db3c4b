package eventflow

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/terraskye/eventflow"
)

var (
	meter metric.Meter

	// Dispatch metrics
	EventsPublished metric.Int64Counter
	EventsDelivered metric.Int64Counter
	HandlerFailures metric.Int64Counter
	HandlerDuration metric.Float64Histogram

	// Store metrics
	EventsAppended       metric.Int64Counter
	EventsLoaded         metric.Int64Counter
	ConcurrencyConflicts metric.Int64Counter

	// DLQ metrics
	DLQCaptured metric.Int64Counter
	DLQRetries  metric.Int64Counter
	DLQParked   metric.Int64Counter
	DLQDepth    metric.Int64UpDownCounter

	// Query metrics
	QueriesHandled  metric.Int64Counter
	QueriesDuration metric.Float64Histogram

	// Initialization
	once    sync.Once
	initErr error
)

// Init initializes the global metrics. The buses, stores and DLQ call it on
// construction; calling it again is a no-op.
func Init() error {
	once.Do(func() {
		meter = otel.Meter(instrumentationName)
		initErr = initializeMetrics()
	})
	return initErr
}

func initializeMetrics() error {
	var err error

	EventsPublished, err = meter.Int64Counter(
		"eventflow.events.published",
		metric.WithDescription("Number of events published through a dispatcher"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	EventsDelivered, err = meter.Int64Counter(
		"eventflow.events.delivered",
		metric.WithDescription("Number of successful handler deliveries"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return err
	}

	HandlerFailures, err = meter.Int64Counter(
		"eventflow.handlers.failures",
		metric.WithDescription("Number of handler failures captured by the DLQ"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return err
	}

	HandlerDuration, err = meter.Float64Histogram(
		"eventflow.handlers.duration",
		metric.WithDescription("Handler execution duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return err
	}

	EventsAppended, err = meter.Int64Counter(
		"eventflow.store.appended",
		metric.WithDescription("Number of events appended to the store"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	EventsLoaded, err = meter.Int64Counter(
		"eventflow.store.loaded",
		metric.WithDescription("Number of events loaded from the store"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	ConcurrencyConflicts, err = meter.Int64Counter(
		"eventflow.store.concurrency_conflicts",
		metric.WithDescription("Number of optimistic concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return err
	}

	DLQCaptured, err = meter.Int64Counter(
		"eventflow.dlq.captured",
		metric.WithDescription("Number of failed events captured"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	DLQRetries, err = meter.Int64Counter(
		"eventflow.dlq.retries",
		metric.WithDescription("Number of DLQ redelivery attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	DLQParked, err = meter.Int64Counter(
		"eventflow.dlq.parked",
		metric.WithDescription("Number of events parked after exhausting retries"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	DLQDepth, err = meter.Int64UpDownCounter(
		"eventflow.dlq.depth",
		metric.WithDescription("Current number of events awaiting retry"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	QueriesHandled, err = meter.Int64Counter(
		"eventflow.queries.handled",
		metric.WithDescription("Number of inspection queries handled"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	QueriesDuration, err = meter.Float64Histogram(
		"eventflow.queries.duration",
		metric.WithDescription("Inspection query duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return err
	}

	return nil
}
