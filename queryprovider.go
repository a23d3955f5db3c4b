package eventflow

import (
	"context"
	"fmt"

	"github.com/io-da/query"
)

// FailedEventsQuery returns the live DLQ entries awaiting retry,
// optionally filtered by event type.
type FailedEventsQuery struct {
	EventType string
}

func (q FailedEventsQuery) ID() []byte { return []byte("dlq.failed") }

// ParkedEventsQuery returns the permanently parked DLQ entries,
// optionally filtered by event type.
type ParkedEventsQuery struct {
	EventType string
}

func (q ParkedEventsQuery) ID() []byte { return []byte("dlq.parked") }

// DLQStatsQuery returns a DLQStats summary.
type DLQStatsQuery struct{}

func (q DLQStatsQuery) ID() []byte { return []byte("dlq.stats") }

// StreamEventsQuery streams the envelopes of one aggregate from a given
// version, in version order.
type StreamEventsQuery struct {
	StreamID    string
	FromVersion uint64
}

func (q StreamEventsQuery) ID() []byte { return []byte("store.stream." + q.StreamID) }

// DLQInspector answers the operational DLQ queries over a live queue. It
// implements query.Handler so it plugs into a query bus alongside
// application read models.
type DLQInspector struct {
	dlq *DLQ
}

// NewDLQInspector creates a query handler over the given queue.
func NewDLQInspector(dlq *DLQ) *DLQInspector {
	return &DLQInspector{dlq: dlq}
}

func (i *DLQInspector) Handle(ctx context.Context, qry query.Query, res *query.Result) error {
	switch q := qry.(type) {
	case FailedEventsQuery:
		for _, entry := range i.dlq.ListFailed() {
			if q.EventType != "" && entry.Envelope.EventType() != q.EventType {
				continue
			}
			res.Add(entry)
		}
	case ParkedEventsQuery:
		for _, entry := range i.dlq.ListParked() {
			if q.EventType != "" && entry.Envelope.EventType() != q.EventType {
				continue
			}
			res.Add(entry)
		}
	case DLQStatsQuery:
		res.Add(DLQStats{
			Failed: i.dlq.Len(),
			Parked: i.dlq.ParkedLen(),
		})
	default:
		return fmt.Errorf("unknown query type: %s: %w", TypeName(qry), ErrHandlerNotFound)
	}

	res.Done()
	return nil
}

// StreamReader answers StreamEventsQuery over an EventStore, yielding
// envelopes one at a time. It implements query.IteratorHandler.
type StreamReader struct {
	store EventStore
}

// NewStreamReader creates an iterator query handler over the given store.
func NewStreamReader(store EventStore) *StreamReader {
	return &StreamReader{store: store}
}

func (r *StreamReader) Handle(ctx context.Context, qry query.Query, res *query.IteratorResult) error {
	q, ok := qry.(StreamEventsQuery)
	if !ok {
		return fmt.Errorf("unknown query type: %s: %w", TypeName(qry), ErrHandlerNotFound)
	}

	iter, err := r.store.LoadStreamFrom(ctx, q.StreamID, q.FromVersion)
	if err != nil {
		return fmt.Errorf("stream query %q: %w", q.StreamID, err)
	}

	for iter.Next(ctx) {
		res.Yield(iter.Value())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("stream query %q: %w", q.StreamID, err)
	}

	res.Done()
	return nil
}
