package eventflow

import (
	"context"
	"time"
)

// Filter selects a subset of the store. Zero fields are wildcards; any
// combination may be set. Matching events are returned in ascending global
// sequence order.
type Filter struct {
	// AggregateID limits results to a single stream.
	AggregateID string

	// EventTypes limits results to the given type tags.
	EventTypes []string

	// From and To bound OccurredAt as the half-open interval [From, To).
	From time.Time
	To   time.Time
}

// Match reports whether the envelope passes the filter.
func (f Filter) Match(env *Envelope) bool {
	if f.AggregateID != "" && env.StreamID != f.AggregateID {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if env.EventType() == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && env.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !env.OccurredAt.Before(f.To) {
		return false
	}
	return true
}

// EventStore defines the contract for an append-only event store. A store
// persists events in sequential order per stream plus a global sequence
// across streams, allowing full reconstruction of aggregate state at any
// point in time.
//
// Implementations must guarantee:
//   - Events for a given stream are stored in version order.
//   - Appends are idempotent by event ID.
//   - Concurrency control based on the stream's expected revision.
//   - Iteration order from all Load* methods is deterministic (oldest to newest).
//
// The returned iterators are lazy; they should be consumed immediately and
// are not safe for reuse after iteration completes.
type EventStore interface {
	// Append persists a single envelope without revision checks, assigning
	// its global sequence number. Appending an envelope whose event ID is
	// already present is a no-op returning nil, which lets at-least-once
	// producers retry safely.
	Append(ctx context.Context, env *Envelope) error

	// AppendToStream appends all events in the given slice to the stream,
	// atomically, subject to the revision requirement:
	//   - Any: always append, no conflict check.
	//   - NoStream: the stream must not exist yet.
	//   - StreamExists: the stream must already exist.
	//   - Revision(n): the stream must currently be at version n.
	//
	// Errors:
	//   - *StreamRevisionConflictError if Revision(n) does not match.
	//   - ErrStreamExists / ErrStreamNotFound for the existence states.
	//   - *EventStoreError for any persistence failure.
	AppendToStream(ctx context.Context, streamID string, events []Envelope, revision StreamState) (AppendResult, error)

	// Load returns all events matching the filter in global sequence order.
	Load(ctx context.Context, filter Filter) (*Iterator[*Envelope], error)

	// LoadStream loads all events for the given stream from version 1 onward,
	// in ascending version order.
	LoadStream(ctx context.Context, id string) (*Iterator[*Envelope], error)

	// LoadStreamFrom loads events for the given stream starting after the
	// specified version index (zero-based offset into the stream).
	LoadStreamFrom(ctx context.Context, id string, version uint64) (*Iterator[*Envelope], error)

	// Close releases resources held by the store. Implementations make
	// Close idempotent.
	Close() error
}

// AppendResult describes the outcome of an append operation.
type AppendResult struct {
	Successful          bool
	NextExpectedVersion uint64
}

// EventFeed is implemented by stores that expose a buffered feed of
// appended envelopes, so a dispatcher can be attached for
// publish-on-append. Sends are non-blocking; slow consumers miss events.
type EventFeed interface {
	Events() <-chan *Envelope
}
