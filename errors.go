package eventflow

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamNotFound is returned when loading a stream that has no events.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrStreamExists is returned when appending with NoStream to a stream
	// that already has events.
	ErrStreamExists = errors.New("stream already exists")

	// ErrInvalidRevision is returned for an unsupported or out-of-range
	// stream revision.
	ErrInvalidRevision = errors.New("invalid stream revision")

	// ErrInvalidEventBatch is returned when a batch mixes stream IDs.
	ErrInvalidEventBatch = errors.New("invalid event batch")

	// ErrBusClosed is returned when publishing on a closed bus or dispatcher.
	ErrBusClosed = errors.New("event bus is closed")

	// ErrDuplicateHandler is returned when a named handler is registered twice.
	ErrDuplicateHandler = errors.New("duplicate handler")

	// ErrHandlerNotFound is returned when no handler is registered for a query.
	ErrHandlerNotFound = errors.New("handler not found")
)

// StreamRevisionConflictError reports an optimistic concurrency conflict:
// the stream moved past the revision the caller expected. The caller should
// reload the aggregate and retry at the business level; the store is left
// untouched.
type StreamRevisionConflictError struct {
	Stream           string
	ExpectedRevision Revision
	ActualRevision   Revision
}

func (s *StreamRevisionConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on stream %q: (expected version %d, actual %d)",
		s.Stream, s.ExpectedRevision, s.ActualRevision)
}

// ErrSkippedEvent is returned when a typed handler cannot handle the event type.
type ErrSkippedEvent struct {
	Event Event
}

func (e *ErrSkippedEvent) Error() string {
	return fmt.Sprintf("skipped event of type %T", e.Event)
}

// Is lets errors.Is match any skipped-event error regardless of payload.
func (e *ErrSkippedEvent) Is(target error) bool {
	_, ok := target.(*ErrSkippedEvent)
	return ok
}

// EventStoreError wraps a persistence failure. This is the one failure mode
// that always propagates to the caller: the append-only guarantee was not
// met.
type EventStoreError struct {
	Op  string
	Err error
}

func (e *EventStoreError) Error() string {
	return fmt.Sprintf("eventstore %s: %v", e.Op, e.Err)
}

func (e *EventStoreError) Unwrap() error {
	return e.Err
}

// WrapEventStoreError wraps err as an EventStoreError for the given
// operation, preserving nil.
func WrapEventStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EventStoreError{Op: op, Err: err}
}

// HandlerError identifies which handler failed for which envelope. It is
// what the buses hand to the failure sink; it never reaches publishers.
type HandlerError struct {
	HandlerID string
	Envelope  *Envelope
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %q failed for event %s: %v", e.HandlerID, e.Envelope.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
