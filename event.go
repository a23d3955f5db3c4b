package eventflow

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

var now = time.Now

// Event is a domain event describing a change that has happened to an aggregate.
type Event interface {
	AggregateID() string
	EventType() string
}

// Envelope is the immutable unit the system routes and stores. It wraps a
// domain Event with identity and delivery metadata. Once constructed an
// envelope is never mutated; two envelopes are the same event iff their
// EventIDs match.
type Envelope struct {
	EventID       uuid.UUID
	StreamID      string
	Metadata      map[string]any
	Event         Event
	Version       uint64
	GlobalVersion uint64
	OccurredAt    time.Time
	CorrelationID string
	CausationID   string
}

// EventType returns the type tag of the wrapped event. The tag is what the
// handler registry and the type registry key on; no reflection happens at
// dispatch time.
func (e *Envelope) EventType() string {
	if e.Event == nil {
		return ""
	}
	return e.Event.EventType()
}

// Equal reports whether two envelopes identify the same event.
func (e *Envelope) Equal(other *Envelope) bool {
	if other == nil {
		return false
	}
	return e.EventID == other.EventID
}

// EventOption mutates an envelope during construction only.
type EventOption func(*Envelope)

// WithEventID sets a specific event ID instead of the generated one.
func WithEventID(id uuid.UUID) EventOption {
	return func(e *Envelope) {
		e.EventID = id
	}
}

// WithOccurredAt sets a specific timestamp instead of the wall clock.
func WithOccurredAt(t time.Time) EventOption {
	return func(e *Envelope) {
		e.OccurredAt = t
	}
}

// WithVersion sets the aggregate-local version of the envelope.
func WithVersion(v uint64) EventOption {
	return func(e *Envelope) {
		e.Version = v
	}
}

// WithCorrelationID groups this event with related events across the system.
func WithCorrelationID(id string) EventOption {
	return func(e *Envelope) {
		e.CorrelationID = id
	}
}

// WithCausationID records the event or command that produced this event.
func WithCausationID(id string) EventOption {
	return func(e *Envelope) {
		e.CausationID = id
	}
}

// WithMetadata merges the given fields into the envelope metadata.
func WithMetadata(md map[string]any) EventOption {
	return func(e *Envelope) {
		for k, v := range md {
			e.Metadata[k] = v
		}
	}
}

// NewEnvelope wraps a domain event for publishing or storage. EventID and
// OccurredAt are assigned automatically unless overridden by options. A
// missing correlation ID defaults to the event's own ID so that the first
// event of a chain is its own correlation root.
func NewEnvelope(event Event, options ...EventOption) *Envelope {
	env := &Envelope{
		EventID:    uuid.New(),
		StreamID:   event.AggregateID(),
		Metadata:   make(map[string]any),
		Event:      event,
		OccurredAt: now(),
	}

	for _, option := range options {
		option(env)
	}

	if env.CorrelationID == "" {
		env.CorrelationID = env.EventID.String()
	}

	return env
}

// Derived wraps an event caused by a previous one, inheriting the parent's
// correlation ID and recording the parent as causation.
func Derived(parent *Envelope, event Event, options ...EventOption) *Envelope {
	inherited := []EventOption{
		WithCorrelationID(parent.CorrelationID),
		WithCausationID(parent.EventID.String()),
	}
	return NewEnvelope(event, append(inherited, options...)...)
}

// TypeName returns the qualified type name of v, used as the default event
// name for typed handlers and registry entries.
func TypeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
