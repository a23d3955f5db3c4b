package eventflow

import (
	"context"
)

// Aggregate is an entity rebuilt from its ordered event history. Its
// version equals the version of the last applied event; new events are
// collected as uncommitted envelopes until a Repository saves them.
type Aggregate interface {

	// EntityID returns the unique identifier of the aggregate.
	EntityID() string

	// AggregateVersion returns the version of the last applied event.
	AggregateVersion() uint64

	// SetAggregateVersion sets the version after replay or save.
	SetAggregateVersion(version uint64)

	// UncommittedEvents returns the events recorded since the last save.
	UncommittedEvents() []Envelope

	// ClearUncommittedEvents discards the recorded events after a save.
	ClearUncommittedEvents()

	// AppendEvent records a new event with the next version number.
	AppendEvent(event Event, options ...EventOption)

	// ApplyEvent folds one historical envelope into the aggregate state.
	// It must be deterministic and free of side effects: replaying the
	// same history always yields the same state.
	ApplyEvent(ctx context.Context, env *Envelope)
}

// AggregateBase supplies the identity, version, and uncommitted-event
// bookkeeping of an Aggregate. Embed it and implement ApplyEvent.
type AggregateBase struct {
	id     string
	v      uint64
	events []Envelope
}

// NewAggregateBase creates the base for an aggregate with the given ID.
func NewAggregateBase(id string) *AggregateBase {
	return &AggregateBase{
		id:     id,
		events: make([]Envelope, 0),
	}
}

// EntityID returns the aggregate ID.
func (a *AggregateBase) EntityID() string {
	return a.id
}

// AggregateVersion returns the version of the last applied event.
func (a *AggregateBase) AggregateVersion() uint64 {
	return a.v
}

// SetAggregateVersion sets the version. Called by the Repository after
// replay and after a successful save.
func (a *AggregateBase) SetAggregateVersion(v uint64) {
	a.v = v
}

// UncommittedEvents returns the envelopes recorded since the last save.
func (a *AggregateBase) UncommittedEvents() []Envelope {
	return a.events
}

// ClearUncommittedEvents discards the recorded envelopes.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.events = nil
}

// AppendEvent records an event with the next version in the stream,
// counting from the persisted version plus any events already pending.
func (a *AggregateBase) AppendEvent(event Event, options ...EventOption) {
	version := a.AggregateVersion() + uint64(len(a.events)) + 1

	env := NewEnvelope(event, append([]EventOption{WithVersion(version)}, options...)...)
	env.StreamID = a.id

	a.events = append(a.events, *env)
}
