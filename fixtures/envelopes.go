package fixtures

import (
	"time"

	"github.com/google/uuid"
	ef "github.com/terraskye/eventflow"
)

// EnvelopeBuilder provides a fluent API for constructing envelopes without
// going through NewEnvelope, so tests can control every field.
type EnvelopeBuilder struct {
	eventID       uuid.UUID
	streamID      string
	event         ef.Event
	version       uint64
	globalVersion uint64
	occurredAt    time.Time
	correlationID string
	causationID   string
	metadata      map[string]any
}

// NewEnvelopeBuilder creates a new EnvelopeBuilder with defaults.
func NewEnvelopeBuilder() *EnvelopeBuilder {
	return &EnvelopeBuilder{
		eventID:       uuid.New(),
		streamID:      "stream-1",
		event:         TestEvent{ID: "stream-1", Type: "TestEvent"},
		version:       1,
		globalVersion: 1,
		occurredAt:    time.Now(),
		metadata:      make(map[string]any),
	}
}

// WithEventID sets a specific event ID.
func (b *EnvelopeBuilder) WithEventID(id uuid.UUID) *EnvelopeBuilder {
	b.eventID = id
	return b
}

// WithStreamID sets the stream ID.
func (b *EnvelopeBuilder) WithStreamID(id string) *EnvelopeBuilder {
	b.streamID = id
	return b
}

// WithEvent sets the event and aligns the stream ID with it.
func (b *EnvelopeBuilder) WithEvent(e ef.Event) *EnvelopeBuilder {
	b.event = e
	b.streamID = e.AggregateID()
	return b
}

// WithVersion sets the stream version.
func (b *EnvelopeBuilder) WithVersion(v uint64) *EnvelopeBuilder {
	b.version = v
	return b
}

// WithGlobalVersion sets the global version.
func (b *EnvelopeBuilder) WithGlobalVersion(v uint64) *EnvelopeBuilder {
	b.globalVersion = v
	return b
}

// WithTimestamp sets the occurred-at timestamp.
func (b *EnvelopeBuilder) WithTimestamp(t time.Time) *EnvelopeBuilder {
	b.occurredAt = t
	return b
}

// WithCorrelationID sets the correlation ID.
func (b *EnvelopeBuilder) WithCorrelationID(id string) *EnvelopeBuilder {
	b.correlationID = id
	return b
}

// WithCausationID sets the causation ID.
func (b *EnvelopeBuilder) WithCausationID(id string) *EnvelopeBuilder {
	b.causationID = id
	return b
}

// WithMetadata sets the entire metadata map.
func (b *EnvelopeBuilder) WithMetadata(m map[string]any) *EnvelopeBuilder {
	b.metadata = m
	return b
}

// WithMetadataField adds a single metadata field.
func (b *EnvelopeBuilder) WithMetadataField(key string, value any) *EnvelopeBuilder {
	b.metadata[key] = value
	return b
}

// Build constructs the Envelope.
func (b *EnvelopeBuilder) Build() *ef.Envelope {
	return &ef.Envelope{
		EventID:       b.eventID,
		StreamID:      b.streamID,
		Event:         b.event,
		Version:       b.version,
		GlobalVersion: b.globalVersion,
		OccurredAt:    b.occurredAt,
		CorrelationID: b.correlationID,
		CausationID:   b.causationID,
		Metadata:      b.metadata,
	}
}

// BuildValue returns the envelope as a value (not pointer).
func (b *EnvelopeBuilder) BuildValue() ef.Envelope {
	return *b.Build()
}

// EnvelopesFromEvents creates envelopes from a slice of events with
// sequential versions and millisecond-spaced timestamps.
func EnvelopesFromEvents(events ...ef.Event) []*ef.Envelope {
	envelopes := make([]*ef.Envelope, len(events))
	baseTime := time.Now()

	for i, event := range events {
		envelopes[i] = &ef.Envelope{
			EventID:       uuid.New(),
			StreamID:      event.AggregateID(),
			Event:         event,
			Version:       uint64(i + 1),
			GlobalVersion: uint64(i + 1),
			OccurredAt:    baseTime.Add(time.Duration(i) * time.Millisecond),
			Metadata:      make(map[string]any),
		}
	}

	return envelopes
}

// EnvelopeValuesFromEvents creates envelope values from a slice of events.
func EnvelopeValuesFromEvents(events ...ef.Event) []ef.Envelope {
	ptrs := EnvelopesFromEvents(events...)
	values := make([]ef.Envelope, len(ptrs))
	for i, p := range ptrs {
		values[i] = *p
	}
	return values
}
