package eventflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// storedEvent is the wire shape of a persisted envelope. Payloads are kept
// as raw JSON so decoding can be deferred until the event type is known.
type storedEvent struct {
	EventID       uuid.UUID       `json:"event_id"`
	StreamID      string          `json:"stream_id"`
	EventType     string          `json:"event_type"`
	Version       uint64          `json:"version"`
	GlobalVersion uint64          `json:"global_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Codec serializes envelopes to JSON and back. Decoding resolves the
// payload type through the registry, so every event type that crosses a
// store boundary must be registered. The round trip preserves all envelope
// fields.
type Codec struct {
	registry *TypeRegistry
}

// NewCodec creates a codec backed by the given type registry.
func NewCodec(registry *TypeRegistry) *Codec {
	return &Codec{registry: registry}
}

// Registry returns the registry the codec decodes through.
func (c *Codec) Registry() *TypeRegistry {
	return c.registry
}

// Encode serializes an envelope.
func (c *Codec) Encode(env *Envelope) ([]byte, error) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return nil, fmt.Errorf("encode event %s payload: %w", env.EventID, err)
	}

	return json.Marshal(storedEvent{
		EventID:       env.EventID,
		StreamID:      env.StreamID,
		EventType:     env.EventType(),
		Version:       env.Version,
		GlobalVersion: env.GlobalVersion,
		OccurredAt:    env.OccurredAt,
		CorrelationID: env.CorrelationID,
		CausationID:   env.CausationID,
		Metadata:      env.Metadata,
		Payload:       payload,
	})
}

// Decode deserializes an envelope, reconstructing the typed payload via the
// registry.
func (c *Codec) Decode(data []byte) (*Envelope, error) {
	var stored storedEvent
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode stored event: %w", err)
	}

	event, err := c.decodePayload(stored.EventType, stored.Payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		EventID:       stored.EventID,
		StreamID:      stored.StreamID,
		Metadata:      stored.Metadata,
		Event:         event,
		Version:       stored.Version,
		GlobalVersion: stored.GlobalVersion,
		OccurredAt:    stored.OccurredAt,
		CorrelationID: stored.CorrelationID,
		CausationID:   stored.CausationID,
	}, nil
}

func (c *Codec) decodePayload(eventType string, payload json.RawMessage) (Event, error) {
	ev, err := c.registry.New(eventType)
	if err != nil {
		return nil, PermanentErr(err)
	}

	// Factories conventionally return pointers; take an addressable copy
	// for the ones that return values.
	rv := reflect.ValueOf(ev)
	if rv.Kind() == reflect.Pointer {
		if err := json.Unmarshal(payload, ev); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return ev, nil
	}

	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	if err := json.Unmarshal(payload, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	decoded, ok := ptr.Elem().Interface().(Event)
	if !ok {
		return nil, fmt.Errorf("decoded %s payload does not implement Event", eventType)
	}
	return decoded, nil
}
