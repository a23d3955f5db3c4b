package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/terraskye/eventflow"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MemoryStore is an in-memory, append-only event store. Appends are
// idempotent by event ID; stream appends enforce the requested revision.
// Suitable for tests and single-process deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	bus    chan *eventflow.Envelope
	byID   map[uuid.UUID]struct{}
	global []*eventflow.Envelope
	events map[string][]*eventflow.Envelope
	closed bool
}

// NewMemoryStore creates a store with a feed channel of the given buffer.
func NewMemoryStore(buffer int64) *MemoryStore {
	_ = eventflow.Init()

	return &MemoryStore{
		byID:   make(map[uuid.UUID]struct{}),
		events: make(map[string][]*eventflow.Envelope),
		global: make([]*eventflow.Envelope, 0),
		bus:    make(chan *eventflow.Envelope, buffer),
	}
}

// Append stores a single envelope without a revision check. An envelope
// whose event ID is already present is skipped silently, so at-least-once
// producers can append the same event twice.
func (m *MemoryStore) Append(ctx context.Context, env *eventflow.Envelope) error {
	if env == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.byID[env.EventID]; dup {
		return nil
	}
	m.appendLocked(ctx, env)
	return nil
}

// AppendToStream atomically appends a batch to one stream after enforcing
// the revision. All envelopes must carry the given stream ID. Envelopes
// whose event ID is already present are skipped; the revision check runs
// against the whole batch before anything is written.
func (m *MemoryStore) AppendToStream(ctx context.Context, streamID string, events []eventflow.Envelope, revision eventflow.StreamState) (eventflow.AppendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(events) == 0 {
		return eventflow.AppendResult{Successful: true, NextExpectedVersion: uint64(len(m.events[streamID]))}, nil
	}

	for i, env := range events {
		if env.StreamID != streamID {
			return eventflow.AppendResult{}, fmt.Errorf(
				"append to stream %q: %w: event %d has different stream ID %q",
				streamID, eventflow.ErrInvalidEventBatch, i, env.StreamID,
			)
		}
	}

	currentVersion := uint64(len(m.events[streamID]))

	switch rev := revision.(type) {
	case eventflow.Any:
		// No concurrency check
	case eventflow.NoStream:
		if currentVersion != 0 {
			err := fmt.Errorf("stream %q: already exists: %w", streamID, eventflow.ErrStreamExists)
			return eventflow.AppendResult{Successful: false}, err
		}
	case eventflow.StreamExists:
		if currentVersion == 0 {
			err := fmt.Errorf("stream %q: should exist: %w", streamID, eventflow.ErrStreamNotFound)
			return eventflow.AppendResult{Successful: false}, err
		}
	case eventflow.Revision:
		if currentVersion != uint64(rev) {
			return eventflow.AppendResult{}, &eventflow.StreamRevisionConflictError{
				Stream:           streamID,
				ExpectedRevision: rev,
				ActualRevision:   eventflow.Revision(currentVersion),
			}
		}
	default:
		err := fmt.Errorf("unsupported revision type for stream %s: %w", streamID, eventflow.ErrInvalidRevision)
		return eventflow.AppendResult{Successful: false}, err
	}

	for i := range events {
		if _, dup := m.byID[events[i].EventID]; dup {
			continue
		}
		if events[i].Version == 0 {
			events[i].Version = currentVersion + 1
		}
		m.appendLocked(ctx, &events[i])
		currentVersion++
	}

	return eventflow.AppendResult{
		Successful:          true,
		NextExpectedVersion: currentVersion,
	}, nil
}

// appendLocked stores one envelope, assigns its global sequence, and
// offers it to the feed without blocking.
func (m *MemoryStore) appendLocked(ctx context.Context, env *eventflow.Envelope) {
	env.GlobalVersion = uint64(len(m.global)) + 1
	m.byID[env.EventID] = struct{}{}
	m.events[env.StreamID] = append(m.events[env.StreamID], env)
	m.global = append(m.global, env)

	eventflow.EventsAppended.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", env.EventType()),
		attribute.String("store", "memory"),
	))

	select {
	case m.bus <- env:
	default:
		// Drop if the feed is full
	}
}

// Load returns all envelopes matching the filter in global sequence order.
func (m *MemoryStore) Load(ctx context.Context, filter eventflow.Filter) (*eventflow.Iterator[*eventflow.Envelope], error) {
	m.mu.RLock()
	matched := make([]*eventflow.Envelope, 0, len(m.global))
	for _, env := range m.global {
		if filter.Match(env) {
			matched = append(matched, env)
		}
	}
	m.mu.RUnlock()

	eventflow.EventsLoaded.Add(ctx, int64(len(matched)), metric.WithAttributes(
		attribute.String("store", "memory"),
	))

	return eventflow.NewSliceIterator(matched), nil
}

// LoadStream returns the stream's envelopes in version order, or
// ErrStreamNotFound for an unknown stream.
func (m *MemoryStore) LoadStream(ctx context.Context, id string) (*eventflow.Iterator[*eventflow.Envelope], error) {
	return m.LoadStreamFrom(ctx, id, 0)
}

// LoadStreamFrom returns the stream's envelopes with version greater than
// the given version, in version order.
func (m *MemoryStore) LoadStreamFrom(ctx context.Context, id string, version uint64) (*eventflow.Iterator[*eventflow.Envelope], error) {
	m.mu.RLock()
	events, exists := m.events[id]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("load stream %q: %w", id, eventflow.ErrStreamNotFound)
	}
	if int(version) > len(events) {
		return nil, fmt.Errorf(
			"load stream %q: requested %d but stream has %d: %w",
			id, version, len(events), eventflow.ErrInvalidRevision,
		)
	}

	index := version
	iter := eventflow.NewIteratorFunc(func(ctx context.Context) (*eventflow.Envelope, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if int(index) >= len(events) {
			return nil, io.EOF
		}
		ev := events[index]
		index++
		return ev, nil
	})

	eventflow.EventsLoaded.Add(ctx, int64(len(events)-int(version)), metric.WithAttributes(
		attribute.String("store", "memory"),
	))

	return iter, nil
}

// Events returns the live feed of appended envelopes. Consumers that fall
// behind the buffer miss events; the feed is a convenience for wiring a
// store to a bus, not a durable subscription.
func (m *MemoryStore) Events() <-chan *eventflow.Envelope {
	return m.bus
}

// Close discards the stored events and closes the feed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.byID = make(map[uuid.UUID]struct{})
	m.events = make(map[string][]*eventflow.Envelope)
	m.global = nil
	close(m.bus)
	return nil
}
