package fixtures

import (
	"context"
	"io"
	"sync"

	ef "github.com/terraskye/eventflow"
)

// StoreSpy is a configurable mock EventStore for testing.
// It tracks calls and allows injecting custom behavior or failures.
type StoreSpy struct {
	mu sync.Mutex

	// Function overrides for custom behavior
	AppendFn         func(ctx context.Context, env *ef.Envelope) error
	AppendToStreamFn func(ctx context.Context, streamID string, events []ef.Envelope, revision ef.StreamState) (ef.AppendResult, error)
	LoadFn           func(ctx context.Context, filter ef.Filter) (*ef.Iterator[*ef.Envelope], error)
	LoadStreamFn     func(ctx context.Context, id string) (*ef.Iterator[*ef.Envelope], error)
	LoadStreamFromFn func(ctx context.Context, id string, version uint64) (*ef.Iterator[*ef.Envelope], error)
	CloseFn          func() error

	// Call tracking
	AppendCalls         int
	AppendToStreamCalls int
	LoadCalls           int
	LoadStreamCalls     int
	LoadStreamFromCalls int
	CloseCalls          int

	// Captured arguments from last call
	LastAppendEnvelope *ef.Envelope
	LastAppendEvents   []ef.Envelope
	LastAppendRevision ef.StreamState
	LastLoadFilter     ef.Filter
	LastLoadStreamID   string

	// Pre-configured data, streamID to envelopes
	events map[string][]*ef.Envelope

	// Error injection
	loadErr   error
	appendErr error
}

// NewStoreSpy creates a new StoreSpy with default behavior.
func NewStoreSpy() *StoreSpy {
	return &StoreSpy{
		events: make(map[string][]*ef.Envelope),
	}
}

// WithEvents pre-populates the store with events for a stream.
func (s *StoreSpy) WithEvents(streamID string, events ...*ef.Envelope) *StoreSpy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[streamID] = events
	return s
}

// WithEventsFromSlice pre-populates the store with events from an Event slice.
func (s *StoreSpy) WithEventsFromSlice(streamID string, events ...ef.Event) *StoreSpy {
	envelopes := EnvelopesFromEvents(events...)
	return s.WithEvents(streamID, envelopes...)
}

// FailOnLoad configures the store to return an error on load operations.
func (s *StoreSpy) FailOnLoad(err error) *StoreSpy {
	s.loadErr = err
	return s
}

// FailOnAppend configures the store to return an error on append operations.
func (s *StoreSpy) FailOnAppend(err error) *StoreSpy {
	s.appendErr = err
	return s
}

// Append implements EventStore.Append.
func (s *StoreSpy) Append(ctx context.Context, env *ef.Envelope) error {
	s.mu.Lock()
	s.AppendCalls++
	s.LastAppendEnvelope = env
	s.mu.Unlock()

	if s.AppendFn != nil {
		return s.AppendFn(ctx, env)
	}

	if s.appendErr != nil {
		return s.appendErr
	}

	s.mu.Lock()
	s.events[env.StreamID] = append(s.events[env.StreamID], env)
	s.mu.Unlock()
	return nil
}

// AppendToStream implements EventStore.AppendToStream.
func (s *StoreSpy) AppendToStream(ctx context.Context, streamID string, events []ef.Envelope, revision ef.StreamState) (ef.AppendResult, error) {
	s.mu.Lock()
	s.AppendToStreamCalls++
	s.LastAppendEvents = events
	s.LastAppendRevision = revision
	s.mu.Unlock()

	if s.AppendToStreamFn != nil {
		return s.AppendToStreamFn(ctx, streamID, events, revision)
	}

	if s.appendErr != nil {
		return ef.AppendResult{Successful: false}, s.appendErr
	}

	s.mu.Lock()
	for i := range events {
		env := events[i]
		s.events[streamID] = append(s.events[streamID], &env)
	}
	nextVersion := uint64(len(s.events[streamID]))
	s.mu.Unlock()

	return ef.AppendResult{
		Successful:          true,
		NextExpectedVersion: nextVersion,
	}, nil
}

// Load implements EventStore.Load.
func (s *StoreSpy) Load(ctx context.Context, filter ef.Filter) (*ef.Iterator[*ef.Envelope], error) {
	s.mu.Lock()
	s.LoadCalls++
	s.LastLoadFilter = filter
	s.mu.Unlock()

	if s.LoadFn != nil {
		return s.LoadFn(ctx, filter)
	}

	if s.loadErr != nil {
		return nil, s.loadErr
	}

	s.mu.Lock()
	var matched []*ef.Envelope
	for _, events := range s.events {
		for _, env := range events {
			if filter.Match(env) {
				matched = append(matched, env)
			}
		}
	}
	s.mu.Unlock()

	return SliceIterator(matched), nil
}

// LoadStream implements EventStore.LoadStream.
func (s *StoreSpy) LoadStream(ctx context.Context, id string) (*ef.Iterator[*ef.Envelope], error) {
	s.mu.Lock()
	s.LoadStreamCalls++
	s.LastLoadStreamID = id
	s.mu.Unlock()

	if s.LoadStreamFn != nil {
		return s.LoadStreamFn(ctx, id)
	}

	if s.loadErr != nil {
		return nil, s.loadErr
	}

	s.mu.Lock()
	events := s.events[id]
	s.mu.Unlock()

	return SliceIterator(events), nil
}

// LoadStreamFrom implements EventStore.LoadStreamFrom.
func (s *StoreSpy) LoadStreamFrom(ctx context.Context, id string, version uint64) (*ef.Iterator[*ef.Envelope], error) {
	s.mu.Lock()
	s.LoadStreamFromCalls++
	s.LastLoadStreamID = id
	s.mu.Unlock()

	if s.LoadStreamFromFn != nil {
		return s.LoadStreamFromFn(ctx, id, version)
	}

	if s.loadErr != nil {
		return nil, s.loadErr
	}

	s.mu.Lock()
	events := s.events[id]
	s.mu.Unlock()

	var filtered []*ef.Envelope
	for _, e := range events {
		if e.Version > version {
			filtered = append(filtered, e)
		}
	}

	return SliceIterator(filtered), nil
}

// Close implements EventStore.Close.
func (s *StoreSpy) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	s.mu.Unlock()

	if s.CloseFn != nil {
		return s.CloseFn()
	}
	return nil
}

// Reset clears all call counts and stored data.
func (s *StoreSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.AppendCalls = 0
	s.AppendToStreamCalls = 0
	s.LoadCalls = 0
	s.LoadStreamCalls = 0
	s.LoadStreamFromCalls = 0
	s.CloseCalls = 0
	s.LastAppendEnvelope = nil
	s.LastAppendEvents = nil
	s.LastAppendRevision = nil
	s.LastLoadFilter = ef.Filter{}
	s.LastLoadStreamID = ""
	s.events = make(map[string][]*ef.Envelope)
	s.loadErr = nil
	s.appendErr = nil
}

// Pre-built store scenarios.

// EmptyStore returns a StoreSpy with no events.
func EmptyStore() *StoreSpy {
	return NewStoreSpy()
}

// StoreWithEvents returns a StoreSpy pre-populated with n test events.
func StoreWithEvents(streamID string, n int) *StoreSpy {
	events := NewTestEvent().WithID(streamID).BuildN(n)
	return NewStoreSpy().WithEventsFromSlice(streamID, events...)
}

// FailingStore returns a StoreSpy that fails on all operations.
func FailingStore(err error) *StoreSpy {
	return NewStoreSpy().FailOnLoad(err).FailOnAppend(err)
}

// ConcurrencyConflictStore returns a StoreSpy that returns a revision
// conflict on every batch append.
func ConcurrencyConflictStore(streamID string, expected, actual ef.Revision) *StoreSpy {
	store := NewStoreSpy()
	store.AppendToStreamFn = func(ctx context.Context, id string, events []ef.Envelope, revision ef.StreamState) (ef.AppendResult, error) {
		return ef.AppendResult{Successful: false}, &ef.StreamRevisionConflictError{
			Stream:           streamID,
			ExpectedRevision: expected,
			ActualRevision:   actual,
		}
	}
	return store
}

// StreamNotFoundStore returns a StoreSpy that returns ErrStreamNotFound on load.
func StreamNotFoundStore() *StoreSpy {
	store := NewStoreSpy()
	store.LoadStreamFn = func(ctx context.Context, id string) (*ef.Iterator[*ef.Envelope], error) {
		return nil, ef.ErrStreamNotFound
	}
	store.LoadStreamFromFn = func(ctx context.Context, id string, version uint64) (*ef.Iterator[*ef.Envelope], error) {
		return nil, ef.ErrStreamNotFound
	}
	return store
}

// SliceIterator creates an iterator from a slice of envelope pointers.
func SliceIterator(envelopes []*ef.Envelope) *ef.Iterator[*ef.Envelope] {
	idx := 0
	return ef.NewIteratorFunc(func(ctx context.Context) (*ef.Envelope, error) {
		if idx >= len(envelopes) {
			return nil, io.EOF
		}
		env := envelopes[idx]
		idx++
		return env, nil
	})
}
