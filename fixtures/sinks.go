package fixtures

import (
	"context"
	"sync"

	ef "github.com/terraskye/eventflow"
)

// Failure captures a single Capture call on a SinkSpy.
type Failure struct {
	Envelope  *ef.Envelope
	HandlerID string
	Cause     error
}

// SinkSpy is a mock FailureSink that records every captured failure.
type SinkSpy struct {
	mu sync.Mutex

	// Captured failures in order of arrival
	Failures []Failure
}

// NewSinkSpy creates a new SinkSpy.
func NewSinkSpy() *SinkSpy {
	return &SinkSpy{}
}

// Capture implements FailureSink.Capture.
func (s *SinkSpy) Capture(ctx context.Context, env *ef.Envelope, handlerID string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failures = append(s.Failures, Failure{
		Envelope:  env,
		HandlerID: handlerID,
		Cause:     cause,
	})
}

// Count returns the number of captured failures.
func (s *SinkSpy) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Failures)
}

// Last returns the most recently captured failure, or the zero Failure.
func (s *SinkSpy) Last() Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Failures) == 0 {
		return Failure{}
	}
	return s.Failures[len(s.Failures)-1]
}

// ForHandler returns the failures captured for the given handler ID.
func (s *SinkSpy) ForHandler(handlerID string) []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Failure
	for _, f := range s.Failures {
		if f.HandlerID == handlerID {
			matched = append(matched, f)
		}
	}
	return matched
}

// Reset clears all captured failures.
func (s *SinkSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failures = nil
}
