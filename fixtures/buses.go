package fixtures

import (
	"context"
	"sync"

	ef "github.com/terraskye/eventflow"
)

// EventBusSpy is a configurable mock EventBus for testing.
// It tracks subscriptions and published envelopes.
type EventBusSpy struct {
	mu sync.Mutex

	// Function overrides
	PublishFn func(ctx context.Context, envs ...*ef.Envelope) error
	CloseFn   func() error

	// Call tracking
	SubscribeCalls   int
	UnsubscribeCalls int
	PublishCalls     int
	CloseCalls       int

	// Captured subscriptions and envelopes
	Subscriptions []Subscription
	Published     []*ef.Envelope

	// Error injection
	publishErr error
}

// Subscription captures details of a Subscribe call.
type Subscription struct {
	EventType string
	Handler   ef.EventHandler
}

// NewEventBusSpy creates a new EventBusSpy.
func NewEventBusSpy() *EventBusSpy {
	return &EventBusSpy{}
}

// FailOnPublish configures the bus to return an error on Publish.
func (b *EventBusSpy) FailOnPublish(err error) *EventBusSpy {
	b.publishErr = err
	return b
}

// Subscribe implements EventBus.Subscribe.
func (b *EventBusSpy) Subscribe(eventType string, handler ef.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SubscribeCalls++
	b.Subscriptions = append(b.Subscriptions, Subscription{
		EventType: eventType,
		Handler:   handler,
	})
}

// Unsubscribe implements EventBus.Unsubscribe.
func (b *EventBusSpy) Unsubscribe(eventType string, handler ef.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.UnsubscribeCalls++
}

// Publish implements EventBus.Publish.
func (b *EventBusSpy) Publish(ctx context.Context, envs ...*ef.Envelope) error {
	b.mu.Lock()
	b.PublishCalls++
	b.Published = append(b.Published, envs...)
	b.mu.Unlock()

	if b.PublishFn != nil {
		return b.PublishFn(ctx, envs...)
	}
	return b.publishErr
}

// Close implements EventBus.Close.
func (b *EventBusSpy) Close() error {
	b.mu.Lock()
	b.CloseCalls++
	b.mu.Unlock()

	if b.CloseFn != nil {
		return b.CloseFn()
	}
	return nil
}

// Reset clears all call counts, subscriptions and published envelopes.
func (b *EventBusSpy) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.SubscribeCalls = 0
	b.UnsubscribeCalls = 0
	b.PublishCalls = 0
	b.CloseCalls = 0
	b.Subscriptions = nil
	b.Published = nil
	b.publishErr = nil
}

// HasSubscription checks if a subscription for the given event type exists.
func (b *EventBusSpy) HasSubscription(eventType string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.Subscriptions {
		if sub.EventType == eventType {
			return true
		}
	}
	return false
}

// PublishedCount returns the number of envelopes published.
func (b *EventBusSpy) PublishedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Published)
}

// EventHandlerSpy is a configurable mock EventHandler for testing.
type EventHandlerSpy struct {
	mu sync.Mutex

	// Function override
	HandleFn func(ctx context.Context, event ef.Event) error

	// Call tracking
	HandleCalls int

	// Captured events
	ReceivedEvents []ef.Event

	// Error injection
	handleErr error
}

// NewEventHandlerSpy creates a new EventHandlerSpy.
func NewEventHandlerSpy() *EventHandlerSpy {
	return &EventHandlerSpy{}
}

// FailOnHandle configures the handler to return an error.
func (h *EventHandlerSpy) FailOnHandle(err error) *EventHandlerSpy {
	h.handleErr = err
	return h
}

// Handle implements EventHandler.Handle.
func (h *EventHandlerSpy) Handle(ctx context.Context, event ef.Event) error {
	h.mu.Lock()
	h.HandleCalls++
	h.ReceivedEvents = append(h.ReceivedEvents, event)
	h.mu.Unlock()

	if h.HandleFn != nil {
		return h.HandleFn(ctx, event)
	}

	if h.handleErr != nil {
		return h.handleErr
	}

	return nil
}

// Reset clears all call counts and received events.
func (h *EventHandlerSpy) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.HandleCalls = 0
	h.ReceivedEvents = nil
	h.handleErr = nil
}

// LastEvent returns the most recently received event, or nil if none.
func (h *EventHandlerSpy) LastEvent() ef.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.ReceivedEvents) == 0 {
		return nil
	}
	return h.ReceivedEvents[len(h.ReceivedEvents)-1]
}

// EventCount returns the number of events received.
func (h *EventHandlerSpy) EventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ReceivedEvents)
}
