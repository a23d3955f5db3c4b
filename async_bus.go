package eventflow

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// queuedEvent represents an envelope enqueued on a delivery lane. Done is
// closed once every handler for the envelope has settled.
type queuedEvent struct {
	Ctx  context.Context
	Env  *Envelope
	Done chan struct{}
}

// AsyncBusConfig configures the asynchronous bus.
type AsyncBusConfig struct {
	// Lanes is the number of ordered delivery lanes. Envelopes are assigned
	// to a lane by hashing their stream ID, so all events of one aggregate
	// share a lane and are delivered in order. Default: 16.
	Lanes int

	// BufferSize is the capacity of each lane queue. Default: 64.
	BufferSize int

	// MaxConcurrency bounds the number of handlers running at once across
	// all lanes. Default: 32.
	MaxConcurrency int

	// HandlerTimeout bounds a single handler invocation. A timeout is a
	// terminal failure for that handler and event pair, captured by the
	// failure sink like any other error. Zero disables the timeout.
	HandlerTimeout time.Duration
}

// DefaultAsyncBusConfig provides the defaults applied to zero fields.
var DefaultAsyncBusConfig = AsyncBusConfig{
	Lanes:          16,
	BufferSize:     64,
	MaxConcurrency: 32,
}

// AsyncBus delivers envelopes to handlers on a bounded worker pool.
//
// Envelopes sharing a stream ID are serialized onto a single lane, so a
// handler observes the events of one aggregate in non-decreasing version
// order while unrelated aggregates fan out across lanes. Publish blocks
// until every handler for the published envelopes has settled, but handler
// failures are captured by the sink and never returned to the publisher.
type AsyncBus struct {
	cfg      AsyncBusConfig
	registry *Registry
	lanes    []chan queuedEvent
	sem      chan struct{}
	sink     FailureSink
	logger   *slog.Logger

	// mu orders the closed check in Publish against Close: a publisher is
	// either counted in publishWg before the lanes close, or sees closed.
	mu        sync.RWMutex
	closed    bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	publishWg sync.WaitGroup
	workerWg  sync.WaitGroup
}

// AsyncBusOption configures an AsyncBus.
type AsyncBusOption func(*AsyncBus)

// WithAsyncFailureSink routes handler failures into the given sink,
// typically a DLQ.
func WithAsyncFailureSink(sink FailureSink) AsyncBusOption {
	return func(b *AsyncBus) {
		b.sink = sink
	}
}

// WithAsyncLogger sets the bus logger.
func WithAsyncLogger(logger *slog.Logger) AsyncBusOption {
	return func(b *AsyncBus) {
		b.logger = logger
	}
}

// NewAsyncBus creates an asynchronous event bus and starts its lane
// workers. Call Close to drain and stop them.
func NewAsyncBus(cfg AsyncBusConfig, opts ...AsyncBusOption) *AsyncBus {
	if cfg.Lanes <= 0 {
		cfg.Lanes = DefaultAsyncBusConfig.Lanes
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultAsyncBusConfig.BufferSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultAsyncBusConfig.MaxConcurrency
	}

	_ = Init()

	b := &AsyncBus{
		cfg:      cfg,
		registry: NewRegistry(),
		lanes:    make([]chan queuedEvent, cfg.Lanes),
		sem:      make(chan struct{}, cfg.MaxConcurrency),
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	for i := 0; i < cfg.Lanes; i++ {
		b.lanes[i] = make(chan queuedEvent, cfg.BufferSize)
		b.workerWg.Add(1)
		go b.worker(b.lanes[i])
	}

	return b
}

// Subscribe registers a handler for an event type. Registering the same
// handler for the same type twice is a no-op.
func (b *AsyncBus) Subscribe(eventType string, handler EventHandler) {
	b.registry.Register(eventType, handler)
}

// Unsubscribe removes a handler. Unknown handlers are ignored.
func (b *AsyncBus) Unsubscribe(eventType string, handler EventHandler) {
	b.registry.Unregister(eventType, handler)
}

// Publish enqueues the envelopes on their lanes and waits until all
// handlers have settled. It returns ErrBusClosed after Close, or the
// context error if ctx expires before the envelopes could be enqueued;
// handler errors go to the failure sink.
func (b *AsyncBus) Publish(ctx context.Context, envs ...*Envelope) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	b.publishWg.Add(1)
	b.mu.RUnlock()
	defer b.publishWg.Done()

	pending := make([]chan struct{}, 0, len(envs))
	for _, env := range envs {
		if env == nil {
			continue
		}

		EventsPublished.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event.type", env.EventType()),
			attribute.String("bus", "async"),
		))

		done := make(chan struct{})
		lane := b.getLane(env)

		select {
		case b.lanes[lane] <- queuedEvent{Ctx: ctx, Env: env, Done: done}:
			pending = append(pending, done)
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return ErrBusClosed
		}
	}

	for _, done := range pending {
		<-done
	}
	return nil
}

// worker drains one lane, delivering each envelope to all of its handlers
// before taking the next one. Fan-out across handlers borrows slots from
// the shared semaphore so total concurrency stays bounded.
func (b *AsyncBus) worker(lane chan queuedEvent) {
	defer b.workerWg.Done()

	for qe := range lane {
		handlers := b.registry.HandlersFor(qe.Env.EventType())
		hctx := WithEnvelope(qe.Ctx, qe.Env)

		var wg sync.WaitGroup
		for _, h := range handlers {
			b.sem <- struct{}{}
			wg.Add(1)
			go func(h EventHandler) {
				defer wg.Done()
				defer func() { <-b.sem }()
				b.invoke(hctx, h, qe.Env)
			}(h)
		}
		wg.Wait()
		close(qe.Done)
	}
}

// invoke runs one handler under the configured timeout. The handler
// goroutine cannot be interrupted; on timeout the result is discarded and
// the failure is captured.
func (b *AsyncBus) invoke(ctx context.Context, h EventHandler, env *Envelope) {
	if b.cfg.HandlerTimeout <= 0 {
		deliver(ctx, h, env, b.sink, b.logger, "async")
		return
	}

	tctx, cancel := context.WithTimeout(ctx, b.cfg.HandlerTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- execute(tctx, h, env, "async")
	}()

	select {
	case err := <-errCh:
		report(ctx, env, HandlerID(h), err, b.sink, b.logger)
	case <-tctx.Done():
		err := fmt.Errorf("handler timed out after %s: %w", b.cfg.HandlerTimeout, tctx.Err())
		report(ctx, env, HandlerID(h), err, b.sink, b.logger)
	}
}

func (b *AsyncBus) getLane(env *Envelope) int {
	key := env.StreamID
	if key == "" {
		// No ordering guarantee without an aggregate: spread by event ID.
		key = env.EventID.String()
	}
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return int(hash.Sum32()) % b.cfg.Lanes
}

// Close stops accepting publishes, drains the lanes, and waits for all
// in-flight handlers to finish.
func (b *AsyncBus) Close() error {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.stopCh)
		b.mu.Unlock()
		b.publishWg.Wait()
		for _, lane := range b.lanes {
			close(lane)
		}
		b.workerWg.Wait()
	})
	return nil
}
