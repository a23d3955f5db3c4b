package eventflow

import (
	"context"
	"log/slog"
)

// PublishFunc delivers one envelope to a bus.
type PublishFunc func(ctx context.Context, env *Envelope) error

// Middleware wraps the publish path of a Dispatcher. A middleware runs once
// per published envelope, before any handler sees it, and may enrich the
// envelope, short-circuit delivery, or observe it. The first middleware
// passed to the Dispatcher is the outermost.
type Middleware func(next PublishFunc) PublishFunc

// chain composes middlewares around a terminal publish function.
func chain(terminal PublishFunc, middlewares []Middleware) PublishFunc {
	next := terminal
	for i := len(middlewares) - 1; i >= 0; i-- {
		next = middlewares[i](next)
	}
	return next
}

// EnrichMetadata returns a middleware that sets a metadata key on every
// published envelope, unless the publisher already set it.
func EnrichMetadata(key string, value any) Middleware {
	return func(next PublishFunc) PublishFunc {
		return func(ctx context.Context, env *Envelope) error {
			if env.Metadata == nil {
				env.Metadata = make(map[string]any, 1)
			}
			if _, exists := env.Metadata[key]; !exists {
				env.Metadata[key] = value
			}
			return next(ctx, env)
		}
	}
}

// Dispatcher is the facade in front of the buses: it owns the middleware
// pipeline, fans subscriptions out to both the synchronous and the
// asynchronous bus, and routes each publish to one of them.
type Dispatcher struct {
	syncBus    *SyncBus
	asyncBus   *AsyncBus
	dlq        *DLQ
	middleware []Middleware
	logger     *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	asyncCfg   AsyncBusConfig
	dlqCfg     DLQConfig
	dlq        *DLQ
	middleware []Middleware
	logger     *slog.Logger
}

// WithAsyncConfig sets the asynchronous bus configuration.
func WithAsyncConfig(cfg AsyncBusConfig) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.asyncCfg = cfg
	}
}

// WithDLQConfig sets the configuration for the Dispatcher-owned DLQ.
func WithDLQConfig(cfg DLQConfig) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.dlqCfg = cfg
	}
}

// WithDLQ supplies an externally owned DLQ instead of the Dispatcher
// creating one.
func WithDLQ(dlq *DLQ) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.dlq = dlq
	}
}

// WithMiddleware appends middlewares to the publish pipeline, outermost
// first.
func WithMiddleware(mw ...Middleware) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.middleware = append(o.middleware, mw...)
	}
}

// WithLogger sets the logger used by the Dispatcher and its buses.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.logger = logger
	}
}

// NewDispatcher creates a Dispatcher with a synchronous and an asynchronous
// bus sharing one subscription surface and one failure sink. Call Close to
// drain the asynchronous bus.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	o := &dispatcherOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	dlq := o.dlq
	if dlq == nil {
		o.dlqCfg.Logger = o.logger
		dlq = NewDLQ(o.dlqCfg)
	}

	return &Dispatcher{
		syncBus:    NewSyncBus(WithSyncFailureSink(dlq), WithSyncLogger(o.logger)),
		asyncBus:   NewAsyncBus(o.asyncCfg, WithAsyncFailureSink(dlq), WithAsyncLogger(o.logger)),
		dlq:        dlq,
		middleware: o.middleware,
		logger:     o.logger,
	}
}

// Subscribe registers a handler for an event type on both buses, so the
// handler receives the event regardless of which publish path is used.
// Idempotent per handler and type.
func (d *Dispatcher) Subscribe(eventType string, handler EventHandler) {
	d.syncBus.Subscribe(eventType, handler)
	d.asyncBus.Subscribe(eventType, handler)
}

// SubscribeGroup registers a typed handler group for every event type it
// handles.
func (d *Dispatcher) SubscribeGroup(group *EventGroupProcessor) {
	for _, eventType := range group.StreamFilter() {
		d.Subscribe(eventType, group)
	}
}

// Unsubscribe removes a handler from both buses. Unknown handlers are
// ignored.
func (d *Dispatcher) Unsubscribe(eventType string, handler EventHandler) {
	d.syncBus.Unsubscribe(eventType, handler)
	d.asyncBus.Unsubscribe(eventType, handler)
}

// Publish wraps each event in an envelope and delivers it synchronously,
// on the calling goroutine, after running the middleware pipeline. Handler
// failures are captured by the DLQ, never returned.
func (d *Dispatcher) Publish(ctx context.Context, events ...Event) error {
	return d.publishAll(ctx, d.syncBus, events)
}

// PublishAsync wraps each event in an envelope and delivers it through the
// asynchronous bus. The call returns once all handlers have settled.
func (d *Dispatcher) PublishAsync(ctx context.Context, events ...Event) error {
	return d.publishAll(ctx, d.asyncBus, events)
}

// PublishBatch delivers a batch through the asynchronous bus in a single
// enqueue pass. Events sharing an aggregate ID keep their relative order;
// unrelated aggregates run concurrently across lanes. The middleware
// pipeline still runs once per envelope and may veto individual events.
func (d *Dispatcher) PublishBatch(ctx context.Context, events []Event) error {
	batch := make([]*Envelope, 0, len(events))
	collect := chain(func(ctx context.Context, env *Envelope) error {
		batch = append(batch, env)
		return nil
	}, d.middleware)

	parent, derived := EnvelopeFromContext(ctx)
	for _, ev := range events {
		if ev == nil {
			continue
		}
		env := NewEnvelope(ev)
		if derived {
			env = Derived(parent, ev)
		}
		if err := collect(ctx, env); err != nil {
			return err
		}
	}
	if len(batch) == 0 {
		return nil
	}
	return d.asyncBus.Publish(ctx, batch...)
}

// PublishEnvelope delivers a pre-built envelope, preserving its identity,
// version, and metadata. Used by the store-feed plumbing and the DLQ
// processor where the envelope already exists.
func (d *Dispatcher) PublishEnvelope(ctx context.Context, env *Envelope, async bool) error {
	bus := EventBus(d.syncBus)
	if async {
		bus = d.asyncBus
	}
	publish := chain(func(ctx context.Context, env *Envelope) error {
		return bus.Publish(ctx, env)
	}, d.middleware)
	return publish(ctx, env)
}

// DLQ exposes the failure sink shared by both buses, for wiring a retry
// processor or operational queries.
func (d *Dispatcher) DLQ() *DLQ {
	return d.dlq
}

// ResolveHandler finds the subscribed handler with the given identity for
// an event type. Used by the DLQ processor to redeliver to the exact
// handler that failed.
func (d *Dispatcher) ResolveHandler(eventType, handlerID string) (EventHandler, bool) {
	for _, h := range d.syncBus.registry.HandlersFor(eventType) {
		if HandlerID(h) == handlerID {
			return h, true
		}
	}
	return nil, false
}

// Close drains the asynchronous bus and waits for in-flight handlers.
func (d *Dispatcher) Close() error {
	if err := d.syncBus.Close(); err != nil {
		return err
	}
	return d.asyncBus.Close()
}

func (d *Dispatcher) publishAll(ctx context.Context, bus EventBus, events []Event) error {
	publish := chain(func(ctx context.Context, env *Envelope) error {
		return bus.Publish(ctx, env)
	}, d.middleware)

	for _, ev := range events {
		if ev == nil {
			continue
		}
		env := NewEnvelope(ev)
		if parent, ok := EnvelopeFromContext(ctx); ok {
			env = Derived(parent, ev)
		}
		if err := publish(ctx, env); err != nil {
			return err
		}
	}
	return nil
}
