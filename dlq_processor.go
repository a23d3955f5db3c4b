package eventflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HandlerResolver finds the currently subscribed handler with a given
// identity for an event type. The Dispatcher implements it.
type HandlerResolver interface {
	ResolveHandler(eventType, handlerID string) (EventHandler, bool)
}

// DLQProcessorConfig configures the retry processor.
type DLQProcessorConfig struct {
	// PollInterval is how often due entries are checked. Default: 10s.
	PollInterval time.Duration

	// BatchSize bounds the number of entries redelivered per poll.
	// Default: 10.
	BatchSize int

	// Logger receives redelivery logs. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultDLQProcessorConfig provides the defaults applied to zero fields.
var DefaultDLQProcessorConfig = DLQProcessorConfig{
	PollInterval: 10 * time.Second,
	BatchSize:    10,
}

// DLQProcessor periodically redelivers due DLQ entries to the single
// handler that failed, resolving it through a HandlerResolver so that
// sibling handlers never see the event again. It also purges parked
// entries past their retention window.
type DLQProcessor struct {
	dlq      *DLQ
	resolver HandlerResolver
	cfg      DLQProcessorConfig
	logger   *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewDLQProcessor creates a retry processor over the given queue.
func NewDLQProcessor(dlq *DLQ, resolver HandlerResolver, cfg DLQProcessorConfig) *DLQProcessor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultDLQProcessorConfig.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultDLQProcessorConfig.BatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	_ = Init()

	return &DLQProcessor{
		dlq:      dlq,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start begins the poll loop. Starting a running processor is a no-op.
func (p *DLQProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.run(ctx, p.stopCh, p.doneCh)
}

// Stop halts the poll loop and waits for an in-flight batch to finish.
// Stopping a stopped processor is a no-op.
func (p *DLQProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (p *DLQProcessor) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
			p.dlq.Purge(time.Now())
		}
	}
}

// ProcessBatch redelivers up to BatchSize due entries once. Exposed so
// callers can drive retries manually instead of running the poll loop.
func (p *DLQProcessor) ProcessBatch(ctx context.Context) {
	due := p.dlq.ReadyForRetry(time.Now())
	if len(due) > p.cfg.BatchSize {
		due = due[:p.cfg.BatchSize]
	}

	for _, entry := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.redeliver(ctx, entry)
	}
}

func (p *DLQProcessor) redeliver(ctx context.Context, entry *FailedEvent) {
	env := entry.Envelope

	handler, ok := p.resolver.ResolveHandler(env.EventType(), entry.HandlerID)
	if !ok {
		// The handler was unsubscribed; the entry can never succeed.
		p.logger.WarnContext(ctx, "dropping failed event, handler no longer subscribed",
			"event-id", env.EventID,
			"event-type", env.EventType(),
			"handler", entry.HandlerID,
		)
		p.dlq.Resolve(ctx, env, entry.HandlerID)
		return
	}

	DLQRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", env.EventType()),
		attribute.String("handler", entry.HandlerID),
	))

	hctx := WithEnvelope(ctx, env)
	if err := execute(hctx, handler, env, "dlq"); err != nil {
		p.logger.DebugContext(ctx, "redelivery failed",
			"event-id", env.EventID,
			"event-type", env.EventType(),
			"handler", entry.HandlerID,
			"failures", entry.FailureCount,
			"error", err,
		)
		p.dlq.RecordFailure(ctx, env, entry.HandlerID, err)
		return
	}

	p.logger.InfoContext(ctx, "redelivery succeeded",
		"event-id", env.EventID,
		"event-type", env.EventType(),
		"handler", entry.HandlerID,
		"failures", entry.FailureCount,
	)
	p.dlq.Resolve(ctx, env, entry.HandlerID)
}
