package eventflow

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FailureSink receives handler failures from the buses. Capture must not
// block dispatch and must not fail: a failure to record a failure is logged,
// never propagated.
type FailureSink interface {
	Capture(ctx context.Context, env *Envelope, handlerID string, cause error)
}

// FailedEvent wraps an envelope whose delivery to one handler failed,
// together with the retry bookkeeping the DLQ maintains. Entries are keyed
// by (event ID, handler ID) so that redelivery targets only the handler
// that failed.
type FailedEvent struct {
	Envelope       *Envelope
	HandlerID      string
	LastError      string
	Classification Classification
	FailureCount   int
	FirstFailedAt  time.Time
	LastFailedAt   time.Time
	NextRetryAt    time.Time
	Parked         bool
	ParkedAt       time.Time
}

// DLQConfig configures the dead letter queue.
type DLQConfig struct {
	// BaseDelay is the backoff before the first retry. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff curve. Default: 5m.
	MaxDelay time.Duration

	// MaxRetries is the failure count at which an entry is parked
	// permanently. Default: 5.
	MaxRetries int

	// Jitter is the random spread applied to each delay as a fraction of
	// the delay (0.0 to 1.0). Zero disables jitter. Default: 0.1.
	Jitter float64

	// MaxSize bounds the number of live (non-parked) entries. Captures
	// beyond the bound are dropped and logged. Default: 10000.
	MaxSize int

	// Retention is how long parked entries are kept before Purge removes
	// them. Default: 24h.
	Retention time.Duration

	// OnPark is called when an entry transitions to parked.
	OnPark func(*FailedEvent)

	// Logger receives capture and park logs. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultDLQConfig provides the defaults applied to zero fields.
var DefaultDLQConfig = DLQConfig{
	BaseDelay:  time.Second,
	MaxDelay:   5 * time.Minute,
	MaxRetries: 5,
	Jitter:     0.1,
	MaxSize:    10000,
	Retention:  24 * time.Hour,
}

type dlqKey struct {
	eventID   string
	handlerID string
}

// DLQ is an in-memory dead letter queue. Entries are created on first
// failure, updated monotonically on each retry, removed on successful
// redelivery, and parked permanently once FailureCount reaches MaxRetries.
// Safe for concurrent use.
type DLQ struct {
	cfg    DLQConfig
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.RWMutex
	entries map[dlqKey]*FailedEvent
	parked  map[dlqKey]*FailedEvent
}

// NewDLQ creates a dead letter queue with the given configuration.
func NewDLQ(cfg DLQConfig) *DLQ {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultDLQConfig.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultDLQConfig.MaxDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultDLQConfig.MaxRetries
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultDLQConfig.MaxSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultDLQConfig.Retention
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	_ = Init()

	return &DLQ{
		cfg:     cfg,
		logger:  logger,
		clock:   time.Now,
		entries: make(map[dlqKey]*FailedEvent),
		parked:  make(map[dlqKey]*FailedEvent),
	}
}

// RetryDelay returns the backoff before retry number attempt (zero-based):
//
//	delay(n) = BaseDelay * 2^n, clamped to MaxDelay,
//
// then spread by +/- Jitter fraction to avoid retry storms. With Jitter=0
// the curve is deterministic and non-decreasing.
func (d *DLQ) RetryDelay(attempt int) time.Duration {
	delay := d.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= d.cfg.MaxDelay {
			delay = d.cfg.MaxDelay
			break
		}
	}
	if delay > d.cfg.MaxDelay {
		delay = d.cfg.MaxDelay
	}
	if d.cfg.Jitter > 0 {
		spread := float64(delay) * d.cfg.Jitter * (rand.Float64()*2 - 1)
		delay = time.Duration(float64(delay) + spread)
	}
	return delay
}

// Capture records a handler failure. A new entry starts with FailureCount 1
// and a first retry after BaseDelay; an existing entry is updated like a
// failed retry. Permanent failures are parked immediately since redelivery
// cannot help them.
func (d *DLQ) Capture(ctx context.Context, env *Envelope, handlerID string, cause error) {
	if env == nil || cause == nil {
		return
	}

	now := d.clock()
	key := dlqKey{eventID: env.EventID.String(), handlerID: handlerID}
	classification := Classify(cause)

	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.entries[key]
	if !exists {
		if len(d.entries) >= d.cfg.MaxSize {
			d.logger.WarnContext(ctx, "dead letter queue full, dropping failure",
				"event-id", env.EventID, "handler", handlerID, "error", cause)
			return
		}
		entry = &FailedEvent{
			Envelope:      env,
			HandlerID:     handlerID,
			FirstFailedAt: now,
		}
		d.entries[key] = entry
		DLQDepth.Add(ctx, 1)
	}

	entry.FailureCount++
	entry.LastError = cause.Error()
	entry.LastFailedAt = now
	entry.Classification = classification
	entry.NextRetryAt = now.Add(d.RetryDelay(entry.FailureCount - 1))

	DLQCaptured.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", env.EventType()),
		attribute.String("classification", classification.String()),
	))

	d.logger.DebugContext(ctx, "captured handler failure",
		"event-id", env.EventID,
		"event-type", env.EventType(),
		"handler", handlerID,
		"failures", entry.FailureCount,
		"classification", classification.String(),
		"error", cause,
	)

	if classification == Permanent || entry.FailureCount >= d.cfg.MaxRetries {
		d.parkLocked(ctx, key, entry)
	}
}

// RecordFailure updates an entry after a failed redelivery attempt,
// rescheduling it on the backoff curve or parking it once retries are
// exhausted.
func (d *DLQ) RecordFailure(ctx context.Context, env *Envelope, handlerID string, cause error) {
	d.Capture(ctx, env, handlerID, cause)
}

// Resolve removes an entry after a successful redelivery.
func (d *DLQ) Resolve(ctx context.Context, env *Envelope, handlerID string) {
	key := dlqKey{eventID: env.EventID.String(), handlerID: handlerID}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.entries[key]; !exists {
		return
	}
	delete(d.entries, key)
	DLQDepth.Add(ctx, -1)

	d.logger.DebugContext(ctx, "resolved failed event",
		"event-id", env.EventID, "handler", handlerID)
}

// ReadyForRetry returns entries due for redelivery at the given time,
// ordered by NextRetryAt. Parked entries are never returned.
func (d *DLQ) ReadyForRetry(now time.Time) []*FailedEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ready []*FailedEvent
	for _, entry := range d.entries {
		if !entry.NextRetryAt.After(now) {
			ready = append(ready, entry)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].NextRetryAt.Equal(ready[j].NextRetryAt) {
			return ready[i].FirstFailedAt.Before(ready[j].FirstFailedAt)
		}
		return ready[i].NextRetryAt.Before(ready[j].NextRetryAt)
	})
	return ready
}

// ListFailed returns all live entries awaiting retry.
func (d *DLQ) ListFailed() []*FailedEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*FailedEvent, 0, len(d.entries))
	for _, entry := range d.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FirstFailedAt.Before(out[j].FirstFailedAt)
	})
	return out
}

// ListParked returns entries parked after exhausting retries or failing
// permanently. Parked entries stay queryable for operational remediation
// until Purge removes them.
func (d *DLQ) ListParked() []*FailedEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*FailedEvent, 0, len(d.parked))
	for _, entry := range d.parked {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ParkedAt.Before(out[j].ParkedAt)
	})
	return out
}

// Recover moves a parked entry back into the retry rotation with a reset
// failure count, for manual remediation.
func (d *DLQ) Recover(ctx context.Context, env *Envelope, handlerID string) bool {
	key := dlqKey{eventID: env.EventID.String(), handlerID: handlerID}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.parked[key]
	if !exists {
		return false
	}
	delete(d.parked, key)

	entry.Parked = false
	entry.ParkedAt = time.Time{}
	entry.FailureCount = 0
	entry.Classification = Retryable
	entry.NextRetryAt = d.clock()
	d.entries[key] = entry
	DLQDepth.Add(ctx, 1)
	return true
}

// Purge removes parked entries older than the retention window and returns
// the number removed.
func (d *DLQ) Purge(now time.Time) int {
	cutoff := now.Add(-d.cfg.Retention)

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for key, entry := range d.parked {
		if entry.ParkedAt.Before(cutoff) {
			delete(d.parked, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries awaiting retry.
func (d *DLQ) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// ParkedLen returns the number of parked entries.
func (d *DLQ) ParkedLen() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.parked)
}

func (d *DLQ) parkLocked(ctx context.Context, key dlqKey, entry *FailedEvent) {
	delete(d.entries, key)
	entry.Parked = true
	entry.ParkedAt = d.clock()
	d.parked[key] = entry

	DLQDepth.Add(ctx, -1)
	DLQParked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", entry.Envelope.EventType()),
		attribute.String("classification", entry.Classification.String()),
	))

	d.logger.WarnContext(ctx, "parked failed event",
		"event-id", entry.Envelope.EventID,
		"event-type", entry.Envelope.EventType(),
		"handler", entry.HandlerID,
		"failures", entry.FailureCount,
		"classification", entry.Classification.String(),
		"error", entry.LastError,
	)

	if d.cfg.OnPark != nil {
		d.cfg.OnPark(entry)
	}
}
