package eventflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	streamIDKey      ctxKey = "streamID"
	eventIDKey       ctxKey = "eventID"
	versionKey       ctxKey = "version"
	globalVersionKey ctxKey = "global_version"
	occurredAtKey    ctxKey = "occurredAt"
	correlationKey   ctxKey = "correlation"
	causationKey     ctxKey = "causation"
	metadataKey      ctxKey = "metadata"
	envelopeKey      ctxKey = "envelope"
)

// WithEnvelope adds the envelope's delivery context to ctx so that handlers
// and decorators can read it without receiving the envelope itself.
func WithEnvelope(ctx context.Context, env *Envelope) context.Context {
	ctx = context.WithValue(ctx, streamIDKey, env.StreamID)
	ctx = context.WithValue(ctx, eventIDKey, env.EventID)
	ctx = context.WithValue(ctx, versionKey, env.Version)
	ctx = context.WithValue(ctx, globalVersionKey, env.GlobalVersion)
	ctx = context.WithValue(ctx, occurredAtKey, env.OccurredAt)
	ctx = context.WithValue(ctx, correlationKey, env.CorrelationID)
	ctx = context.WithValue(ctx, causationKey, env.CausationID)
	ctx = context.WithValue(ctx, metadataKey, env.Metadata)
	ctx = context.WithValue(ctx, envelopeKey, env)
	return ctx
}

// EnvelopeFromContext returns the envelope currently being delivered, if
// any. Handlers publishing follow-up events use it to inherit correlation.
func EnvelopeFromContext(ctx context.Context) (*Envelope, bool) {
	env, ok := ctx.Value(envelopeKey).(*Envelope)
	return env, ok
}

// StreamIDFromContext returns the stream ID or "" if not present.
func StreamIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(streamIDKey).(string); ok {
		return s
	}
	return ""
}

// AggregateIDFromContext returns the aggregate ID or "" if not present.
// Streams are keyed by aggregate ID, so this is an alias of StreamIDFromContext.
func AggregateIDFromContext(ctx context.Context) string {
	return StreamIDFromContext(ctx)
}

// EventIDFromContext returns the event ID or uuid.Nil if not present.
func EventIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(eventIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// VersionFromContext returns the stream version or 0 if not present.
func VersionFromContext(ctx context.Context) uint64 {
	if v, ok := ctx.Value(versionKey).(uint64); ok {
		return v
	}
	return 0
}

// GlobalVersionFromContext returns the store sequence or 0 if not present.
func GlobalVersionFromContext(ctx context.Context) uint64 {
	if v, ok := ctx.Value(globalVersionKey).(uint64); ok {
		return v
	}
	return 0
}

// OccurredAtFromContext returns OccurredAt or the zero time if not present.
func OccurredAtFromContext(ctx context.Context) time.Time {
	if t, ok := ctx.Value(occurredAtKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}

// CorrelationFromContext returns the correlation ID or "" if not present.
func CorrelationFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(correlationKey).(string); ok {
		return s
	}
	return ""
}

// CausationFromContext returns the causation ID or "" if not present.
func CausationFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(causationKey).(string); ok {
		return s
	}
	return ""
}

// MetadataFromContext returns the envelope metadata or nil if not present.
func MetadataFromContext(ctx context.Context) map[string]any {
	if md, ok := ctx.Value(metadataKey).(map[string]any); ok {
		return md
	}
	return nil
}
