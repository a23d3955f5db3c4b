package logging

import (
	"context"
	"log/slog"

	"github.com/terraskye/eventflow"
)

// WithLoggingMiddleware wraps an EventHandler so every delivery is logged
// with the envelope context the buses put on ctx.
func WithLoggingMiddleware(logger *slog.Logger, next eventflow.EventHandler) eventflow.EventHandler {
	return eventflow.NewEventHandlerFunc(func(ctx context.Context, event eventflow.Event) error {
		l := logger.With(
			"stream-id", eventflow.StreamIDFromContext(ctx),
			"event-id", eventflow.EventIDFromContext(ctx),
			"event-type", event.EventType(),
			"causation", eventflow.CausationFromContext(ctx),
			"correlation", eventflow.CorrelationFromContext(ctx),
			"version", eventflow.VersionFromContext(ctx),
			"global-version", eventflow.GlobalVersionFromContext(ctx),
		)

		l.DebugContext(ctx, "event processing started")

		err := next.Handle(ctx, event)

		if err != nil {
			l.ErrorContext(ctx, "error processing event", "error", err)
		} else {
			l.DebugContext(ctx, "event processed successfully")
		}

		return err
	})
}
