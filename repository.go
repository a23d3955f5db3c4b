package eventflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Repository loads aggregates by replaying their event streams and saves
// their uncommitted events with an optimistic concurrency check.
//
// T is the concrete aggregate type; the factory creates an empty instance
// for a given ID before replay.
type Repository[T Aggregate] struct {
	store   EventStore
	factory func(id string) T
	retry   func() backoff.BackOff
	logger  *slog.Logger
}

// RepositoryOption configures a Repository.
type RepositoryOption[T Aggregate] func(*Repository[T])

// WithConflictRetry makes Save retry on a concurrency conflict with the
// given backoff strategy, reloading the aggregate's persisted version
// between attempts. By default conflicts are returned to the caller.
//
// The factory is called once per Save so that retry state is not shared
// across calls.
func WithConflictRetry[T Aggregate](strategy func() backoff.BackOff) RepositoryOption[T] {
	return func(r *Repository[T]) {
		r.retry = strategy
	}
}

// WithRepositoryLogger sets the repository logger.
func WithRepositoryLogger[T Aggregate](logger *slog.Logger) RepositoryOption[T] {
	return func(r *Repository[T]) {
		r.logger = logger
	}
}

// NewRepository creates a repository over the given store. The factory
// returns an empty aggregate for an ID, ready for replay.
func NewRepository[T Aggregate](store EventStore, factory func(id string) T, opts ...RepositoryOption[T]) *Repository[T] {
	_ = Init()

	r := &Repository[T]{
		store:   store,
		factory: factory,
		retry:   func() backoff.BackOff { return &backoff.StopBackOff{} },
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load rebuilds an aggregate by folding its stream in version order
// through ApplyEvent. A missing stream returns ErrStreamNotFound. After a
// successful load the aggregate's version equals the version of the last
// applied event.
func (r *Repository[T]) Load(ctx context.Context, id string) (T, error) {
	var zero T

	agg := r.factory(id)
	iter, err := r.store.LoadStream(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("load aggregate %q: %w", id, err)
	}

	var version uint64
	var applied int
	for iter.Next(ctx) {
		env := iter.Value()
		agg.ApplyEvent(ctx, env)
		version = env.Version
		applied++
	}
	if err := iter.Err(); err != nil {
		return zero, fmt.Errorf("load aggregate %q: replay failed: %w", id, err)
	}
	if applied == 0 {
		return zero, fmt.Errorf("load aggregate %q: %w", id, ErrStreamNotFound)
	}

	agg.SetAggregateVersion(version)
	return agg, nil
}

// LoadOrNew is Load, except a missing stream yields a fresh aggregate at
// version zero instead of an error.
func (r *Repository[T]) LoadOrNew(ctx context.Context, id string) (T, error) {
	agg, err := r.Load(ctx, id)
	if errors.Is(err, ErrStreamNotFound) {
		return r.factory(id), nil
	}
	return agg, err
}

// Save appends the aggregate's uncommitted events, expecting the persisted
// stream to still be at the version the aggregate was loaded at. On
// success the aggregate's version advances past the saved events and the
// uncommitted list is cleared. A concurrent writer causes a
// StreamRevisionConflictError so the caller can reload and retry, unless
// WithConflictRetry is configured.
func (r *Repository[T]) Save(ctx context.Context, agg Aggregate) (AppendResult, error) {
	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return AppendResult{Successful: true, NextExpectedVersion: agg.AggregateVersion()}, nil
	}

	expected := agg.AggregateVersion()
	stream := agg.EntityID()

	result, err := backoff.RetryWithData(func() (AppendResult, error) {
		var revision StreamState = Revision(expected)
		if expected == 0 {
			revision = NoStream{}
		}

		result, err := r.store.AppendToStream(ctx, stream, events, revision)
		if err == nil {
			return result, nil
		}

		var conflict *StreamRevisionConflictError
		if !errors.As(err, &conflict) {
			return result, backoff.Permanent(fmt.Errorf("save aggregate %q: %w", stream, err))
		}

		ConcurrencyConflicts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stream.id", stream),
		))
		r.logger.DebugContext(ctx, "concurrency conflict on save",
			"stream", stream,
			"expected-version", conflict.ExpectedRevision,
			"actual-version", conflict.ActualRevision,
		)

		// Rebase the pending events on the current stream head before
		// the next attempt.
		expected = uint64(conflict.ActualRevision)
		for i := range events {
			events[i].Version = expected + uint64(i) + 1
		}
		return result, conflict
	}, r.retry())
	if err != nil {
		return result, err
	}

	agg.SetAggregateVersion(expected + uint64(len(events)))
	agg.ClearUncommittedEvents()
	return result, nil
}
