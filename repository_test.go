package eventflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/terraskye/eventflow"
	"github.com/terraskye/eventflow/fixtures"
)

type cartCreated struct {
	ID string
}

func (e cartCreated) AggregateID() string { return e.ID }
func (e cartCreated) EventType() string   { return "CartCreated" }

type itemAdded struct {
	ID  string
	SKU string
}

func (e itemAdded) AggregateID() string { return e.ID }
func (e itemAdded) EventType() string   { return "ItemAdded" }

type cart struct {
	*eventflow.AggregateBase
	apply func(context.Context, eventflow.Event)

	Created bool
	Items   []string
}

func newCart(id string) *cart {
	c := &cart{AggregateBase: eventflow.NewAggregateBase(id)}
	c.apply = eventflow.Hydrate(
		eventflow.NewHydrateHandler(c.onCartCreated),
		eventflow.NewHydrateHandler(c.onItemAdded),
	)
	return c
}

func (c *cart) onCartCreated(ctx context.Context, ev cartCreated) {
	c.Created = true
}

func (c *cart) onItemAdded(ctx context.Context, ev itemAdded) {
	c.Items = append(c.Items, ev.SKU)
}

func (c *cart) ApplyEvent(ctx context.Context, env *eventflow.Envelope) {
	c.apply(ctx, env.Event)
}

func (c *cart) Create() {
	c.AppendEvent(cartCreated{ID: c.EntityID()})
}

func (c *cart) AddItem(sku string) {
	c.AppendEvent(itemAdded{ID: c.EntityID(), SKU: sku})
}

func cartHistory(id string, skus ...string) []*eventflow.Envelope {
	events := []eventflow.Event{cartCreated{ID: id}}
	for _, sku := range skus {
		events = append(events, itemAdded{ID: id, SKU: sku})
	}
	return fixtures.EnvelopesFromEvents(events...)
}

func TestRepositoryLoadReplaysStream(t *testing.T) {
	store := fixtures.NewStoreSpy().WithEvents("cart-1", cartHistory("cart-1", "sku-a", "sku-b")...)
	repo := eventflow.NewRepository(store, newCart)

	agg, err := repo.Load(t.Context(), "cart-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !agg.Created {
		t.Error("expected Created after replay")
	}
	if len(agg.Items) != 2 || agg.Items[0] != "sku-a" || agg.Items[1] != "sku-b" {
		t.Errorf("Items = %v, want [sku-a sku-b]", agg.Items)
	}
	if agg.AggregateVersion() != 3 {
		t.Errorf("AggregateVersion() = %d, want 3", agg.AggregateVersion())
	}
	if len(agg.UncommittedEvents()) != 0 {
		t.Error("replay must not record uncommitted events")
	}
}

func TestRepositoryLoadMissingStream(t *testing.T) {
	repo := eventflow.NewRepository(fixtures.EmptyStore(), newCart)

	_, err := repo.Load(t.Context(), "nope")
	if !errors.Is(err, eventflow.ErrStreamNotFound) {
		t.Errorf("error = %v, want %v", err, eventflow.ErrStreamNotFound)
	}
}

func TestRepositoryLoadOrNew(t *testing.T) {
	repo := eventflow.NewRepository(fixtures.EmptyStore(), newCart)

	agg, err := repo.LoadOrNew(t.Context(), "fresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.AggregateVersion() != 0 {
		t.Errorf("AggregateVersion() = %d, want 0", agg.AggregateVersion())
	}
	if agg.EntityID() != "fresh" {
		t.Errorf("EntityID() = %q, want fresh", agg.EntityID())
	}
}

func TestRepositorySaveNewAggregate(t *testing.T) {
	store := fixtures.NewStoreSpy()
	repo := eventflow.NewRepository(store, newCart)

	agg := newCart("cart-1")
	agg.Create()
	agg.AddItem("sku-a")

	result, err := repo.Save(t.Context(), agg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Successful {
		t.Error("expected successful append")
	}

	if store.AppendToStreamCalls != 1 {
		t.Fatalf("AppendToStreamCalls = %d, want 1", store.AppendToStreamCalls)
	}
	if _, ok := store.LastAppendRevision.(eventflow.NoStream); !ok {
		t.Errorf("revision = %T, want NoStream for a fresh aggregate", store.LastAppendRevision)
	}
	if len(store.LastAppendEvents) != 2 {
		t.Fatalf("appended %d events, want 2", len(store.LastAppendEvents))
	}
	if store.LastAppendEvents[0].Version != 1 || store.LastAppendEvents[1].Version != 2 {
		t.Errorf("event versions = %d, %d, want 1, 2",
			store.LastAppendEvents[0].Version, store.LastAppendEvents[1].Version)
	}

	if agg.AggregateVersion() != 2 {
		t.Errorf("AggregateVersion() = %d, want 2 after save", agg.AggregateVersion())
	}
	if len(agg.UncommittedEvents()) != 0 {
		t.Error("uncommitted events not cleared after save")
	}
}

func TestRepositorySaveExistingAggregateUsesRevision(t *testing.T) {
	store := fixtures.NewStoreSpy().WithEvents("cart-1", cartHistory("cart-1")...)
	repo := eventflow.NewRepository(store, newCart)

	agg, err := repo.Load(t.Context(), "cart-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	agg.AddItem("sku-a")

	if _, err := repo.Save(t.Context(), agg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rev, ok := store.LastAppendRevision.(eventflow.Revision)
	if !ok || uint64(rev) != 1 {
		t.Errorf("revision = %v, want Revision(1)", store.LastAppendRevision)
	}
	if store.LastAppendEvents[0].Version != 2 {
		t.Errorf("event version = %d, want 2", store.LastAppendEvents[0].Version)
	}
}

func TestRepositorySaveNothingPending(t *testing.T) {
	store := fixtures.NewStoreSpy()
	repo := eventflow.NewRepository(store, newCart)

	result, err := repo.Save(t.Context(), newCart("cart-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Successful {
		t.Error("expected trivial success")
	}
	if store.AppendToStreamCalls != 0 {
		t.Errorf("AppendToStreamCalls = %d, want 0", store.AppendToStreamCalls)
	}
}

func TestRepositorySaveConflictReturnedByDefault(t *testing.T) {
	store := fixtures.ConcurrencyConflictStore("cart-1", eventflow.Revision(0), eventflow.Revision(4))
	repo := eventflow.NewRepository(store, newCart)

	agg := newCart("cart-1")
	agg.Create()

	_, err := repo.Save(t.Context(), agg)

	var conflict *eventflow.StreamRevisionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want a revision conflict", err)
	}
	if len(agg.UncommittedEvents()) != 1 {
		t.Error("uncommitted events must survive a failed save")
	}
}

func TestRepositorySaveConflictRetriesWhenConfigured(t *testing.T) {
	store := fixtures.NewStoreSpy()
	attempts := 0
	store.AppendToStreamFn = func(ctx context.Context, id string, events []eventflow.Envelope, revision eventflow.StreamState) (eventflow.AppendResult, error) {
		attempts++
		if attempts == 1 {
			return eventflow.AppendResult{}, &eventflow.StreamRevisionConflictError{
				Stream:           id,
				ExpectedRevision: eventflow.Revision(0),
				ActualRevision:   eventflow.Revision(5),
			}
		}
		return eventflow.AppendResult{
			Successful:          true,
			NextExpectedVersion: 5 + uint64(len(events)),
		}, nil
	}

	repo := eventflow.NewRepository(store, newCart,
		eventflow.WithConflictRetry[*cart](func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)

	agg := newCart("cart-1")
	agg.Create()
	agg.AddItem("sku-a")

	if _, err := repo.Save(t.Context(), agg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	// Pending events are rebased onto the observed head before the retry.
	if store.LastAppendEvents[0].Version != 6 || store.LastAppendEvents[1].Version != 7 {
		t.Errorf("rebased versions = %d, %d, want 6, 7",
			store.LastAppendEvents[0].Version, store.LastAppendEvents[1].Version)
	}
	if agg.AggregateVersion() != 7 {
		t.Errorf("AggregateVersion() = %d, want 7", agg.AggregateVersion())
	}
}

func TestRepositorySaveStoreErrorPropagates(t *testing.T) {
	boom := errors.New("disk full")
	repo := eventflow.NewRepository(fixtures.NewStoreSpy().FailOnAppend(boom), newCart)

	agg := newCart("cart-1")
	agg.Create()

	_, err := repo.Save(t.Context(), agg)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}
