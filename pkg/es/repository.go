package es

import (
	"context"

	"github.com/google/uuid"

	"loyalty-engine/pkg/eventstore"
)

// Repository loads and saves one aggregate type against the event store.
// Load reconstructs state by folding the stream; Save appends everything
// recorded since load and clears the buffer. Sequential consistency per
// aggregate comes from the store's expected-sequence check.
type Repository[T Aggregate] struct {
	store   eventstore.Store
	factory func(id uuid.UUID) T
}

func NewRepository[T Aggregate](store eventstore.Store, factory func(id uuid.UUID) T) *Repository[T] {
	return &Repository[T]{store: store, factory: factory}
}

// Load builds a fresh aggregate and folds its stream through Apply. A missing
// stream yields an empty aggregate at playhead 0; callers that require an
// existing aggregate check Playhead.
func (r *Repository[T]) Load(ctx context.Context, id uuid.UUID) (T, error) {
	agg := r.factory(id)

	stream, err := r.store.LoadStream(ctx, id)
	if err != nil {
		return agg, err
	}

	events := make([]eventstore.Event, 0, len(stream))
	for _, se := range stream {
		events = append(events, se.Event)
	}

	agg.Replay(events)
	return agg, nil
}

// Save appends the pending events at the sequence the aggregate was loaded
// from. On a concurrency conflict nothing is cleared, so the caller may
// reload and retry.
func (r *Repository[T]) Save(ctx context.Context, agg T) error {
	pending := agg.Pending()
	if len(pending) == 0 {
		return nil
	}

	expected := agg.Playhead() - int64(len(pending))
	if err := r.store.Append(ctx, agg.AggregateID(), agg.AggregateType(), expected, pending); err != nil {
		return err
	}

	agg.ClearPending()
	return nil
}
