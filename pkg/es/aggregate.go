package es

import (
	"github.com/google/uuid"

	"loyalty-engine/pkg/eventstore"
)

// Aggregate is a consistency boundary whose state is derived purely from its
// own event stream. Two loads of the same aggregate at the same log length
// yield identical state: Apply must be deterministic and side-effect free.
type Aggregate interface {
	AggregateID() uuid.UUID
	AggregateType() string
	// Playhead is the number of events applied so far, replayed or pending.
	Playhead() int64
	Replay(events []eventstore.Event)
	Pending() []eventstore.Event
	ClearPending()
}

// Root is the embeddable base for aggregates: identity, playhead and the
// pending-event buffer. The owning aggregate wires applier to its own event
// switch once, at construction.
type Root struct {
	id       uuid.UUID
	playhead int64
	pending  []eventstore.Event
	applier  func(eventstore.Event)
}

func NewRoot(id uuid.UUID) Root {
	return Root{id: id}
}

func (r *Root) SetApplier(fn func(eventstore.Event)) {
	r.applier = fn
}

func (r *Root) AggregateID() uuid.UUID {
	return r.id
}

func (r *Root) SetAggregateID(id uuid.UUID) {
	r.id = id
}

func (r *Root) Playhead() int64 {
	return r.playhead
}

// Record applies a new event and buffers it for the next save. Exactly one
// Record per successful behavior method; none on failure.
func (r *Root) Record(ev eventstore.Event) {
	r.applier(ev)
	r.playhead++
	r.pending = append(r.pending, ev)
}

// Replay folds history without buffering.
func (r *Root) Replay(events []eventstore.Event) {
	for _, ev := range events {
		r.applier(ev)
		r.playhead++
	}
}

func (r *Root) Pending() []eventstore.Event {
	return r.pending
}

func (r *Root) ClearPending() {
	r.pending = nil
}
