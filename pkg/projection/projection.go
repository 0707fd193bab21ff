package projection

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"loyalty-engine/pkg/eventstore"
)

var Module = fx.Module("projection",
	fx.Provide(NewManager),
)

// Projector maintains one denormalized read model from the event stream.
// Handle must be an idempotent upsert: replaying an already-applied event
// leaves the model unchanged. Reset drops the model for a rebuild.
type Projector interface {
	Name() string
	Reset(ctx context.Context) error
	Handle(ctx context.Context, se eventstore.StoredEvent) error
}

// Manager wires projectors to the live event stream and drives full rebuilds.
// Incremental application and a rebuild from the complete history produce the
// same record set; that property is what makes Reset safe to expose as an
// administrative operation.
type Manager struct {
	store      eventstore.Store
	logger     *zap.Logger
	projectors []Projector
}

type Params struct {
	fx.In
	Store  eventstore.Store
	Logger *zap.Logger
}

func NewManager(p Params) *Manager {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: p.Store, logger: logger}
}

// Register subscribes the projector to the live stream. Projection errors are
// logged, never propagated to the writer: read models are eventually
// consistent and recoverable by rebuild.
func (m *Manager) Register(p Projector) {
	m.projectors = append(m.projectors, p)
	m.store.Subscribe(func(se eventstore.StoredEvent) {
		if err := p.Handle(context.Background(), se); err != nil {
			m.logger.Error("projection failed",
				zap.String("projector", p.Name()),
				zap.String("event_type", se.Event.EventType()),
				zap.String("aggregate_id", se.AggregateID.String()),
				zap.Error(err),
			)
		}
	})
}

// RebuildAll resets every registered projector and replays the full event
// history into them, in log order.
func (m *Manager) RebuildAll(ctx context.Context) error {
	for _, p := range m.projectors {
		if err := p.Reset(ctx); err != nil {
			return err
		}
	}

	return m.store.LoadAll(ctx, func(se eventstore.StoredEvent) error {
		for _, p := range m.projectors {
			if err := p.Handle(ctx, se); err != nil {
				m.logger.Error("rebuild projection failed",
					zap.String("projector", p.Name()),
					zap.String("event_type", se.Event.EventType()),
					zap.Error(err),
				)
				return err
			}
		}
		return nil
	})
}
