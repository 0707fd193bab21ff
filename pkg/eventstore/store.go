package eventstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loyalty-engine/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var Module = fx.Module("eventstore",
	fx.Provide(NewStore),
)

// Subscriber receives every stored event after its append transaction has
// committed. Errors and panics are logged, never propagated to the writer.
type Subscriber func(StoredEvent)

// Store is the append-only event log, the single source of truth. Append is
// guarded by optimistic concurrency on the expected sequence.
type Store interface {
	Append(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedSequence int64, events []Event) error
	LoadStream(ctx context.Context, aggregateID uuid.UUID) ([]StoredEvent, error)
	LoadAll(ctx context.Context, fn func(StoredEvent) error) error
	Subscribe(sub Subscriber)
}

type GormStore struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time

	mu          sync.RWMutex
	subscribers []Subscriber
}

type StoreParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewStore(p StoreParams) Store {
	return &GormStore{
		db:   p.DB,
		node: p.Node,
		now:  time.Now,
	}
}

// NewGormStore builds a store directly, with an injectable clock. Used by
// tests that simulate time.
func NewGormStore(db *gorm.DB, node *snowflake.Node, now func() time.Time) *GormStore {
	if now == nil {
		now = time.Now
	}
	return &GormStore{db: db, node: node, now: now}
}

// Append persists events at contiguous sequences starting from
// expectedSequence. expectedSequence is the number of events already stored
// for the aggregate; a mismatch means another writer got there first and the
// append fails without retrying.
func (s *GormStore) Append(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedSequence int64, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	recordedAt := s.now().UTC()
	stored := make([]StoredEvent, 0, len(events))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current int64
		if err := tx.Model(&EventRow{}).
			Where("aggregate_id = ?", aggregateID.String()).
			Count(&current).Error; err != nil {
			return err
		}

		if current != expectedSequence {
			return errutil.Concurrency(
				fmt.Sprintf("aggregate %s is at sequence %d, expected %d", aggregateID, current, expectedSequence),
			)
		}

		rows := make([]EventRow, 0, len(events))
		for i, ev := range events {
			payload, err := marshalEvent(ev)
			if err != nil {
				return fmt.Errorf("encode %s: %w", ev.EventType(), err)
			}

			seq := expectedSequence + int64(i)
			rows = append(rows, EventRow{
				ID:            s.node.Generate().String(),
				AggregateID:   aggregateID.String(),
				AggregateType: aggregateType,
				Sequence:      seq,
				EventType:     ev.EventType(),
				Payload:       datatypes.JSON(payload),
				RecordedAt:    recordedAt,
			})
			stored = append(stored, StoredEvent{
				AggregateID:   aggregateID,
				AggregateType: aggregateType,
				Sequence:      seq,
				Event:         ev,
				RecordedAt:    recordedAt,
			})
		}

		return tx.Create(&rows).Error
	})
	if err != nil {
		return err
	}

	s.publish(stored)
	return nil
}

func (s *GormStore) LoadStream(ctx context.Context, aggregateID uuid.UUID) ([]StoredEvent, error) {
	var rows []EventRow
	if err := s.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID.String()).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	return decodeRows(rows)
}

// LoadAll replays the full history in global order, batched. Snowflake row
// IDs are time-ordered, so primary-key batching yields append order. Used by
// the read-model rebuild.
func (s *GormStore) LoadAll(ctx context.Context, fn func(StoredEvent) error) error {
	const batchSize = 500

	var rows []EventRow
	result := s.db.WithContext(ctx).
		FindInBatches(&rows, batchSize, func(tx *gorm.DB, batch int) error {
			events, err := decodeRows(rows)
			if err != nil {
				return err
			}
			for _, se := range events {
				if err := fn(se); err != nil {
					return err
				}
			}
			return nil
		})

	return result.Error
}

func (s *GormStore) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// publish runs after commit, outside any transaction. A failing subscriber
// never fails the append.
func (s *GormStore) publish(events []StoredEvent) {
	s.mu.RLock()
	subs := append([]Subscriber(nil), s.subscribers...)
	s.mu.RUnlock()

	for _, se := range events {
		for _, sub := range subs {
			safeNotify(sub, se)
		}
	}
}

func safeNotify(sub Subscriber, se StoredEvent) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("event subscriber panicked",
				zap.String("event_type", se.Event.EventType()),
				zap.String("aggregate_id", se.AggregateID.String()),
				zap.Any("panic", r),
			)
		}
	}()
	sub(se)
}

func decodeRows(rows []EventRow) ([]StoredEvent, error) {
	out := make([]StoredEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := unmarshalEvent(row.EventType, row.Payload)
		if err != nil {
			return nil, err
		}

		id, err := uuid.Parse(row.AggregateID)
		if err != nil {
			return nil, fmt.Errorf("eventstore: bad aggregate id %q: %w", row.AggregateID, err)
		}

		out = append(out, StoredEvent{
			AggregateID:   id,
			AggregateType: row.AggregateType,
			Sequence:      row.Sequence,
			Event:         ev,
			RecordedAt:    row.RecordedAt,
		})
	}
	return out, nil
}
