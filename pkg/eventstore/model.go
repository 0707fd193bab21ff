package eventstore

import (
	"time"

	"gorm.io/datatypes"
)

// EventRow is the persisted form of a StoredEvent. The unique index on
// (aggregate_id, sequence) is the backstop for optimistic concurrency: two
// writers racing past the expected-sequence check cannot both commit.
type EventRow struct {
	ID            string         `gorm:"column:id;primaryKey"`
	AggregateID   string         `gorm:"column:aggregate_id;index;uniqueIndex:idx_aggregate_sequence"`
	AggregateType string         `gorm:"column:aggregate_type"`
	Sequence      int64          `gorm:"column:sequence;uniqueIndex:idx_aggregate_sequence"`
	EventType     string         `gorm:"column:event_type"`
	Payload       datatypes.JSON `gorm:"column:payload"`
	RecordedAt    time.Time      `gorm:"column:recorded_at;index"`
}

func (EventRow) TableName() string {
	return "events"
}
