package eventstore

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable domain fact. Concrete events are plain structs with
// JSON-serializable fields, registered with the package codec by type name.
type Event interface {
	EventType() string
}

// StoredEvent is an event as it sits in the log: scoped to one aggregate,
// totally ordered within that aggregate by Sequence. Sequences are contiguous
// starting at 0; no gaps, no duplicates.
type StoredEvent struct {
	AggregateID   uuid.UUID
	AggregateType string
	Sequence      int64
	Event         Event
	RecordedAt    time.Time
}

var (
	codecMu   sync.RWMutex
	factories = map[string]func() Event{}
)

// Register binds an event type name to a factory producing an empty instance
// for deserialization. Registering the same name twice panics at wiring time.
func Register(factory func() Event) {
	ev := factory()
	name := ev.EventType()

	codecMu.Lock()
	defer codecMu.Unlock()
	if _, ok := factories[name]; ok {
		panic(fmt.Sprintf("eventstore: event type %q registered twice", name))
	}
	factories[name] = factory
}

func marshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// unmarshalEvent decodes a stored payload. An unregistered type during replay
// means the log and the code disagree, which is an error, not a skip.
func unmarshalEvent(eventType string, payload []byte) (Event, error) {
	codecMu.RLock()
	factory, ok := factories[eventType]
	codecMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("eventstore: unknown event type %q", eventType)
	}

	ev := factory()
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, fmt.Errorf("eventstore: decode %s: %w", eventType, err)
	}
	return ev, nil
}
