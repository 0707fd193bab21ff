package eventbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("eventbus",
	fx.Provide(New),
)

// SystemEvent is an integration fact broadcast after a command succeeded.
// Consumers (earning rules, webhooks, level assignment) are unrelated to the
// command path and must never fail it.
type SystemEvent struct {
	Name       string         `json:"type"`
	Payload    map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Listener func(ctx context.Context, ev SystemEvent)

// Bus fans system events out to zero or more listeners. Fire-and-forget:
// listener panics are recovered and logged, the publisher never blocks on a
// listener outcome.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	all       []Listener
	logger    *zap.Logger
}

type Params struct {
	fx.In
	Logger *zap.Logger
}

func New(p Params) *Bus {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		listeners: make(map[string][]Listener),
		logger:    logger,
	}
}

// Subscribe registers a listener for one event name.
func (b *Bus) Subscribe(name string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], l)
}

// SubscribeAll registers a listener for every event name.
func (b *Bus) SubscribeAll(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, l)
}

func (b *Bus) Publish(ctx context.Context, ev SystemEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	targets := append([]Listener(nil), b.listeners[ev.Name]...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	for _, l := range targets {
		b.deliver(ctx, l, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, l Listener, ev SystemEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("system event listener panicked",
				zap.String("event", ev.Name),
				zap.Any("panic", r),
			)
		}
	}()
	l(ctx, ev)
}
