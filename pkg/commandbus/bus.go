package commandbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"loyalty-engine/pkg/errutil"
)

var Module = fx.Module("commandbus",
	fx.Provide(New),
)

// Command is an intent against one aggregate. Validate runs before the
// handler; a command that fails validation never mutates state.
type Command interface {
	AggregateID() uuid.UUID
	CommandType() string
	Validate() error
}

type HandlerFunc func(ctx context.Context, cmd Command) error

// Bus routes each command type to exactly one handler, synchronously. Domain
// errors surface to the caller; the bus never retries.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *zap.Logger
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
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Register panics on a duplicate command type: double registration is a
// wiring bug, not a runtime condition.
func (b *Bus) Register(commandType string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[commandType]; ok {
		panic(fmt.Sprintf("commandbus: handler for %q registered twice", commandType))
	}
	b.handlers[commandType] = handler
}

func (b *Bus) Dispatch(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return errutil.ValidationFailed("command must not be nil")
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	b.mu.RLock()
	handler, ok := b.handlers[cmd.CommandType()]
	b.mu.RUnlock()
	if !ok {
		return errutil.ValidationFailed(fmt.Sprintf("no handler registered for %s", cmd.CommandType()))
	}

	if err := handler(ctx, cmd); err != nil {
		b.logger.Debug("command failed",
			zap.String("command_type", cmd.CommandType()),
			zap.String("aggregate_id", cmd.AggregateID().String()),
			zap.Error(err),
		)
		return err
	}

	return nil
}
