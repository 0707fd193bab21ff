package level

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/services/account"
	"loyalty-engine/services/customer"
)

// Reactor moves customers onto the matching level whenever their earned
// total changes. Failures are logged; level assignment never fails the
// operation that earned the points.
type Reactor struct {
	service *Service
	bus     *commandbus.Bus
	logger  *zap.Logger
}

type ReactorParams struct {
	fx.In

	Service *Service
	Bus     *commandbus.Bus
	Logger  *zap.Logger
}

func NewReactor(p ReactorParams) *Reactor {
	return &Reactor{service: p.Service, bus: p.Bus, logger: p.Logger}
}

func (r *Reactor) Subscribe(events *eventbus.Bus) {
	events.Subscribe(account.SystemAvailablePointsChanged, r.onBalanceChanged)
}

func (r *Reactor) onBalanceChanged(ctx context.Context, ev eventbus.SystemEvent) {
	customerID, err := uuid.Parse(asString(ev.Payload["customerId"]))
	if err != nil {
		r.logger.Warn("balance change without customer id", zap.Error(err))
		return
	}
	earned, ok := asInt64(ev.Payload["earnedAmount"])
	if !ok {
		return
	}

	lvl, err := r.service.PickForPoints(ctx, earned)
	if err != nil {
		r.logger.Error("level lookup failed",
			zap.String("customer_id", customerID.String()),
			zap.Error(err),
		)
		return
	}
	if lvl == nil {
		return
	}

	err = r.bus.Dispatch(ctx, customer.MoveToLevel{CustomerID: customerID, LevelID: lvl.ID})
	if err != nil {
		r.logger.Error("level assignment failed",
			zap.String("customer_id", customerID.String()),
			zap.String("level_id", lvl.ID.String()),
			zap.Error(err),
		)
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
