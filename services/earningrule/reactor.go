package earningrule

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/eventstore"
	"loyalty-engine/pkg/logger"
	"loyalty-engine/services/account"
	"loyalty-engine/services/customer"
	"loyalty-engine/services/level"
	"loyalty-engine/services/transaction"
)

// Reactor is the award path: it listens for system events, runs the engine,
// and credits the customer's account. Evaluation failures are logged and
// dropped; the triggering operation has already committed.
type Reactor struct {
	engine       *Engine
	bus          *commandbus.Bus
	db           *gorm.DB
	transactions *es.Repository[*transaction.Transaction]
	logger       *zap.Logger
}

type ReactorParams struct {
	fx.In

	Engine *Engine
	Bus    *commandbus.Bus
	DB     *gorm.DB
	Store  eventstore.Store
	Logger *zap.Logger
}

func NewReactor(p ReactorParams) *Reactor {
	return &Reactor{
		engine:       p.Engine,
		bus:          p.Bus,
		db:           p.DB,
		transactions: es.NewRepository(p.Store, transaction.New),
		logger:       p.Logger,
	}
}

func (r *Reactor) Subscribe(events *eventbus.Bus) {
	events.Subscribe(transaction.SystemTransactionRegistered, r.onTransactionRegistered)
	events.Subscribe(customer.SystemCustomerRegistered, r.onCustomerEvent(customer.SystemCustomerRegistered))
	events.Subscribe(customer.SystemCustomerLoggedIn, r.onCustomerEvent(customer.SystemCustomerLoggedIn))
	events.Subscribe(customer.SystemCustomerReferred, r.onCustomerEvent(customer.SystemCustomerReferred))
	events.Subscribe(TriggerGeoEvent, r.onGeoEvent)
	events.Subscribe(TriggerQRCodeEvent, r.onQRCodeEvent)
}

func (r *Reactor) onTransactionRegistered(ctx context.Context, ev eventbus.SystemEvent) {
	transactionID, err := uuid.Parse(asString(ev.Payload["transactionId"]))
	if err != nil {
		r.logger.Warn("transaction event without id", zap.Error(err))
		return
	}

	tx, err := r.transactions.Load(ctx, transactionID)
	if err != nil {
		r.logger.Error("transaction load failed",
			zap.String("transaction_id", transactionID.String()),
			zap.Error(err),
		)
		return
	}

	results, err := r.engine.EvaluateTransaction(ctx, tx)
	if err != nil {
		r.logger.Error("transaction rule evaluation failed",
			zap.String("transaction_id", transactionID.String()),
			zap.Error(err),
		)
		return
	}
	r.award(ctx, tx.CustomerID, results, &transactionID)
}

func (r *Reactor) onCustomerEvent(eventName string) eventbus.Listener {
	return func(ctx context.Context, ev eventbus.SystemEvent) {
		customerID, err := uuid.Parse(asString(ev.Payload["customerId"]))
		if err != nil {
			r.logger.Warn("customer event without id",
				zap.String("event", eventName),
				zap.Error(err),
			)
			return
		}

		results, err := r.engine.EvaluateEventWithContext(ctx, eventName, customerID, ev.Payload)
		if err != nil {
			r.logger.Error("event rule evaluation failed",
				zap.String("event", eventName),
				zap.String("customer_id", customerID.String()),
				zap.Error(err),
			)
			return
		}
		r.award(ctx, customerID, results, nil)
	}
}

func (r *Reactor) onGeoEvent(ctx context.Context, ev eventbus.SystemEvent) {
	customerID, err := uuid.Parse(asString(ev.Payload["customerId"]))
	if err != nil {
		r.logger.Warn("geo event without customer id", zap.Error(err))
		return
	}
	lat, okLat := asFloat64(ev.Payload["latitude"])
	lng, okLng := asFloat64(ev.Payload["longitude"])
	if !okLat || !okLng {
		r.logger.Warn("geo event without coordinates",
			zap.String("customer_id", customerID.String()),
		)
		return
	}

	results, err := r.engine.EvaluateGeoEvent(ctx, customerID, lat, lng)
	if err != nil {
		r.logger.Error("geo rule evaluation failed",
			zap.String("customer_id", customerID.String()),
			zap.Error(err),
		)
		return
	}
	r.award(ctx, customerID, results, nil)
}

func (r *Reactor) onQRCodeEvent(ctx context.Context, ev eventbus.SystemEvent) {
	customerID, err := uuid.Parse(asString(ev.Payload["customerId"]))
	if err != nil {
		r.logger.Warn("qrcode event without customer id", zap.Error(err))
		return
	}
	code := asString(ev.Payload["code"])
	var ruleID *uuid.UUID
	if id, err := uuid.Parse(asString(ev.Payload["earningRuleId"])); err == nil {
		ruleID = &id
	}

	results, err := r.engine.EvaluateQRCodeEvent(ctx, customerID, code, ruleID)
	if err != nil {
		r.logger.Error("qrcode rule evaluation failed",
			zap.String("customer_id", customerID.String()),
			zap.Error(err),
		)
		return
	}
	r.award(ctx, customerID, results, nil)
}

func (r *Reactor) award(ctx context.Context, customerID uuid.UUID, results []Result, transactionID *uuid.UUID) {
	if len(results) == 0 {
		return
	}

	var row account.AccountDetails
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&row).Error
	if err != nil {
		r.logger.Warn("award skipped, customer has no account",
			zap.String("customer_id", customerID.String()),
			zap.Error(err),
		)
		return
	}

	multiplier := r.levelMultiplier(ctx, customerID)

	for _, result := range results {
		points := result.Points
		if multiplier != 1 {
			points = roundHalfUp(float64(points) * multiplier)
		}
		err := r.bus.Dispatch(ctx, account.AddPoints{
			AccountID:     row.AccountID,
			TransferID:    uuid.New(),
			Value:         points,
			Issuer:        "earning_rule",
			Comment:       result.RuleName,
			TransactionID: transactionID,
		})
		if err != nil {
			r.logger.Error("points award failed",
				zap.String("customer_id", customerID.String()),
				zap.String("rule_id", result.RuleID.String()),
				zap.Error(err),
			)
			continue
		}
		logger.WithTrace(ctx, r.logger).Info("points awarded",
			zap.String("customer_id", customerID.String()),
			zap.String("rule", result.RuleName),
			zap.Int64("points", points),
		)
	}
}

// levelMultiplier is the reward multiplier of the customer's current level.
// Customers without a level, and levels without a positive multiplier, earn
// at the base rate.
func (r *Reactor) levelMultiplier(ctx context.Context, customerID uuid.UUID) float64 {
	var cust customer.CustomerDetails
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&cust).Error
	if err != nil || cust.LevelID == nil {
		return 1
	}

	var lvl level.Level
	err = r.db.WithContext(ctx).
		Where("id = ?", *cust.LevelID).
		First(&lvl).Error
	if err != nil {
		r.logger.Warn("level lookup failed",
			zap.String("customer_id", customerID.String()),
			zap.String("level_id", cust.LevelID.String()),
			zap.Error(err),
		)
		return 1
	}
	if lvl.RewardMultiplier <= 0 {
		return 1
	}
	return lvl.RewardMultiplier
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
