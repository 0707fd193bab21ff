package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/config"
	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/eventstore"
)

// System event names other services react to.
const (
	SystemAccountCreated         = "account.created"
	SystemAvailablePointsChanged = "account.available_points_amount_changed"
)

// Handler executes account commands: load the aggregate, run the behavior,
// persist the new events, then broadcast system events for reactors.
type Handler struct {
	repo    *es.Repository[*Account]
	events  *eventbus.Bus
	loyalty config.Loyalty
	logger  *zap.Logger
	now     func() time.Time
}

type HandlerParams struct {
	fx.In

	Store  eventstore.Store
	Events *eventbus.Bus
	Config *config.Config
	Logger *zap.Logger
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		repo:    es.NewRepository(p.Store, New),
		events:  p.Events,
		loyalty: p.Config.Loyalty,
		logger:  p.Logger,
		now:     time.Now,
	}
}

// Register wires every account command onto the bus.
func (h *Handler) Register(bus *commandbus.Bus) {
	bus.Register(CommandCreateAccount, h.createAccount)
	bus.Register(CommandAddPoints, h.addPoints)
	bus.Register(CommandSpendPoints, h.spendPoints)
	bus.Register(CommandCancelPointsTransfer, h.cancelPointsTransfer)
	bus.Register(CommandExpirePointsTransfer, h.expirePointsTransfer)
	bus.Register(CommandLockPointsTransfer, h.lockPointsTransfer)
	bus.Register(CommandUnlockPointsTransfer, h.unlockPointsTransfer)
}

func (h *Handler) createAccount(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(CreateAccount)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}

	acc, err := h.repo.Load(ctx, c.AccountID)
	if err != nil {
		return err
	}
	if err := acc.Create(c.CustomerID, h.now()); err != nil {
		return err
	}
	if err := h.repo.Save(ctx, acc); err != nil {
		return err
	}

	h.events.Publish(ctx, eventbus.SystemEvent{
		Name: SystemAccountCreated,
		Payload: map[string]any{
			"accountId":  acc.AggregateID().String(),
			"customerId": c.CustomerID.String(),
		},
	})
	return nil
}

func (h *Handler) addPoints(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(AddPoints)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}

	acc, err := h.repo.Load(ctx, c.AccountID)
	if err != nil {
		return err
	}

	now := h.now().UTC()
	transfer := Transfer{
		ID:            c.TransferID,
		Value:         c.Value,
		CreatedAt:     now,
		ExpiresAt:     h.expiresAt(now, c.ExpiresAtDays),
		Issuer:        c.Issuer,
		TransactionID: c.TransactionID,
		Comment:       c.Comment,
	}
	if err := acc.AddPoints(transfer); err != nil {
		return err
	}
	if err := h.repo.Save(ctx, acc); err != nil {
		return err
	}

	h.publishBalanceChange(ctx, acc, c.Value)
	return nil
}

func (h *Handler) spendPoints(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(SpendPoints)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}

	acc, err := h.repo.Load(ctx, c.AccountID)
	if err != nil {
		return err
	}

	transfer := Transfer{
		ID:            c.TransferID,
		Value:         c.Value,
		CreatedAt:     h.now().UTC(),
		Issuer:        c.Issuer,
		TransactionID: c.TransactionID,
		Comment:       c.Comment,
	}
	if err := acc.SpendPoints(transfer, c.Locked); err != nil {
		return err
	}
	if err := h.repo.Save(ctx, acc); err != nil {
		return err
	}

	h.publishBalanceChange(ctx, acc, -c.Value)
	return nil
}

func (h *Handler) cancelPointsTransfer(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(CancelPointsTransfer)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}
	return h.mutateBalance(ctx, c.AccountID, func(acc *Account) error {
		return acc.CancelTransfer(c.TransferID, h.now())
	})
}

func (h *Handler) expirePointsTransfer(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(ExpirePointsTransfer)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}
	return h.mutateBalance(ctx, c.AccountID, func(acc *Account) error {
		return acc.ExpireTransfer(c.TransferID, h.now())
	})
}

func (h *Handler) lockPointsTransfer(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(LockPointsTransfer)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}
	return h.mutateBalance(ctx, c.AccountID, func(acc *Account) error {
		return acc.LockTransfer(c.TransferID)
	})
}

func (h *Handler) unlockPointsTransfer(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(UnlockPointsTransfer)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}
	return h.mutateBalance(ctx, c.AccountID, func(acc *Account) error {
		return acc.UnlockTransfer(c.TransferID)
	})
}

// mutateBalance runs a behavior that may shift the available balance and, if
// it recorded anything, saves and broadcasts the delta. Idempotent no-ops
// (re-expiring an expired transfer) save and publish nothing.
func (h *Handler) mutateBalance(ctx context.Context, accountID uuid.UUID, fn func(*Account) error) error {
	acc, err := h.repo.Load(ctx, accountID)
	if err != nil {
		return err
	}

	before := acc.AvailableAmount()
	if err := fn(acc); err != nil {
		return err
	}
	if len(acc.Pending()) == 0 {
		return nil
	}
	if err := h.repo.Save(ctx, acc); err != nil {
		return err
	}

	h.publishBalanceChange(ctx, acc, acc.AvailableAmount()-before)
	return nil
}

func (h *Handler) publishBalanceChange(ctx context.Context, acc *Account, delta int64) {
	h.logger.Debug("available points changed",
		zap.String("account_id", acc.AggregateID().String()),
		zap.Int64("amount_change", delta),
		zap.Int64("current_amount", acc.AvailableAmount()),
	)
	h.events.Publish(ctx, eventbus.SystemEvent{
		Name: SystemAvailablePointsChanged,
		Payload: map[string]any{
			"accountId":     acc.AggregateID().String(),
			"customerId":    acc.CustomerID.String(),
			"amountChange":  delta,
			"currentAmount": acc.AvailableAmount(),
			"earnedAmount":  acc.EarnedAmount(),
		},
	})
}

// expiresAt derives the transfer deadline from the program settings. Points
// never expire when the program runs in all-time-active mode.
func (h *Handler) expiresAt(now time.Time, overrideDays int) *time.Time {
	if h.loyalty.AllTimeActive {
		return nil
	}
	days := overrideDays
	if days <= 0 {
		days = h.loyalty.PointsDaysActive
	}
	if days <= 0 {
		return nil
	}
	at := now.Add(time.Duration(days) * 24 * time.Hour)
	return &at
}
