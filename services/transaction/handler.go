package transaction

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/eventstore"
	"loyalty-engine/pkg/logger"
)

// SystemTransactionRegistered triggers earning-rule evaluation for the
// purchase.
const SystemTransactionRegistered = "transaction.registered"

type Handler struct {
	repo   *es.Repository[*Transaction]
	events *eventbus.Bus
	logger *zap.Logger
	now    func() time.Time
}

type HandlerParams struct {
	fx.In

	Store  eventstore.Store
	Events *eventbus.Bus
	Logger *zap.Logger
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		repo:   es.NewRepository(p.Store, New),
		events: p.Events,
		logger: p.Logger,
		now:    time.Now,
	}
}

func (h *Handler) Register(bus *commandbus.Bus) {
	bus.Register(CommandRegisterTransaction, h.registerTransaction)
	bus.Register(CommandAppendLabels, h.appendLabels)
}

func (h *Handler) registerTransaction(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(RegisterTransaction)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}

	tx, err := h.repo.Load(ctx, c.TransactionID)
	if err != nil {
		return err
	}

	purchasedAt := c.PurchasedAt
	if purchasedAt.IsZero() {
		purchasedAt = h.now().UTC()
	}
	err = tx.RegisterTransaction(TransactionRegistered{
		CustomerID:     c.CustomerID,
		DocumentNumber: c.DocumentNumber,
		DocumentType:   c.DocumentType,
		PurchasedAt:    purchasedAt,
		Items:          c.Items,
		Labels:         c.Labels,
	})
	if err != nil {
		return err
	}
	if err := h.repo.Save(ctx, tx); err != nil {
		return err
	}

	logger.WithTrace(ctx, h.logger).Info("transaction registered",
		zap.String("transaction_id", tx.AggregateID().String()),
		zap.String("document_number", c.DocumentNumber),
		zap.Float64("gross_value", tx.GrossValue()),
	)
	h.events.Publish(ctx, eventbus.SystemEvent{
		Name: SystemTransactionRegistered,
		Payload: map[string]any{
			"transactionId":  tx.AggregateID().String(),
			"customerId":     c.CustomerID.String(),
			"documentNumber": c.DocumentNumber,
			"documentType":   c.DocumentType,
			"grossValue":     tx.GrossValue(),
		},
	})
	return nil
}

func (h *Handler) appendLabels(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(AppendLabels)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}

	tx, err := h.repo.Load(ctx, c.TransactionID)
	if err != nil {
		return err
	}
	if err := tx.AppendLabels(c.Labels); err != nil {
		return err
	}
	return h.repo.Save(ctx, tx)
}
