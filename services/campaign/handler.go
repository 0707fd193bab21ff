package campaign

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/eventstore"
	"loyalty-engine/pkg/repository"
	"loyalty-engine/services/account"
)

const (
	SystemCampaignBought       = "campaign.bought"
	SystemCouponUsageChanged   = "campaign.coupon_usage_changed"
	SystemCampaignPurchaseDone = "campaign.purchase_settled"
)

type Handler struct {
	repo      *es.Repository[*Purchase]
	campaigns repository.Repository[Campaign]
	bought    repository.Repository[CampaignBought]
	accounts  repository.Repository[account.AccountDetails]
	bus       *commandbus.Bus
	events    *eventbus.Bus
	logger    *zap.Logger
	now       func() time.Time
}

type HandlerParams struct {
	fx.In

	Store     eventstore.Store
	Campaigns repository.Repository[Campaign]
	Bought    repository.Repository[CampaignBought]
	Accounts  repository.Repository[account.AccountDetails]
	Events    *eventbus.Bus
	Logger    *zap.Logger
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		repo:      es.NewRepository(p.Store, New),
		campaigns: p.Campaigns,
		bought:    p.Bought,
		accounts:  p.Accounts,
		events:    p.Events,
		logger:    p.Logger,
		now:       time.Now,
	}
}

func (h *Handler) Register(bus *commandbus.Bus) {
	h.bus = bus
	bus.Register(CommandBuyCampaign, h.buyCampaign)
	bus.Register(CommandConfirmCampaignPurchase, h.confirmPurchase)
	bus.Register(CommandReleaseCampaignPurchase, h.releasePurchase)
	bus.Register(CommandChangeCouponUsage, h.changeCouponUsage)
}

func (h *Handler) buyCampaign(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(BuyCampaign)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}

	camp, err := h.campaigns.FindOne(ctx, &Campaign{ID: c.CampaignID})
	if err != nil {
		return err
	}
	if camp == nil {
		return errutil.NotFound(fmt.Sprintf("campaign %s not found", c.CampaignID))
	}
	now := h.now().UTC()
	if !camp.Active || !camp.InWindow(now) {
		return errutil.UnprocessableEntity(fmt.Sprintf("campaign %s is not available", c.CampaignID))
	}
	if err := h.checkLimits(ctx, camp, c.CustomerID); err != nil {
		return err
	}

	accountRow, err := h.accounts.FindOne(ctx, &account.AccountDetails{CustomerID: c.CustomerID})
	if err != nil {
		return err
	}
	if accountRow == nil {
		return errutil.NotFound(fmt.Sprintf("customer %s has no account", c.CustomerID))
	}

	transferID := uuid.New()
	if camp.CostInPoints > 0 {
		err = h.bus.Dispatch(ctx, account.SpendPoints{
			AccountID:  accountRow.AccountID,
			TransferID: transferID,
			Value:      camp.CostInPoints,
			Issuer:     "campaign",
			Comment:    camp.Name,
			Locked:     camp.RequiresConfirmation,
		})
		if err != nil {
			return err
		}
	}

	purchase, err := h.repo.Load(ctx, c.PurchaseID)
	if err != nil {
		return err
	}
	err = purchase.Buy(CampaignWasBought{
		CampaignID:   camp.ID,
		CustomerID:   c.CustomerID,
		AccountID:    accountRow.AccountID,
		TransferID:   transferID,
		CouponCode:   couponCode(),
		CostInPoints: camp.CostInPoints,
		Pending:      camp.RequiresConfirmation && camp.CostInPoints > 0,
		PurchasedAt:  now,
	})
	if err == nil {
		err = h.repo.Save(ctx, purchase)
	}
	if err != nil {
		// Undo the spend rather than strand the customer's points.
		if camp.CostInPoints > 0 {
			if cancelErr := h.bus.Dispatch(ctx, account.CancelPointsTransfer{
				AccountID:  accountRow.AccountID,
				TransferID: transferID,
			}); cancelErr != nil {
				h.logger.Error("spend rollback failed",
					zap.String("purchase_id", c.PurchaseID.String()),
					zap.Error(cancelErr),
				)
			}
		}
		return err
	}

	h.events.Publish(ctx, eventbus.SystemEvent{
		Name: SystemCampaignBought,
		Payload: map[string]any{
			"purchaseId": purchase.AggregateID().String(),
			"campaignId": camp.ID.String(),
			"customerId": c.CustomerID.String(),
			"couponCode": purchase.CouponCode,
			"status":     purchase.Status,
		},
	})
	return nil
}

func (h *Handler) checkLimits(ctx context.Context, camp *Campaign, customerID uuid.UUID) error {
	if camp.TotalLimit > 0 {
		total, err := h.countActive(ctx, &CampaignBought{CampaignID: camp.ID})
		if err != nil {
			return err
		}
		if total >= int64(camp.TotalLimit) {
			return errutil.UnprocessableEntity(fmt.Sprintf("campaign %s is sold out", camp.ID))
		}
	}
	if camp.LimitPerCustomer > 0 {
		mine, err := h.countActive(ctx, &CampaignBought{CampaignID: camp.ID, CustomerID: customerID})
		if err != nil {
			return err
		}
		if mine >= int64(camp.LimitPerCustomer) {
			return errutil.UnprocessableEntity(
				fmt.Sprintf("customer %s reached the buy limit for campaign %s", customerID, camp.ID),
			)
		}
	}
	return nil
}

func (h *Handler) countActive(ctx context.Context, query *CampaignBought) (int64, error) {
	var count int64
	rows, err := h.bought.Find(ctx, query)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if row.Status != PurchaseStatusReleased {
			count++
		}
	}
	return count, nil
}

func (h *Handler) confirmPurchase(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(ConfirmCampaignPurchase)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}

	purchase, err := h.repo.Load(ctx, c.PurchaseID)
	if err != nil {
		return err
	}
	if err := purchase.Confirm(h.now()); err != nil {
		return err
	}

	if err := h.bus.Dispatch(ctx, account.UnlockPointsTransfer{
		AccountID:  purchase.AccountID,
		TransferID: purchase.TransferID,
	}); err != nil {
		return err
	}
	if err := h.repo.Save(ctx, purchase); err != nil {
		return err
	}

	h.publishSettled(ctx, purchase, "confirmed")
	return nil
}

func (h *Handler) releasePurchase(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(ReleaseCampaignPurchase)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}

	purchase, err := h.repo.Load(ctx, c.PurchaseID)
	if err != nil {
		return err
	}
	if err := purchase.Release(h.now()); err != nil {
		return err
	}

	if err := h.bus.Dispatch(ctx, account.CancelPointsTransfer{
		AccountID:  purchase.AccountID,
		TransferID: purchase.TransferID,
	}); err != nil {
		return err
	}
	if err := h.repo.Save(ctx, purchase); err != nil {
		return err
	}

	h.publishSettled(ctx, purchase, "released")
	return nil
}

func (h *Handler) changeCouponUsage(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(ChangeCouponUsage)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}

	purchase, err := h.repo.Load(ctx, c.PurchaseID)
	if err != nil {
		return err
	}
	changed, err := purchase.SetCouponUsed(c.Used, h.now())
	if err != nil {
		return err
	}
	if changed {
		if err := h.repo.Save(ctx, purchase); err != nil {
			return err
		}
	}

	h.events.Publish(ctx, eventbus.SystemEvent{
		Name: SystemCouponUsageChanged,
		Payload: map[string]any{
			"purchaseId": purchase.AggregateID().String(),
			"customerId": purchase.CustomerID.String(),
			"couponCode": purchase.CouponCode,
			"used":       c.Used,
			"changed":    changed,
		},
	})
	return nil
}

func (h *Handler) publishSettled(ctx context.Context, purchase *Purchase, outcome string) {
	h.events.Publish(ctx, eventbus.SystemEvent{
		Name: SystemCampaignPurchaseDone,
		Payload: map[string]any{
			"purchaseId": purchase.AggregateID().String(),
			"campaignId": purchase.CampaignID.String(),
			"customerId": purchase.CustomerID.String(),
			"outcome":    outcome,
		},
	})
}

func couponCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
