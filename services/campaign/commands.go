package campaign

import (
	"github.com/google/uuid"

	"loyalty-engine/pkg/errutil"
)

const (
	CommandBuyCampaign             = "campaign.buy"
	CommandConfirmCampaignPurchase = "campaign.confirm_purchase"
	CommandReleaseCampaignPurchase = "campaign.release_purchase"
	CommandChangeCouponUsage       = "campaign.change_coupon_usage"
)

type BuyCampaign struct {
	PurchaseID uuid.UUID
	CampaignID uuid.UUID
	CustomerID uuid.UUID
}

func (c BuyCampaign) AggregateID() uuid.UUID { return c.PurchaseID }
func (c BuyCampaign) CommandType() string    { return CommandBuyCampaign }

func (c BuyCampaign) Validate() error {
	if c.PurchaseID == uuid.Nil {
		return errutil.ValidationFailed("purchase id is required")
	}
	if c.CampaignID == uuid.Nil {
		return errutil.ValidationFailed("campaign id is required")
	}
	if c.CustomerID == uuid.Nil {
		return errutil.ValidationFailed("customer id is required")
	}
	return nil
}

type ConfirmCampaignPurchase struct {
	PurchaseID uuid.UUID
}

func (c ConfirmCampaignPurchase) AggregateID() uuid.UUID { return c.PurchaseID }
func (c ConfirmCampaignPurchase) CommandType() string    { return CommandConfirmCampaignPurchase }

func (c ConfirmCampaignPurchase) Validate() error {
	return requirePurchaseID(c.PurchaseID)
}

type ReleaseCampaignPurchase struct {
	PurchaseID uuid.UUID
}

func (c ReleaseCampaignPurchase) AggregateID() uuid.UUID { return c.PurchaseID }
func (c ReleaseCampaignPurchase) CommandType() string    { return CommandReleaseCampaignPurchase }

func (c ReleaseCampaignPurchase) Validate() error {
	return requirePurchaseID(c.PurchaseID)
}

type ChangeCouponUsage struct {
	PurchaseID uuid.UUID
	Used       bool
}

func (c ChangeCouponUsage) AggregateID() uuid.UUID { return c.PurchaseID }
func (c ChangeCouponUsage) CommandType() string    { return CommandChangeCouponUsage }

func (c ChangeCouponUsage) Validate() error {
	return requirePurchaseID(c.PurchaseID)
}

func requirePurchaseID(id uuid.UUID) error {
	if id == uuid.Nil {
		return errutil.ValidationFailed("purchase id is required")
	}
	return nil
}
