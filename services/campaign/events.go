package campaign

import (
	"time"

	"github.com/google/uuid"

	"loyalty-engine/pkg/eventstore"
)

const (
	EventCampaignWasBought         = "campaign.bought"
	EventCampaignPurchaseConfirmed = "campaign.purchase_confirmed"
	EventCampaignPurchaseReleased  = "campaign.purchase_released"
	EventCampaignUsageChanged      = "campaign.usage_changed"
)

func init() {
	eventstore.Register(func() eventstore.Event { return &CampaignWasBought{} })
	eventstore.Register(func() eventstore.Event { return &CampaignPurchaseConfirmed{} })
	eventstore.Register(func() eventstore.Event { return &CampaignPurchaseReleased{} })
	eventstore.Register(func() eventstore.Event { return &CampaignUsageChanged{} })
}

// CampaignWasBought opens a purchase. TransferID references the points
// spend; when Pending the spend is locked awaiting confirmation.
type CampaignWasBought struct {
	PurchaseID   uuid.UUID `json:"purchaseId"`
	CampaignID   uuid.UUID `json:"campaignId"`
	CustomerID   uuid.UUID `json:"customerId"`
	AccountID    uuid.UUID `json:"accountId"`
	TransferID   uuid.UUID `json:"transferId"`
	CouponCode   string    `json:"couponCode"`
	CostInPoints int64     `json:"costInPoints"`
	Pending      bool      `json:"pending"`
	PurchasedAt  time.Time `json:"purchasedAt"`
}

func (CampaignWasBought) EventType() string { return EventCampaignWasBought }

type CampaignPurchaseConfirmed struct {
	PurchaseID  uuid.UUID `json:"purchaseId"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

func (CampaignPurchaseConfirmed) EventType() string { return EventCampaignPurchaseConfirmed }

type CampaignPurchaseReleased struct {
	PurchaseID uuid.UUID `json:"purchaseId"`
	ReleasedAt time.Time `json:"releasedAt"`
}

func (CampaignPurchaseReleased) EventType() string { return EventCampaignPurchaseReleased }

type CampaignUsageChanged struct {
	PurchaseID uuid.UUID `json:"purchaseId"`
	Used       bool      `json:"used"`
	ChangedAt  time.Time `json:"changedAt"`
}

func (CampaignUsageChanged) EventType() string { return EventCampaignUsageChanged }
