package campaign

import (
	"time"

	"github.com/google/uuid"
)

// Campaign is catalog data: what a coupon costs and how many may be bought.
// RequiresConfirmation makes buys two-phase; the spend stays locked until
// the reward is delivered.
type Campaign struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name                 string     `gorm:"size:128" json:"name"`
	Active               bool       `gorm:"index" json:"active"`
	CostInPoints         int64      `json:"cost_in_points"`
	TotalLimit           int        `json:"total_limit"`
	LimitPerCustomer     int        `json:"limit_per_customer"`
	RequiresConfirmation bool       `json:"requires_confirmation"`
	StartAt              *time.Time `json:"start_at,omitempty"`
	EndAt                *time.Time `json:"end_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// InWindow reports whether the campaign can be bought at the given instant.
func (c *Campaign) InWindow(now time.Time) bool {
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return false
	}
	if c.EndAt != nil && now.After(*c.EndAt) {
		return false
	}
	return true
}

// CampaignBought is the purchase read row; buy limits are enforced by
// counting non-released rows.
type CampaignBought struct {
	PurchaseID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"purchase_id"`
	CampaignID   uuid.UUID `gorm:"type:uuid;index" json:"campaign_id"`
	CustomerID   uuid.UUID `gorm:"type:uuid;index" json:"customer_id"`
	CouponCode   string    `gorm:"size:32;index" json:"coupon_code"`
	CostInPoints int64     `json:"cost_in_points"`
	Status       string    `gorm:"size:16;index" json:"status"`
	Used         bool      `json:"used"`
	PurchasedAt  time.Time `json:"purchased_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (CampaignBought) TableName() string {
	return "campaign_bought"
}
