package earningrule

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Rule types.
const (
	TypeTransaction    = "points_per_transaction"
	TypeCustomEvent    = "custom_event"
	TypeReferral       = "referral"
	TypeGeo            = "earning_geo"
	TypeQRCode         = "earning_qrcode"
	TypeMultiplyPoints = "multiply_points"
)

// Usage limit periods, rolling from the evaluation instant.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// Rule is one configured earning rule. Payload holds the type-specific
// parameters; Expression is an optional CEL filter evaluated against the
// trigger context.
type Rule struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string         `gorm:"size:128" json:"name"`
	Active      bool           `gorm:"index" json:"active"`
	EventName   string         `gorm:"size:64;index" json:"event_name"`
	Type        string         `gorm:"size:32;index" json:"type"`
	StartAt     *time.Time     `json:"start_at,omitempty"`
	EndAt       *time.Time     `json:"end_at,omitempty"`
	UsageLimit  int            `json:"usage_limit"`
	UsagePeriod string         `gorm:"size:8" json:"usage_period,omitempty"`
	Expression  string         `gorm:"size:1024" json:"expression,omitempty"`
	Payload     datatypes.JSON `json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Rule) TableName() string {
	return "earning_rules"
}

// InWindow reports whether the rule is applicable at the given instant. A
// nil bound is open-ended.
func (r *Rule) InWindow(now time.Time) bool {
	if r.StartAt != nil && now.Before(*r.StartAt) {
		return false
	}
	if r.EndAt != nil && now.After(*r.EndAt) {
		return false
	}
	return true
}

func (r *Rule) DecodePayload(out any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(r.Payload, out)
}

// TransactionPayload parameterizes points_per_transaction rules. PointsRate
// is points per currency unit of the eligible gross value. MaxPoints, when
// positive, caps the total a customer can earn from the rule inside the
// rolling UsagePeriod window; an oversized purchase earns the remaining
// headroom.
type TransactionPayload struct {
	PointsRate         float64  `json:"pointsRate"`
	MinOrderValue      float64  `json:"minOrderValue,omitempty"`
	MaxPoints          int64    `json:"maxPoints,omitempty"`
	ExcludedSKUs       []string `json:"excludedSkus,omitempty"`
	ExcludedCategories []string `json:"excludedCategories,omitempty"`
}

// EventPayload parameterizes custom_event and referral rules.
type EventPayload struct {
	Points int64 `json:"points"`
}

// GeoPayload awards Points when the reported position falls inside the
// circle.
type GeoPayload struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radiusMeters"`
	Points       int64   `json:"points"`
}

// QRCodePayload awards Points when the scanned code matches.
type QRCodePayload struct {
	Code   string `json:"code"`
	Points int64  `json:"points"`
}

// MultiplyPayload scales the points of matching transaction rules.
type MultiplyPayload struct {
	Multiplier float64 `json:"multiplier"`
}

// RuleUsage records one award per row. Rolling usage limits count rows
// inside the period window; points caps sum the Points column over the same
// window.
type RuleUsage struct {
	ID         string    `gorm:"primarykey" json:"id"`
	RuleID     uuid.UUID `gorm:"type:uuid;index:idx_rule_customer" json:"rule_id"`
	CustomerID uuid.UUID `gorm:"type:uuid;index:idx_rule_customer" json:"customer_id"`
	Points     int64     `json:"points"`
	UsedAt     time.Time `gorm:"index" json:"used_at"`
}

func (RuleUsage) TableName() string {
	return "earning_rule_usages"
}
