package account

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransferTypeAdding   = "adding"
	TransferTypeSpending = "spending"
)

// Transfer lifecycle states as shown to API consumers.
const (
	TransferStateActive   = "active"
	TransferStatePending  = "pending"
	TransferStateExpired  = "expired"
	TransferStateCanceled = "canceled"
	TransferStateLocked   = "locked"
)

// AccountDetails is the denormalized per-account read row. Amounts are
// recomputed from the event stream on every account event, so replaying the
// log from scratch lands on the same row.
type AccountDetails struct {
	AccountID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"account_id"`
	CustomerID      uuid.UUID `gorm:"type:uuid;index" json:"customer_id"`
	CustomerEmail   string    `gorm:"size:255" json:"customer_email"`
	AvailableAmount int64     `json:"available_amount"`
	EarnedAmount    int64     `json:"earned_amount"`
	SpentAmount     int64     `json:"spent_amount"`
	ExpiredAmount   int64     `json:"expired_amount"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (AccountDetails) TableName() string {
	return "account_details"
}

// PointsTransferDetails is the per-transfer read row backing transfer
// listings and the expiry sweep query.
type PointsTransferDetails struct {
	TransferID    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"transfer_id"`
	AccountID     uuid.UUID  `gorm:"type:uuid;index" json:"account_id"`
	CustomerID    uuid.UUID  `gorm:"type:uuid;index" json:"customer_id"`
	Type          string     `gorm:"size:16" json:"type"`
	State         string     `gorm:"size:16;index" json:"state"`
	Value         int64      `json:"value"`
	Issuer        string     `gorm:"size:64" json:"issuer"`
	Comment       string     `gorm:"size:255" json:"comment"`
	TransactionID *uuid.UUID `gorm:"type:uuid" json:"transaction_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `gorm:"index" json:"expires_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (PointsTransferDetails) TableName() string {
	return "points_transfer_details"
}
