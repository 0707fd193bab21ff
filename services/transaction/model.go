package transaction

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TransactionDetails is the denormalized purchase row. PointsEarned is
// backfilled when the earning path awards points for this document.
type TransactionDetails struct {
	TransactionID  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"transaction_id"`
	CustomerID     uuid.UUID      `gorm:"type:uuid;index" json:"customer_id"`
	DocumentNumber string         `gorm:"size:64;index" json:"document_number"`
	DocumentType   string         `gorm:"size:16" json:"document_type"`
	PurchasedAt    time.Time      `json:"purchased_at"`
	GrossValue     float64        `json:"gross_value"`
	Items          datatypes.JSON `json:"items"`
	Labels         datatypes.JSON `json:"labels,omitempty"`
	PointsEarned   int64          `json:"points_earned"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (TransactionDetails) TableName() string {
	return "transaction_details"
}
