package customer

import (
	"time"

	"github.com/google/uuid"
)

// CustomerDetails is the denormalized customer read row.
type CustomerDetails struct {
	CustomerID   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"customer_id"`
	Email        string     `gorm:"size:255;index" json:"email"`
	Phone        string     `gorm:"size:32" json:"phone,omitempty"`
	FirstName    string     `gorm:"size:128" json:"first_name"`
	LastName     string     `gorm:"size:128" json:"last_name"`
	Status       string     `gorm:"size:16;index" json:"status"`
	LevelID      *uuid.UUID `gorm:"type:uuid" json:"level_id,omitempty"`
	ReferrerID   *uuid.UUID `gorm:"type:uuid" json:"referrer_id,omitempty"`
	Referrals    int        `json:"referrals"`
	RegisteredAt time.Time  `json:"registered_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (CustomerDetails) TableName() string {
	return "customer_details"
}
