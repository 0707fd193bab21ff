package account

import (
	"time"

	"github.com/google/uuid"

	"loyalty-engine/pkg/eventstore"
)

// Event type names are stable identifiers persisted in the log; never rename.
const (
	EventAccountCreated         = "account.created"
	EventPointsAdded            = "account.points_added"
	EventPointsSpent            = "account.points_spent"
	EventPointsTransferCanceled = "account.points_transfer_canceled"
	EventPointsTransferExpired  = "account.points_transfer_expired"
	EventPointsTransferLocked   = "account.points_transfer_locked"
	EventPointsTransferUnlocked = "account.points_transfer_unlocked"
)

func init() {
	eventstore.Register(func() eventstore.Event { return &AccountCreated{} })
	eventstore.Register(func() eventstore.Event { return &PointsAdded{} })
	eventstore.Register(func() eventstore.Event { return &PointsSpent{} })
	eventstore.Register(func() eventstore.Event { return &PointsTransferCanceled{} })
	eventstore.Register(func() eventstore.Event { return &PointsTransferExpired{} })
	eventstore.Register(func() eventstore.Event { return &PointsTransferLocked{} })
	eventstore.Register(func() eventstore.Event { return &PointsTransferUnlocked{} })
}

// Transfer is the payload shared by the add and spend events. ExpiresAt nil
// means the transfer never expires; spending transfers never carry one.
type Transfer struct {
	ID            uuid.UUID  `json:"id"`
	Value         int64      `json:"value"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Issuer        string     `json:"issuer,omitempty"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	Comment       string     `json:"comment,omitempty"`
}

type AccountCreated struct {
	AccountID  uuid.UUID `json:"account_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (AccountCreated) EventType() string { return EventAccountCreated }

type PointsAdded struct {
	AccountID uuid.UUID `json:"account_id"`
	Transfer  Transfer  `json:"transfer"`
}

func (PointsAdded) EventType() string { return EventPointsAdded }

type PointsSpent struct {
	AccountID uuid.UUID `json:"account_id"`
	Transfer  Transfer  `json:"transfer"`
	// Locked spends are reservations: the deduction holds until the spend is
	// unlocked (confirmed) or canceled (released).
	Locked bool `json:"locked,omitempty"`
}

func (PointsSpent) EventType() string { return EventPointsSpent }

type PointsTransferCanceled struct {
	AccountID  uuid.UUID `json:"account_id"`
	TransferID uuid.UUID `json:"transfer_id"`
	CanceledAt time.Time `json:"canceled_at"`
}

func (PointsTransferCanceled) EventType() string { return EventPointsTransferCanceled }

type PointsTransferExpired struct {
	AccountID  uuid.UUID `json:"account_id"`
	TransferID uuid.UUID `json:"transfer_id"`
	ExpiredAt  time.Time `json:"expired_at"`
}

func (PointsTransferExpired) EventType() string { return EventPointsTransferExpired }

type PointsTransferLocked struct {
	AccountID  uuid.UUID `json:"account_id"`
	TransferID uuid.UUID `json:"transfer_id"`
}

func (PointsTransferLocked) EventType() string { return EventPointsTransferLocked }

type PointsTransferUnlocked struct {
	AccountID  uuid.UUID `json:"account_id"`
	TransferID uuid.UUID `json:"transfer_id"`
}

func (PointsTransferUnlocked) EventType() string { return EventPointsTransferUnlocked }
