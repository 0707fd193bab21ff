package customer

import (
	"time"

	"github.com/google/uuid"

	"loyalty-engine/pkg/eventstore"
)

const (
	EventCustomerRegistered   = "customer.registered"
	EventCustomerActivated    = "customer.activated"
	EventCustomerDeactivated  = "customer.deactivated"
	EventCustomerMovedToLevel = "customer.moved_to_level"
	EventReferralRecorded     = "customer.referral_recorded"
)

func init() {
	eventstore.Register(func() eventstore.Event { return &CustomerRegistered{} })
	eventstore.Register(func() eventstore.Event { return &CustomerActivated{} })
	eventstore.Register(func() eventstore.Event { return &CustomerDeactivated{} })
	eventstore.Register(func() eventstore.Event { return &CustomerMovedToLevel{} })
	eventstore.Register(func() eventstore.Event { return &ReferralRecorded{} })
}

type CustomerRegistered struct {
	CustomerID   uuid.UUID  `json:"customerId"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	ReferrerID   *uuid.UUID `json:"referrerId,omitempty"`
	RegisteredAt time.Time  `json:"registeredAt"`
}

func (CustomerRegistered) EventType() string { return EventCustomerRegistered }

type CustomerActivated struct {
	CustomerID  uuid.UUID `json:"customerId"`
	ActivatedAt time.Time `json:"activatedAt"`
}

func (CustomerActivated) EventType() string { return EventCustomerActivated }

type CustomerDeactivated struct {
	CustomerID    uuid.UUID `json:"customerId"`
	DeactivatedAt time.Time `json:"deactivatedAt"`
}

func (CustomerDeactivated) EventType() string { return EventCustomerDeactivated }

type CustomerMovedToLevel struct {
	CustomerID uuid.UUID `json:"customerId"`
	LevelID    uuid.UUID `json:"levelId"`
	MovedAt    time.Time `json:"movedAt"`
}

func (CustomerMovedToLevel) EventType() string { return EventCustomerMovedToLevel }

// ReferralRecorded lands on the referrer's stream once the invited customer
// registers.
type ReferralRecorded struct {
	CustomerID         uuid.UUID `json:"customerId"`
	ReferredCustomerID uuid.UUID `json:"referredCustomerId"`
	RecordedAt         time.Time `json:"recordedAt"`
}

func (ReferralRecorded) EventType() string { return EventReferralRecorded }
