package customer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventstore"
)

const AggregateType = "customer"

const (
	StatusNew      = "new"
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Customer struct {
	es.Root

	Email        string
	Phone        string
	FirstName    string
	LastName     string
	Status       string
	LevelID      *uuid.UUID
	ReferrerID   *uuid.UUID
	RegisteredAt time.Time

	registered bool
	referrals  map[uuid.UUID]bool
}

func New(id uuid.UUID) *Customer {
	c := &Customer{
		Root:      es.NewRoot(id),
		referrals: make(map[uuid.UUID]bool),
	}
	c.SetApplier(c.apply)
	return c
}

func (c *Customer) AggregateType() string { return AggregateType }

func (c *Customer) Exists() bool { return c.registered }

func (c *Customer) ReferralCount() int { return len(c.referrals) }

func (c *Customer) RegisterCustomer(ev CustomerRegistered) error {
	if c.registered {
		return errutil.Conflict(fmt.Sprintf("customer %s already registered", c.AggregateID()))
	}
	ev.CustomerID = c.AggregateID()
	c.Record(&ev)
	return nil
}

// Activate is idempotent: activating an active customer records nothing.
func (c *Customer) Activate(now time.Time) error {
	if err := c.requireRegistered(); err != nil {
		return err
	}
	if c.Status == StatusActive {
		return nil
	}
	c.Record(&CustomerActivated{CustomerID: c.AggregateID(), ActivatedAt: now.UTC()})
	return nil
}

func (c *Customer) Deactivate(now time.Time) error {
	if err := c.requireRegistered(); err != nil {
		return err
	}
	if c.Status == StatusInactive {
		return nil
	}
	c.Record(&CustomerDeactivated{CustomerID: c.AggregateID(), DeactivatedAt: now.UTC()})
	return nil
}

// MoveToLevel records nothing when the customer already sits on the level.
func (c *Customer) MoveToLevel(levelID uuid.UUID, now time.Time) error {
	if err := c.requireRegistered(); err != nil {
		return err
	}
	if c.LevelID != nil && *c.LevelID == levelID {
		return nil
	}
	c.Record(&CustomerMovedToLevel{CustomerID: c.AggregateID(), LevelID: levelID, MovedAt: now.UTC()})
	return nil
}

// RecordReferral notes one accepted invitation. Recording the same referred
// customer twice is a no-op.
func (c *Customer) RecordReferral(referredID uuid.UUID, now time.Time) error {
	if err := c.requireRegistered(); err != nil {
		return err
	}
	if referredID == c.AggregateID() {
		return errutil.UnprocessableEntity("customer cannot refer themselves")
	}
	if c.referrals[referredID] {
		return nil
	}
	c.Record(&ReferralRecorded{
		CustomerID:         c.AggregateID(),
		ReferredCustomerID: referredID,
		RecordedAt:         now.UTC(),
	})
	return nil
}

func (c *Customer) requireRegistered() error {
	if !c.registered {
		return errutil.NotFound(fmt.Sprintf("customer %s does not exist", c.AggregateID()))
	}
	return nil
}

func (c *Customer) apply(ev eventstore.Event) {
	switch e := ev.(type) {
	case *CustomerRegistered:
		c.registered = true
		c.Email = e.Email
		c.Phone = e.Phone
		c.FirstName = e.FirstName
		c.LastName = e.LastName
		c.ReferrerID = e.ReferrerID
		c.RegisteredAt = e.RegisteredAt
		c.Status = StatusNew
	case *CustomerActivated:
		c.Status = StatusActive
	case *CustomerDeactivated:
		c.Status = StatusInactive
	case *CustomerMovedToLevel:
		level := e.LevelID
		c.LevelID = &level
	case *ReferralRecorded:
		c.referrals[e.ReferredCustomerID] = true
	}
}
