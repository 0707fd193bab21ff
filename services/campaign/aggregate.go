package campaign

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventstore"
)

const AggregateType = "campaign_purchase"

const (
	PurchaseStatusPending  = "pending"
	PurchaseStatusActive   = "active"
	PurchaseStatusReleased = "released"
)

// Purchase is one campaign buy: a coupon bought with points. A pending
// purchase holds a locked spend until it is confirmed or released.
type Purchase struct {
	es.Root

	CampaignID   uuid.UUID
	CustomerID   uuid.UUID
	AccountID    uuid.UUID
	TransferID   uuid.UUID
	CouponCode   string
	CostInPoints int64
	Status       string
	Used         bool
	PurchasedAt  time.Time

	bought bool
}

func New(id uuid.UUID) *Purchase {
	p := &Purchase{Root: es.NewRoot(id)}
	p.SetApplier(p.apply)
	return p
}

func (p *Purchase) AggregateType() string { return AggregateType }

func (p *Purchase) Exists() bool { return p.bought }

func (p *Purchase) Buy(ev CampaignWasBought) error {
	if p.bought {
		return errutil.Conflict(fmt.Sprintf("purchase %s already recorded", p.AggregateID()))
	}
	ev.PurchaseID = p.AggregateID()
	p.Record(&ev)
	return nil
}

// Confirm settles a pending purchase; the locked spend becomes final.
func (p *Purchase) Confirm(now time.Time) error {
	if err := p.requireBought(); err != nil {
		return err
	}
	if p.Status != PurchaseStatusPending {
		return errutil.Conflict(fmt.Sprintf("purchase %s is %s, not pending", p.AggregateID(), p.Status))
	}
	p.Record(&CampaignPurchaseConfirmed{PurchaseID: p.AggregateID(), ConfirmedAt: now.UTC()})
	return nil
}

// Release cancels a pending purchase; the points go back to the customer.
func (p *Purchase) Release(now time.Time) error {
	if err := p.requireBought(); err != nil {
		return err
	}
	if p.Status != PurchaseStatusPending {
		return errutil.Conflict(fmt.Sprintf("purchase %s is %s, not pending", p.AggregateID(), p.Status))
	}
	p.Record(&CampaignPurchaseReleased{PurchaseID: p.AggregateID(), ReleasedAt: now.UTC()})
	return nil
}

// SetCouponUsed toggles the coupon. Setting the current state again records
// nothing and reports changed=false.
func (p *Purchase) SetCouponUsed(used bool, now time.Time) (bool, error) {
	if err := p.requireBought(); err != nil {
		return false, err
	}
	if p.Status == PurchaseStatusReleased {
		return false, errutil.Conflict(fmt.Sprintf("purchase %s was released", p.AggregateID()))
	}
	if p.Used == used {
		return false, nil
	}
	p.Record(&CampaignUsageChanged{PurchaseID: p.AggregateID(), Used: used, ChangedAt: now.UTC()})
	return true, nil
}

func (p *Purchase) requireBought() error {
	if !p.bought {
		return errutil.NotFound(fmt.Sprintf("purchase %s does not exist", p.AggregateID()))
	}
	return nil
}

func (p *Purchase) apply(ev eventstore.Event) {
	switch e := ev.(type) {
	case *CampaignWasBought:
		p.bought = true
		p.CampaignID = e.CampaignID
		p.CustomerID = e.CustomerID
		p.AccountID = e.AccountID
		p.TransferID = e.TransferID
		p.CouponCode = e.CouponCode
		p.CostInPoints = e.CostInPoints
		p.PurchasedAt = e.PurchasedAt
		if e.Pending {
			p.Status = PurchaseStatusPending
		} else {
			p.Status = PurchaseStatusActive
		}
	case *CampaignPurchaseConfirmed:
		p.Status = PurchaseStatusActive
	case *CampaignPurchaseReleased:
		p.Status = PurchaseStatusReleased
	case *CampaignUsageChanged:
		p.Used = e.Used
	}
}
