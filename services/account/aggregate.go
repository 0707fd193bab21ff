package account

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventstore"
)

const AggregateType = "account"

// addingTransfer is an earn-side transfer. used tracks how much of it spends
// have consumed; the remainder expires with it.
type addingTransfer struct {
	Transfer
	used     int64
	canceled bool
	expired  bool
	locked   bool
}

func (t *addingTransfer) remaining() int64 {
	return t.Value - t.used
}

func (t *addingTransfer) active() bool {
	return !t.canceled && !t.expired && !t.locked
}

type allocation struct {
	addingID uuid.UUID
	amount   int64
}

// spendTransfer is a burn-side transfer. It never expires. A locked spend is
// a reservation: deducted, pending confirmation (unlock) or release (cancel).
type spendTransfer struct {
	Transfer
	canceled    bool
	locked      bool
	allocations []allocation
}

// Account holds a customer's points. State is derived purely from the event
// stream; behavior methods validate invariants and record exactly one event
// per successful operation.
type Account struct {
	es.Root

	CustomerID uuid.UUID
	CreatedAt  time.Time

	created bool
	adding  map[uuid.UUID]*addingTransfer
	order   []uuid.UUID // insertion order, for deterministic iteration
	spends  map[uuid.UUID]*spendTransfer

	expiredAmount int64
}

func New(id uuid.UUID) *Account {
	a := &Account{
		Root:   es.NewRoot(id),
		adding: make(map[uuid.UUID]*addingTransfer),
		spends: make(map[uuid.UUID]*spendTransfer),
	}
	a.SetApplier(a.apply)
	return a
}

func (a *Account) AggregateType() string { return AggregateType }

// Create initializes the account. Creating twice is a conflict.
func (a *Account) Create(customerID uuid.UUID, now time.Time) error {
	if a.created {
		return errutil.Conflict("account already exists")
	}
	a.Record(&AccountCreated{
		AccountID:  a.AggregateID(),
		CustomerID: customerID,
		CreatedAt:  now.UTC(),
	})
	return nil
}

// AddPoints appends an adding transfer. Value must be positive.
func (a *Account) AddPoints(t Transfer) error {
	if err := a.requireCreated(); err != nil {
		return err
	}
	if t.Value <= 0 {
		return errutil.InvalidPointsValue(fmt.Sprintf("points value must be positive, got %d", t.Value))
	}
	if a.transferExists(t.ID) {
		return errutil.Conflict(fmt.Sprintf("transfer %s already recorded", t.ID))
	}
	a.Record(&PointsAdded{AccountID: a.AggregateID(), Transfer: t})
	return nil
}

// SpendPoints deducts points, consuming active adding transfers
// oldest-expiring-first. A locked spend reserves the points until unlocked or
// canceled.
func (a *Account) SpendPoints(t Transfer, locked bool) error {
	if err := a.requireCreated(); err != nil {
		return err
	}
	if t.Value <= 0 {
		return errutil.InvalidPointsValue(fmt.Sprintf("points value must be positive, got %d", t.Value))
	}
	if a.transferExists(t.ID) {
		return errutil.Conflict(fmt.Sprintf("transfer %s already recorded", t.ID))
	}
	if available := a.AvailableAmount(); available < t.Value {
		return errutil.InsufficientBalance(
			fmt.Sprintf("cannot spend %d points, only %d available", t.Value, available),
		)
	}
	t.ExpiresAt = nil // spending transfers never expire
	a.Record(&PointsSpent{AccountID: a.AggregateID(), Transfer: t, Locked: locked})
	return nil
}

// CancelTransfer voids a transfer. Canceling an adding transfer removes its
// unspent remainder from the balance; canceling a spending transfer returns
// the consumed points to their source transfers.
func (a *Account) CancelTransfer(id uuid.UUID, now time.Time) error {
	if err := a.requireCreated(); err != nil {
		return err
	}
	if t, ok := a.adding[id]; ok {
		if t.canceled {
			return errutil.AlreadyCanceled(fmt.Sprintf("transfer %s already canceled", id))
		}
	} else if s, ok := a.spends[id]; ok {
		if s.canceled {
			return errutil.AlreadyCanceled(fmt.Sprintf("transfer %s already canceled", id))
		}
	} else {
		return errutil.TransferNotFound(fmt.Sprintf("transfer %s not found", id))
	}

	a.Record(&PointsTransferCanceled{
		AccountID:  a.AggregateID(),
		TransferID: id,
		CanceledAt: now.UTC(),
	})
	return nil
}

// ExpireTransfer marks an adding transfer expired once due. Idempotent:
// re-expiring, expiring a canceled transfer, or expiring before the deadline
// records nothing and returns no error.
func (a *Account) ExpireTransfer(id uuid.UUID, now time.Time) error {
	if err := a.requireCreated(); err != nil {
		return err
	}
	t, ok := a.adding[id]
	if !ok {
		if _, isSpend := a.spends[id]; isSpend {
			return errutil.UnprocessableEntity(fmt.Sprintf("transfer %s is a spending transfer and cannot expire", id))
		}
		return errutil.TransferNotFound(fmt.Sprintf("transfer %s not found", id))
	}
	if t.expired || t.canceled {
		return nil
	}
	if t.ExpiresAt == nil || now.Before(*t.ExpiresAt) {
		return nil
	}
	a.Record(&PointsTransferExpired{
		AccountID:  a.AggregateID(),
		TransferID: id,
		ExpiredAt:  now.UTC(),
	})
	return nil
}

// LockTransfer freezes a transfer: a locked adding transfer is excluded from
// the available balance, a locked spend stays reserved.
func (a *Account) LockTransfer(id uuid.UUID) error {
	if err := a.requireCreated(); err != nil {
		return err
	}
	locked, err := a.transferLockState(id)
	if err != nil {
		return err
	}
	if locked {
		return errutil.Conflict(fmt.Sprintf("transfer %s already locked", id))
	}
	a.Record(&PointsTransferLocked{AccountID: a.AggregateID(), TransferID: id})
	return nil
}

func (a *Account) UnlockTransfer(id uuid.UUID) error {
	if err := a.requireCreated(); err != nil {
		return err
	}
	locked, err := a.transferLockState(id)
	if err != nil {
		return err
	}
	if !locked {
		return errutil.Conflict(fmt.Sprintf("transfer %s is not locked", id))
	}
	a.Record(&PointsTransferUnlocked{AccountID: a.AggregateID(), TransferID: id})
	return nil
}

// AvailableAmount is the spendable balance: unspent remainders of active
// adding transfers.
func (a *Account) AvailableAmount() int64 {
	var sum int64
	for _, id := range a.order {
		if t, ok := a.adding[id]; ok && t.active() {
			sum += t.remaining()
		}
	}
	return sum
}

// EarnedAmount is the lifetime total of non-canceled adding transfers,
// expired or not. Level assignment keys off this figure.
func (a *Account) EarnedAmount() int64 {
	var sum int64
	for _, t := range a.adding {
		if !t.canceled {
			sum += t.Value
		}
	}
	return sum
}

func (a *Account) SpentAmount() int64 {
	var sum int64
	for _, s := range a.spends {
		if !s.canceled {
			sum += s.Value
		}
	}
	return sum
}

func (a *Account) ExpiredAmount() int64 {
	return a.expiredAmount
}

func (a *Account) Exists() bool {
	return a.created
}

func (a *Account) requireCreated() error {
	if !a.created {
		return errutil.NotFound(fmt.Sprintf("account %s does not exist", a.AggregateID()))
	}
	return nil
}

func (a *Account) transferExists(id uuid.UUID) bool {
	if _, ok := a.adding[id]; ok {
		return true
	}
	_, ok := a.spends[id]
	return ok
}

func (a *Account) transferLockState(id uuid.UUID) (bool, error) {
	if t, ok := a.adding[id]; ok {
		if t.canceled {
			return false, errutil.AlreadyCanceled(fmt.Sprintf("transfer %s is canceled", id))
		}
		return t.locked, nil
	}
	if s, ok := a.spends[id]; ok {
		if s.canceled {
			return false, errutil.AlreadyCanceled(fmt.Sprintf("transfer %s is canceled", id))
		}
		return s.locked, nil
	}
	return false, errutil.TransferNotFound(fmt.Sprintf("transfer %s not found", id))
}

// consumptionOrder returns active adding transfers oldest-expiring-first:
// dated expiries ascending, never-expiring transfers last, ties broken by
// creation time then id. This ordering is load-bearing; it decides which
// points an expiry sweep can still claim.
func (a *Account) consumptionOrder() []*addingTransfer {
	out := make([]*addingTransfer, 0, len(a.order))
	for _, id := range a.order {
		if t, ok := a.adding[id]; ok && t.active() && t.remaining() > 0 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i], out[j]
		switch {
		case ti.ExpiresAt == nil && tj.ExpiresAt == nil:
		case ti.ExpiresAt == nil:
			return false
		case tj.ExpiresAt == nil:
			return true
		case !ti.ExpiresAt.Equal(*tj.ExpiresAt):
			return ti.ExpiresAt.Before(*tj.ExpiresAt)
		}
		if !ti.CreatedAt.Equal(tj.CreatedAt) {
			return ti.CreatedAt.Before(tj.CreatedAt)
		}
		return ti.ID.String() < tj.ID.String()
	})
	return out
}

func (a *Account) apply(ev eventstore.Event) {
	switch e := ev.(type) {
	case *AccountCreated:
		a.created = true
		a.CustomerID = e.CustomerID
		a.CreatedAt = e.CreatedAt
	case *PointsAdded:
		a.adding[e.Transfer.ID] = &addingTransfer{Transfer: e.Transfer}
		a.order = append(a.order, e.Transfer.ID)
	case *PointsSpent:
		a.applySpend(e)
	case *PointsTransferCanceled:
		a.applyCancel(e.TransferID)
	case *PointsTransferExpired:
		if t, ok := a.adding[e.TransferID]; ok && !t.expired {
			a.expiredAmount += t.remaining()
			t.expired = true
		}
	case *PointsTransferLocked:
		a.applyLock(e.TransferID, true)
	case *PointsTransferUnlocked:
		a.applyLock(e.TransferID, false)
	}
}

// applySpend allocates the spend across active adding transfers in
// consumption order. The behavior method has already checked the balance;
// replaying the same prefix of history reproduces the same allocation.
func (a *Account) applySpend(e *PointsSpent) {
	spend := &spendTransfer{Transfer: e.Transfer, locked: e.Locked}

	remaining := e.Transfer.Value
	for _, t := range a.consumptionOrder() {
		if remaining == 0 {
			break
		}
		take := t.remaining()
		if take > remaining {
			take = remaining
		}
		t.used += take
		spend.allocations = append(spend.allocations, allocation{addingID: t.ID, amount: take})
		remaining -= take
	}

	a.spends[e.Transfer.ID] = spend
}

func (a *Account) applyCancel(id uuid.UUID) {
	if t, ok := a.adding[id]; ok {
		t.canceled = true
		return
	}
	if s, ok := a.spends[id]; ok && !s.canceled {
		s.canceled = true
		for _, alloc := range s.allocations {
			if t, ok := a.adding[alloc.addingID]; ok {
				t.used -= alloc.amount
			}
		}
	}
}

func (a *Account) applyLock(id uuid.UUID, locked bool) {
	if t, ok := a.adding[id]; ok {
		t.locked = locked
		return
	}
	if s, ok := a.spends[id]; ok {
		s.locked = locked
	}
}
