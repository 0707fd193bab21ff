package account

import (
	"github.com/google/uuid"

	"loyalty-engine/pkg/errutil"
)

const (
	CommandCreateAccount        = "account.create"
	CommandAddPoints            = "account.add_points"
	CommandSpendPoints          = "account.spend_points"
	CommandCancelPointsTransfer = "account.cancel_points_transfer"
	CommandExpirePointsTransfer = "account.expire_points_transfer"
	CommandLockPointsTransfer   = "account.lock_points_transfer"
	CommandUnlockPointsTransfer = "account.unlock_points_transfer"
)

type CreateAccount struct {
	AccountID  uuid.UUID
	CustomerID uuid.UUID
}

func (c CreateAccount) AggregateID() uuid.UUID { return c.AccountID }
func (c CreateAccount) CommandType() string    { return CommandCreateAccount }

func (c CreateAccount) Validate() error {
	if c.AccountID == uuid.Nil {
		return errutil.ValidationFailed("account id is required")
	}
	if c.CustomerID == uuid.Nil {
		return errutil.ValidationFailed("customer id is required")
	}
	return nil
}

type AddPoints struct {
	AccountID  uuid.UUID
	TransferID uuid.UUID
	Value      int64
	Issuer     string
	Comment    string

	// TransactionID links the earn back to the purchase that produced it.
	TransactionID *uuid.UUID

	// ExpiresAtDays overrides the configured validity window when positive.
	ExpiresAtDays int
}

func (c AddPoints) AggregateID() uuid.UUID { return c.AccountID }
func (c AddPoints) CommandType() string    { return CommandAddPoints }

func (c AddPoints) Validate() error {
	if c.AccountID == uuid.Nil {
		return errutil.ValidationFailed("account id is required")
	}
	if c.TransferID == uuid.Nil {
		return errutil.ValidationFailed("transfer id is required")
	}
	if c.Value <= 0 {
		return errutil.ValidationFailed("points value must be positive")
	}
	return nil
}

type SpendPoints struct {
	AccountID     uuid.UUID
	TransferID    uuid.UUID
	Value         int64
	Issuer        string
	Comment       string
	TransactionID *uuid.UUID

	// Locked reserves the points instead of spending them outright. The
	// reservation is confirmed with UnlockPointsTransfer or released with
	// CancelPointsTransfer.
	Locked bool
}

func (c SpendPoints) AggregateID() uuid.UUID { return c.AccountID }
func (c SpendPoints) CommandType() string    { return CommandSpendPoints }

func (c SpendPoints) Validate() error {
	if c.AccountID == uuid.Nil {
		return errutil.ValidationFailed("account id is required")
	}
	if c.TransferID == uuid.Nil {
		return errutil.ValidationFailed("transfer id is required")
	}
	if c.Value <= 0 {
		return errutil.ValidationFailed("points value must be positive")
	}
	return nil
}

type CancelPointsTransfer struct {
	AccountID  uuid.UUID
	TransferID uuid.UUID
}

func (c CancelPointsTransfer) AggregateID() uuid.UUID { return c.AccountID }
func (c CancelPointsTransfer) CommandType() string    { return CommandCancelPointsTransfer }

func (c CancelPointsTransfer) Validate() error {
	return validateTransferRef(c.AccountID, c.TransferID)
}

type ExpirePointsTransfer struct {
	AccountID  uuid.UUID
	TransferID uuid.UUID
}

func (c ExpirePointsTransfer) AggregateID() uuid.UUID { return c.AccountID }
func (c ExpirePointsTransfer) CommandType() string    { return CommandExpirePointsTransfer }

func (c ExpirePointsTransfer) Validate() error {
	return validateTransferRef(c.AccountID, c.TransferID)
}

type LockPointsTransfer struct {
	AccountID  uuid.UUID
	TransferID uuid.UUID
}

func (c LockPointsTransfer) AggregateID() uuid.UUID { return c.AccountID }
func (c LockPointsTransfer) CommandType() string    { return CommandLockPointsTransfer }

func (c LockPointsTransfer) Validate() error {
	return validateTransferRef(c.AccountID, c.TransferID)
}

type UnlockPointsTransfer struct {
	AccountID  uuid.UUID
	TransferID uuid.UUID
}

func (c UnlockPointsTransfer) AggregateID() uuid.UUID { return c.AccountID }
func (c UnlockPointsTransfer) CommandType() string    { return CommandUnlockPointsTransfer }

func (c UnlockPointsTransfer) Validate() error {
	return validateTransferRef(c.AccountID, c.TransferID)
}

func validateTransferRef(accountID, transferID uuid.UUID) error {
	if accountID == uuid.Nil {
		return errutil.ValidationFailed("account id is required")
	}
	if transferID == uuid.Nil {
		return errutil.ValidationFailed("transfer id is required")
	}
	return nil
}
