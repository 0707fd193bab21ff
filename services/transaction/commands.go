package transaction

import (
	"time"

	"github.com/google/uuid"

	"loyalty-engine/pkg/errutil"
)

const (
	CommandRegisterTransaction = "transaction.register"
	CommandAppendLabels        = "transaction.append_labels"
)

type RegisterTransaction struct {
	TransactionID  uuid.UUID
	CustomerID     uuid.UUID
	DocumentNumber string
	DocumentType   string
	PurchasedAt    time.Time
	Items          []Item
	Labels         []Label
}

func (c RegisterTransaction) AggregateID() uuid.UUID { return c.TransactionID }
func (c RegisterTransaction) CommandType() string    { return CommandRegisterTransaction }

func (c RegisterTransaction) Validate() error {
	if c.TransactionID == uuid.Nil {
		return errutil.ValidationFailed("transaction id is required")
	}
	if c.CustomerID == uuid.Nil {
		return errutil.ValidationFailed("customer id is required")
	}
	if c.DocumentNumber == "" {
		return errutil.ValidationFailed("document number is required")
	}
	if c.DocumentType != DocumentTypeSell && c.DocumentType != DocumentTypeReturn {
		return errutil.ValidationFailed("document type must be sell or return")
	}
	if len(c.Items) == 0 {
		return errutil.ValidationFailed("transaction must have at least one item")
	}
	for _, item := range c.Items {
		if item.Quantity <= 0 {
			return errutil.ValidationFailed("item quantity must be positive")
		}
		if item.GrossValue < 0 {
			return errutil.ValidationFailed("item gross value must not be negative")
		}
	}
	return nil
}

type AppendLabels struct {
	TransactionID uuid.UUID
	Labels        []Label
}

func (c AppendLabels) AggregateID() uuid.UUID { return c.TransactionID }
func (c AppendLabels) CommandType() string    { return CommandAppendLabels }

func (c AppendLabels) Validate() error {
	if c.TransactionID == uuid.Nil {
		return errutil.ValidationFailed("transaction id is required")
	}
	if len(c.Labels) == 0 {
		return errutil.ValidationFailed("labels must not be empty")
	}
	return nil
}
