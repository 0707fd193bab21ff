package transaction

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventstore"
)

const AggregateType = "transaction"

// Transaction is an immutable purchase record. It is registered once; only
// labels may be appended afterwards.
type Transaction struct {
	es.Root

	CustomerID     uuid.UUID
	DocumentNumber string
	DocumentType   string
	PurchasedAt    time.Time
	Items          []Item
	Labels         []Label

	registered bool
}

func New(id uuid.UUID) *Transaction {
	tx := &Transaction{Root: es.NewRoot(id)}
	tx.SetApplier(tx.apply)
	return tx
}

func (tx *Transaction) AggregateType() string { return AggregateType }

func (tx *Transaction) Exists() bool { return tx.registered }

func (tx *Transaction) RegisterTransaction(ev TransactionRegistered) error {
	if tx.registered {
		return errutil.Conflict(fmt.Sprintf("transaction %s already registered", tx.AggregateID()))
	}
	ev.TransactionID = tx.AggregateID()
	tx.Record(&ev)
	return nil
}

func (tx *Transaction) AppendLabels(labels []Label) error {
	if !tx.registered {
		return errutil.NotFound(fmt.Sprintf("transaction %s does not exist", tx.AggregateID()))
	}
	if len(labels) == 0 {
		return errutil.ValidationFailed("labels must not be empty")
	}
	tx.Record(&LabelsAppended{TransactionID: tx.AggregateID(), Labels: labels})
	return nil
}

// GrossValue is the document total over all lines.
func (tx *Transaction) GrossValue() float64 {
	var sum float64
	for _, item := range tx.Items {
		sum += item.GrossValue
	}
	return sum
}

func (tx *Transaction) apply(ev eventstore.Event) {
	switch e := ev.(type) {
	case *TransactionRegistered:
		tx.registered = true
		tx.CustomerID = e.CustomerID
		tx.DocumentNumber = e.DocumentNumber
		tx.DocumentType = e.DocumentType
		tx.PurchasedAt = e.PurchasedAt
		tx.Items = e.Items
		tx.Labels = e.Labels
	case *LabelsAppended:
		tx.Labels = append(tx.Labels, e.Labels...)
	}
}
