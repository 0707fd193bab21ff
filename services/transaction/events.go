package transaction

import (
	"time"

	"github.com/google/uuid"

	"loyalty-engine/pkg/eventstore"
)

const (
	EventTransactionRegistered = "transaction.registered"
	EventLabelsAppended        = "transaction.labels_appended"
)

func init() {
	eventstore.Register(func() eventstore.Event { return &TransactionRegistered{} })
	eventstore.Register(func() eventstore.Event { return &LabelsAppended{} })
}

const (
	DocumentTypeSell   = "sell"
	DocumentTypeReturn = "return"
)

// Item is one purchase line. GrossValue is the line total, not the unit
// price.
type Item struct {
	SKU        string   `json:"sku"`
	Name       string   `json:"name"`
	Quantity   int64    `json:"quantity"`
	GrossValue float64  `json:"grossValue"`
	Category   string   `json:"category"`
	Maker      string   `json:"maker"`
	Labels     []string `json:"labels,omitempty"`
}

type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type TransactionRegistered struct {
	TransactionID  uuid.UUID `json:"transactionId"`
	CustomerID     uuid.UUID `json:"customerId"`
	DocumentNumber string    `json:"documentNumber"`
	DocumentType   string    `json:"documentType"`
	PurchasedAt    time.Time `json:"purchasedAt"`
	Items          []Item    `json:"items"`
	Labels         []Label   `json:"labels,omitempty"`
}

func (TransactionRegistered) EventType() string { return EventTransactionRegistered }

type LabelsAppended struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Labels        []Label   `json:"labels"`
}

func (LabelsAppended) EventType() string { return EventLabelsAppended }
