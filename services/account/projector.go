package account

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventstore"
)

// EmailResolver maps a customer id to their email for read-row enrichment.
// The customer service provides one; without it rows carry a blank email.
type EmailResolver func(ctx context.Context, customerID uuid.UUID) (string, bool)

// Projector maintains account_details and points_transfer_details. Rather
// than patching rows per event it refolds the aggregate and writes its
// current state, so handling any event twice, or out of a rebuild, converges
// on the same rows.
type Projector struct {
	db       *gorm.DB
	repo     *es.Repository[*Account]
	resolver EmailResolver
	logger   *zap.Logger
}

type ProjectorParams struct {
	fx.In

	DB       *gorm.DB
	Store    eventstore.Store
	Resolver EmailResolver `optional:"true"`
	Logger   *zap.Logger
}

func NewProjector(p ProjectorParams) *Projector {
	return &Projector{
		db:       p.DB,
		repo:     es.NewRepository(p.Store, New),
		resolver: p.Resolver,
		logger:   p.Logger,
	}
}

func (p *Projector) Name() string {
	return "account_details"
}

func (p *Projector) Reset(ctx context.Context) error {
	session := p.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := session.Delete(&PointsTransferDetails{}).Error; err != nil {
		return err
	}
	return session.Delete(&AccountDetails{}).Error
}

func (p *Projector) Handle(ctx context.Context, stored eventstore.StoredEvent) error {
	if stored.AggregateType != AggregateType {
		return nil
	}

	acc, err := p.repo.Load(ctx, stored.AggregateID)
	if err != nil {
		return err
	}
	if !acc.Exists() {
		return nil
	}

	if err := p.upsertAccount(ctx, acc); err != nil {
		return err
	}
	if id, ok := affectedTransfer(stored.Event); ok {
		return p.upsertTransfer(ctx, acc, id)
	}
	return nil
}

func (p *Projector) upsertAccount(ctx context.Context, acc *Account) error {
	row := AccountDetails{
		AccountID:       acc.AggregateID(),
		CustomerID:      acc.CustomerID,
		AvailableAmount: acc.AvailableAmount(),
		EarnedAmount:    acc.EarnedAmount(),
		SpentAmount:     acc.SpentAmount(),
		ExpiredAmount:   acc.ExpiredAmount(),
		CreatedAt:       acc.CreatedAt,
	}
	if p.resolver != nil {
		if email, ok := p.resolver(ctx, acc.CustomerID); ok {
			row.CustomerEmail = email
		}
	}

	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"customer_id", "customer_email", "available_amount",
				"earned_amount", "spent_amount", "expired_amount", "updated_at",
			}),
		}).
		Create(&row).Error
}

func (p *Projector) upsertTransfer(ctx context.Context, acc *Account, id uuid.UUID) error {
	row, ok := transferRow(acc, id)
	if !ok {
		p.logger.Warn("transfer event for unknown transfer",
			zap.String("account_id", acc.AggregateID().String()),
			zap.String("transfer_id", id.String()),
		)
		return nil
	}

	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "transfer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "expires_at", "updated_at",
			}),
		}).
		Create(&row).Error
}

func affectedTransfer(ev eventstore.Event) (uuid.UUID, bool) {
	switch e := ev.(type) {
	case *PointsAdded:
		return e.Transfer.ID, true
	case *PointsSpent:
		return e.Transfer.ID, true
	case *PointsTransferCanceled:
		return e.TransferID, true
	case *PointsTransferExpired:
		return e.TransferID, true
	case *PointsTransferLocked:
		return e.TransferID, true
	case *PointsTransferUnlocked:
		return e.TransferID, true
	}
	return uuid.Nil, false
}

// transferRow renders the current read row for one transfer from aggregate
// state.
func transferRow(acc *Account, id uuid.UUID) (PointsTransferDetails, bool) {
	if t, ok := acc.adding[id]; ok {
		return PointsTransferDetails{
			TransferID:    t.ID,
			AccountID:     acc.AggregateID(),
			CustomerID:    acc.CustomerID,
			Type:          TransferTypeAdding,
			State:         addingState(t),
			Value:         t.Value,
			Issuer:        t.Issuer,
			Comment:       t.Comment,
			TransactionID: t.TransactionID,
			CreatedAt:     t.CreatedAt,
			ExpiresAt:     t.ExpiresAt,
		}, true
	}
	if s, ok := acc.spends[id]; ok {
		return PointsTransferDetails{
			TransferID:    s.ID,
			AccountID:     acc.AggregateID(),
			CustomerID:    acc.CustomerID,
			Type:          TransferTypeSpending,
			State:         spendingState(s),
			Value:         s.Value,
			Issuer:        s.Issuer,
			Comment:       s.Comment,
			TransactionID: s.TransactionID,
			CreatedAt:     s.CreatedAt,
		}, true
	}
	return PointsTransferDetails{}, false
}

func addingState(t *addingTransfer) string {
	switch {
	case t.canceled:
		return TransferStateCanceled
	case t.expired:
		return TransferStateExpired
	case t.locked:
		return TransferStateLocked
	default:
		return TransferStateActive
	}
}

func spendingState(s *spendTransfer) string {
	switch {
	case s.canceled:
		return TransferStateCanceled
	case s.locked:
		return TransferStatePending
	default:
		return TransferStateActive
	}
}
