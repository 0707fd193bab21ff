package transaction

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventstore"
	"loyalty-engine/services/account"
)

// Projector maintains transaction_details. Besides transaction events it
// watches account PointsAdded events carrying a transaction reference, to
// backfill the points earned for the document.
type Projector struct {
	db     *gorm.DB
	repo   *es.Repository[*Transaction]
	logger *zap.Logger
}

type ProjectorParams struct {
	fx.In

	DB     *gorm.DB
	Store  eventstore.Store
	Logger *zap.Logger
}

func NewProjector(p ProjectorParams) *Projector {
	return &Projector{
		db:     p.DB,
		repo:   es.NewRepository(p.Store, New),
		logger: p.Logger,
	}
}

func (p *Projector) Name() string {
	return "transaction_details"
}

func (p *Projector) Reset(ctx context.Context) error {
	return p.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&TransactionDetails{}).Error
}

func (p *Projector) Handle(ctx context.Context, stored eventstore.StoredEvent) error {
	switch ev := stored.Event.(type) {
	case *TransactionRegistered, *LabelsAppended:
		return p.upsert(ctx, stored)
	case *account.PointsAdded:
		if ev.Transfer.TransactionID == nil {
			return nil
		}
		return p.addPointsEarned(ctx, *ev.Transfer.TransactionID, ev.Transfer.Value)
	}
	return nil
}

func (p *Projector) upsert(ctx context.Context, stored eventstore.StoredEvent) error {
	tx, err := p.repo.Load(ctx, stored.AggregateID)
	if err != nil {
		return err
	}
	if !tx.Exists() {
		return nil
	}

	items, err := json.Marshal(tx.Items)
	if err != nil {
		return err
	}
	labels, err := json.Marshal(tx.Labels)
	if err != nil {
		return err
	}

	row := TransactionDetails{
		TransactionID:  tx.AggregateID(),
		CustomerID:     tx.CustomerID,
		DocumentNumber: tx.DocumentNumber,
		DocumentType:   tx.DocumentType,
		PurchasedAt:    tx.PurchasedAt,
		GrossValue:     tx.GrossValue(),
		Items:          datatypes.JSON(items),
		Labels:         datatypes.JSON(labels),
	}
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "transaction_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"labels", "updated_at",
			}),
		}).
		Create(&row).Error
}

func (p *Projector) addPointsEarned(ctx context.Context, transactionID uuid.UUID, value int64) error {
	result := p.db.WithContext(ctx).
		Model(&TransactionDetails{}).
		Where("transaction_id = ?", transactionID).
		Update("points_earned", gorm.Expr("points_earned + ?", value))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		p.logger.Warn("points awarded for unknown transaction",
			zap.String("transaction_id", transactionID.String()),
		)
	}
	return nil
}
