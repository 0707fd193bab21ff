package campaign

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventstore"
)

type Projector struct {
	db   *gorm.DB
	repo *es.Repository[*Purchase]
}

type ProjectorParams struct {
	fx.In

	DB    *gorm.DB
	Store eventstore.Store
}

func NewProjector(p ProjectorParams) *Projector {
	return &Projector{
		db:   p.DB,
		repo: es.NewRepository(p.Store, New),
	}
}

func (p *Projector) Name() string {
	return "campaign_bought"
}

func (p *Projector) Reset(ctx context.Context) error {
	return p.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&CampaignBought{}).Error
}

func (p *Projector) Handle(ctx context.Context, stored eventstore.StoredEvent) error {
	if stored.AggregateType != AggregateType {
		return nil
	}

	purchase, err := p.repo.Load(ctx, stored.AggregateID)
	if err != nil {
		return err
	}
	if !purchase.Exists() {
		return nil
	}

	row := CampaignBought{
		PurchaseID:   purchase.AggregateID(),
		CampaignID:   purchase.CampaignID,
		CustomerID:   purchase.CustomerID,
		CouponCode:   purchase.CouponCode,
		CostInPoints: purchase.CostInPoints,
		Status:       purchase.Status,
		Used:         purchase.Used,
		PurchasedAt:  purchase.PurchasedAt,
	}
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "purchase_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "used", "updated_at",
			}),
		}).
		Create(&row).Error
}
