package customer

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
	repo *es.Repository[*Customer]
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
	return "customer_details"
}

func (p *Projector) Reset(ctx context.Context) error {
	return p.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&CustomerDetails{}).Error
}

func (p *Projector) Handle(ctx context.Context, stored eventstore.StoredEvent) error {
	if stored.AggregateType != AggregateType {
		return nil
	}

	cust, err := p.repo.Load(ctx, stored.AggregateID)
	if err != nil {
		return err
	}
	if !cust.Exists() {
		return nil
	}

	row := CustomerDetails{
		CustomerID:   cust.AggregateID(),
		Email:        cust.Email,
		Phone:        cust.Phone,
		FirstName:    cust.FirstName,
		LastName:     cust.LastName,
		Status:       cust.Status,
		LevelID:      cust.LevelID,
		ReferrerID:   cust.ReferrerID,
		Referrals:    cust.ReferralCount(),
		RegisteredAt: cust.RegisteredAt,
	}
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "customer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"email", "phone", "first_name", "last_name", "status",
				"level_id", "referrals", "updated_at",
			}),
		}).
		Create(&row).Error
}
