package level

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"

	"loyalty-engine/pkg/db/option"
	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/repository"
)

// Level is a reward tier granted once a customer's lifetime earned points
// reach MinPoints. RewardMultiplier scales every rule award for customers
// in the tier.
type Level struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string    `gorm:"size:128" json:"name"`
	MinPoints        int64     `gorm:"index" json:"min_points"`
	RewardMultiplier float64   `json:"reward_multiplier"`
	Active           bool      `gorm:"index" json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Level) TableName() string {
	return "levels"
}

type Service struct {
	levels repository.Repository[Level]
}

type Params struct {
	fx.In

	Levels repository.Repository[Level]
}

func NewService(p Params) *Service {
	return &Service{levels: p.Levels}
}

func (s *Service) Create(ctx context.Context, lvl *Level) error {
	if lvl.ID == uuid.Nil {
		return errutil.ValidationFailed("level id is required")
	}
	if lvl.Name == "" {
		return errutil.ValidationFailed("level name is required")
	}
	if lvl.MinPoints < 0 {
		return errutil.ValidationFailed("level threshold must not be negative")
	}
	return s.levels.Create(ctx, lvl)
}

func (s *Service) List(ctx context.Context) ([]*Level, error) {
	return s.levels.Find(ctx, &Level{}, option.WithSortBy(option.QuerySortBy{
		SortBy: "min_points",
		Allow:  map[string]bool{"min_points": true},
	}))
}

// PickForPoints returns the highest active level whose threshold is within
// the earned amount, or nil when no level applies yet.
func (s *Service) PickForPoints(ctx context.Context, earned int64) (*Level, error) {
	rows, err := s.levels.Find(ctx, &Level{Active: true},
		option.ApplyOperator(option.Condition{Field: "min_points", Operator: option.LTE, Value: earned}),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "min_points",
			OrderBy: "desc",
			Allow:   map[string]bool{"min_points": true},
		}),
		option.WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
