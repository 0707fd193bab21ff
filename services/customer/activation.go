package customer

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/db/option"
	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/repository"
)

// Activation codes stay valid for a day; re-issuing supersedes nothing, any
// outstanding valid code works.
const activationCodeTTL = 24 * time.Hour

type ActivationCode struct {
	ID         string     `gorm:"primarykey" json:"id"`
	CustomerID uuid.UUID  `gorm:"type:uuid;index" json:"customer_id"`
	Code       string     `gorm:"size:8" json:"code"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
}

func (ActivationCode) TableName() string {
	return "activation_codes"
}

// ActivationService issues short numeric codes delivered out of band and
// activates the customer once a valid code comes back.
type ActivationService struct {
	codes  repository.Repository[ActivationCode]
	bus    *commandbus.Bus
	node   *snowflake.Node
	logger *zap.Logger
	now    func() time.Time
}

type ActivationParams struct {
	fx.In

	Codes  repository.Repository[ActivationCode]
	Bus    *commandbus.Bus
	Node   *snowflake.Node
	Logger *zap.Logger
}

func NewActivationService(p ActivationParams) *ActivationService {
	return &ActivationService{
		codes:  p.Codes,
		bus:    p.Bus,
		node:   p.Node,
		logger: p.Logger,
		now:    time.Now,
	}
}

func (s *ActivationService) Issue(ctx context.Context, customerID uuid.UUID) (*ActivationCode, error) {
	if customerID == uuid.Nil {
		return nil, errutil.ValidationFailed("customer id is required")
	}

	now := s.now().UTC()
	code := &ActivationCode{
		ID:         s.node.Generate().String(),
		CustomerID: customerID,
		Code:       randomCode(),
		CreatedAt:  now,
		ExpiresAt:  now.Add(activationCodeTTL),
	}
	if err := s.codes.Create(ctx, code); err != nil {
		return nil, err
	}

	s.logger.Info("activation code issued",
		zap.String("customer_id", customerID.String()),
		zap.String("code_id", code.ID),
	)
	return code, nil
}

// Verify marks the code used and activates the customer.
func (s *ActivationService) Verify(ctx context.Context, customerID uuid.UUID, code string) error {
	if customerID == uuid.Nil || code == "" {
		return errutil.ValidationFailed("customer id and code are required")
	}

	row, err := s.codes.FindOne(ctx, &ActivationCode{CustomerID: customerID, Code: code},
		option.WithLockingUpdate())
	if err != nil {
		return err
	}
	if row == nil {
		return errutil.NotFound("activation code not found")
	}
	if row.UsedAt != nil {
		return errutil.Conflict("activation code already used")
	}

	now := s.now().UTC()
	if now.After(row.ExpiresAt) {
		return errutil.UnprocessableEntity("activation code expired")
	}

	if err := s.codes.Update(ctx, row.ID, map[string]any{"used_at": now}); err != nil {
		return err
	}
	return s.bus.Dispatch(ctx, ActivateCustomer{CustomerID: customerID})
}

func randomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%06d", n.Int64())
}
