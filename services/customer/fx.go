package customer

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/projection"
	"loyalty-engine/pkg/repository"
	"loyalty-engine/services/account"
)

var Module = fx.Module("customer",
	fx.Provide(
		NewHandler,
		NewProjector,
		NewActivationService,
		repository.ProvideStore[ActivationCode],
		provideEmailResolver,
	),
	fx.Invoke(register),
)

func register(h *Handler, bus *commandbus.Bus, manager *projection.Manager, p *Projector) {
	h.Register(bus)
	manager.Register(p)
}

// provideEmailResolver lets the account projector stamp the customer email
// onto its rows without importing this package.
func provideEmailResolver(db *gorm.DB) account.EmailResolver {
	return func(ctx context.Context, customerID uuid.UUID) (string, bool) {
		var row CustomerDetails
		err := db.WithContext(ctx).
			Where("customer_id = ?", customerID).
			First(&row).Error
		if err != nil {
			return "", false
		}
		return row.Email, true
	}
}
