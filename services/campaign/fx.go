package campaign

import (
	"go.uber.org/fx"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/projection"
	"loyalty-engine/pkg/repository"
	"loyalty-engine/services/account"
)

var Module = fx.Module("campaign",
	fx.Provide(
		NewHandler,
		NewProjector,
		repository.ProvideStore[Campaign],
		repository.ProvideStore[CampaignBought],
		repository.ProvideStore[account.AccountDetails],
	),
	fx.Invoke(register),
)

func register(h *Handler, bus *commandbus.Bus, manager *projection.Manager, p *Projector) {
	h.Register(bus)
	manager.Register(p)
}
