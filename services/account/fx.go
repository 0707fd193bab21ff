package account

import (
	"go.uber.org/fx"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/projection"
)

var Module = fx.Module("account",
	fx.Provide(
		NewHandler,
		NewProjector,
	),
	fx.Invoke(register),
)

func register(h *Handler, bus *commandbus.Bus, manager *projection.Manager, p *Projector) {
	h.Register(bus)
	manager.Register(p)
}
