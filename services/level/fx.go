package level

import (
	"go.uber.org/fx"

	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/repository"
)

var Module = fx.Module("level",
	fx.Provide(
		NewService,
		NewReactor,
		repository.ProvideStore[Level],
	),
	fx.Invoke(subscribe),
)

func subscribe(r *Reactor, events *eventbus.Bus) {
	r.Subscribe(events)
}
