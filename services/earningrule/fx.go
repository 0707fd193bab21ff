package earningrule

import (
	"go.uber.org/fx"

	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/repository"
)

var Module = fx.Module("earningrule",
	fx.Provide(
		NewEngine,
		NewReactor,
		repository.ProvideStore[Rule],
		repository.ProvideStore[RuleUsage],
	),
	fx.Invoke(subscribe),
)

func subscribe(r *Reactor, events *eventbus.Bus) {
	r.Subscribe(events)
}
