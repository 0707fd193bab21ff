package webhook

import (
	"context"

	"go.uber.org/fx"

	"loyalty-engine/pkg/eventbus"
)

var Module = fx.Module("webhook",
	fx.Provide(NewDispatcher),
	fx.Invoke(subscribe),
)

func subscribe(lc fx.Lifecycle, d *Dispatcher, events *eventbus.Bus) {
	d.Subscribe(events)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			d.Flush()
			return nil
		},
	})
}
