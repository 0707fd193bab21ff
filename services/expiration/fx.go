package expiration

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("expiration",
	fx.Provide(
		NewService,
		NewScheduler,
	),
	fx.Invoke(
		registerTasks,
		StartScheduler,
	),
)

type registerParams struct {
	fx.In

	Mux     *asynq.ServeMux `optional:"true"`
	Service *Service
}

func registerTasks(p registerParams) {
	if p.Mux == nil {
		return
	}
	p.Mux.HandleFunc(TaskExpireSweep, p.Service.HandleExpireSweep)
	p.Mux.HandleFunc(TaskExpiryNotify, p.Service.HandleExpiryNotify)
	p.Mux.HandleFunc(TaskRebuild, p.Service.HandleRebuild)
}
