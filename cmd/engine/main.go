package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/config"
	"loyalty-engine/pkg/db"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/eventstore"
	"loyalty-engine/pkg/gen"
	"loyalty-engine/pkg/logger"
	"loyalty-engine/pkg/projection"
	"loyalty-engine/services/account"
	"loyalty-engine/services/campaign"
	"loyalty-engine/services/customer"
	"loyalty-engine/services/earningrule"
	"loyalty-engine/services/level"
	"loyalty-engine/services/transaction"
	"loyalty-engine/services/webhook"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		eventstore.Module,
		commandbus.Module,
		eventbus.Module,
		projection.Module,

		account.Module,
		transaction.Module,
		customer.Module,
		level.Module,
		earningrule.Module,
		campaign.Module,
		webhook.Module,

		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
