package main

import (
	"context"
	"log"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
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
	"loyalty-engine/services/expiration"
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

		fx.Provide(
			registerRedisClient,
			registerAsynqClient,
			registerAsynqServer,
			registerServeMux,
		),
		expiration.Module,
		fx.Invoke(runServeMux),

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

func registerRedisClient(lc fx.Lifecycle, cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		PoolTimeout: cfg.Redis.PoolTimeout,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return client
}

func registerAsynqClient(lc fx.Lifecycle, cfg *config.Config) *asynq.Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(); err != nil {
		zap.L().Error("failed to connect to the task queue", zap.Error(err))
		os.Exit(1)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return client
}

func registerAsynqServer(cfg *config.Config) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency:    cfg.Worker.Concurrency,
			RetryDelayFunc: asynq.DefaultRetryDelayFunc,
			Queues: map[string]int{
				"critical": 10,
				"default":  5,
				"low":      3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
				zap.L().Error("task permanently failed",
					zap.String("task_type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)
}

func registerServeMux() *asynq.ServeMux {
	return asynq.NewServeMux()
}

func runServeMux(lc fx.Lifecycle, server *asynq.Server, mux *asynq.ServeMux) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := server.Start(mux); err != nil {
					zap.L().Error("failed to start the task server", zap.Error(err))
					os.Exit(1)
				}
			}()
			zap.L().Info("task server started")
			return nil
		},
		OnStop: func(context.Context) error {
			server.Stop()
			return nil
		},
	})
}
