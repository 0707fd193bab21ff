package expiration

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"loyalty-engine/pkg/config"
)

// Scheduler enqueues the daily maintenance jobs at the configured wall clock
// time. It runs as a background goroutine for the lifetime of the worker.
type Scheduler struct {
	service *Service
	hour    int
	minute  int
	logger  *zap.Logger
}

func NewScheduler(svc *Service, cfg *config.Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		service: svc,
		hour:    cfg.Worker.SweepHour,
		minute:  cfg.Worker.SweepMinute,
		logger:  logger,
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	s.logger.Info("points expiry scheduler started",
		zap.Int("hour", s.hour),
		zap.Int("minute", s.minute),
	)

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, s.minute)

		s.logger.Info("next sweep scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", next.Sub(now)),
		)

		select {
		case <-time.After(next.Sub(now)):
			s.runDaily(ctx)
		case <-ctx.Done():
			s.logger.Warn("points expiry scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	if err := s.service.EnqueueDailyJobs(ctx); err != nil {
		s.logger.Error("failed to enqueue daily jobs", zap.Error(err))
		return
	}
	s.logger.Info("daily jobs enqueued", zap.Duration("duration", time.Since(start)))
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
