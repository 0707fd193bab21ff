package expiration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/config"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/projection"
	"loyalty-engine/services/account"
)

const (
	TaskExpireSweep  = "points:expire_sweep"
	TaskExpiryNotify = "points:expiry_notify"
	TaskRebuild      = "readmodel:rebuild"

	// Only one worker may run the sweep at a time.
	sweepLockKey = "loyalty:expiry:sweep:lock"
	sweepLockTTL = 30 * time.Minute

	// Published for every transfer inside the notification window so
	// downstream channels (mail, push) can warn the customer.
	SystemPointsExpiringSoon = "account.points_expiring_soon"
)

// Service runs the maintenance jobs behind the points lifecycle: the daily
// expiry sweep, the pre-expiry notification pass and read model rebuilds.
type Service struct {
	db          *gorm.DB
	bus         *commandbus.Bus
	events      *eventbus.Bus
	projections *projection.Manager
	client      *asynq.Client
	redis       *redis.Client
	loyalty     config.Loyalty
	logger      *zap.Logger
	now         func() time.Time
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Bus         *commandbus.Bus
	Events      *eventbus.Bus
	Projections *projection.Manager
	Client      *asynq.Client `optional:"true"`
	Redis       *redis.Client `optional:"true"`
	Config      *config.Config
	Logger      *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		bus:         p.Bus,
		events:      p.Events,
		projections: p.Projections,
		client:      p.Client,
		redis:       p.Redis,
		loyalty:     p.Config.Loyalty,
		logger:      p.Logger,
		now:         time.Now,
	}
}

// EnqueueDailyJobs pushes the sweep and notification tasks onto the queue.
func (s *Service) EnqueueDailyJobs(ctx context.Context) error {
	for _, taskType := range []string{TaskExpireSweep, TaskExpiryNotify} {
		if _, err := s.client.EnqueueContext(ctx, asynq.NewTask(taskType, nil)); err != nil {
			s.logger.Error("failed to enqueue task",
				zap.String("task_type", taskType),
				zap.Error(err),
			)
			return err
		}
		s.logger.Info("task enqueued", zap.String("task_type", taskType))
	}
	return nil
}

// EnqueueRebuild schedules a full projection rebuild on the worker.
func (s *Service) EnqueueRebuild(ctx context.Context) error {
	_, err := s.client.EnqueueContext(ctx, asynq.NewTask(TaskRebuild, nil), asynq.Queue("low"))
	return err
}

func (s *Service) HandleExpireSweep(ctx context.Context, _ *asynq.Task) error {
	_, err := s.RunExpireSweep(ctx)
	return err
}

func (s *Service) HandleExpiryNotify(ctx context.Context, _ *asynq.Task) error {
	_, err := s.RunExpiryNotify(ctx)
	return err
}

func (s *Service) HandleRebuild(ctx context.Context, _ *asynq.Task) error {
	return s.projections.RebuildAll(ctx)
}

// RunExpireSweep expires every active adding transfer whose deadline has
// passed and returns how many transfers it touched. Each transfer goes through
// the regular command path so the usual replay and projection rules apply.
func (s *Service) RunExpireSweep(ctx context.Context) (int, error) {
	if s.loyalty.AllTimeActive {
		s.logger.Info("points never expire, skipping sweep")
		return 0, nil
	}

	if s.redis != nil {
		acquired, err := s.redis.SetNX(ctx, sweepLockKey, "1", sweepLockTTL).Result()
		if err != nil {
			return 0, err
		}
		if !acquired {
			s.logger.Info("sweep already running elsewhere, skipping")
			return 0, nil
		}
		defer s.redis.Del(context.WithoutCancel(ctx), sweepLockKey)
	}

	now := s.now().UTC()
	expired := 0

	var cursor *transferCursor
	for {
		batch, err := s.dueTransfers(ctx, now, cursor)
		if err != nil {
			return expired, err
		}
		if len(batch) == 0 {
			s.logger.Info("expiry sweep finished", zap.Int("expired", expired))
			return expired, nil
		}

		for _, transfer := range batch {
			err := s.bus.Dispatch(ctx, account.ExpirePointsTransfer{
				AccountID:  transfer.AccountID,
				TransferID: transfer.TransferID,
			})
			if err != nil {
				s.logger.Error("failed to expire transfer",
					zap.String("accountId", transfer.AccountID.String()),
					zap.String("transferId", transfer.TransferID.String()),
					zap.Error(err),
				)
				return expired, err
			}
			expired++
		}

		cursor = lastSeen(batch)

		// A short batch means the last page was reached.
		if len(batch) < s.batchSize() {
			s.logger.Info("expiry sweep finished", zap.Int("expired", expired))
			return expired, nil
		}
	}
}

// RunExpiryNotify publishes a warning event for every active transfer that
// expires within the configured notification window.
func (s *Service) RunExpiryNotify(ctx context.Context) (int, error) {
	if s.loyalty.AllTimeActive {
		return 0, nil
	}

	now := s.now().UTC()
	cutoff := now.AddDate(0, 0, s.loyalty.ExpiryNotifyDays)
	sent := 0

	var cursor *transferCursor
	for {
		var transfers []account.PointsTransferDetails
		query := s.db.WithContext(ctx).
			Where("type = ? AND state = ?", account.TransferTypeAdding, account.TransferStateActive).
			Where("expires_at > ? AND expires_at <= ?", now, cutoff)
		err := afterCursor(query, cursor).
			Order("expires_at asc, transfer_id asc").
			Limit(s.batchSize()).
			Find(&transfers).Error
		if err != nil {
			return sent, err
		}
		if len(transfers) == 0 {
			break
		}

		for _, transfer := range transfers {
			s.events.Publish(ctx, eventbus.SystemEvent{
				Name: SystemPointsExpiringSoon,
				Payload: map[string]any{
					"accountId":  transfer.AccountID.String(),
					"customerId": transfer.CustomerID.String(),
					"transferId": transfer.TransferID.String(),
					"amount":     transfer.Value,
					"expiresAt":  transfer.ExpiresAt.Format(time.RFC3339),
				},
			})
			sent++
		}

		cursor = lastSeen(transfers)
		if len(transfers) < s.batchSize() {
			break
		}
	}

	s.logger.Info("expiry notifications published", zap.Int("count", sent))
	return sent, nil
}

// transferCursor is a keyset position in the (expires_at, transfer_id)
// order shared by the sweep and notify queries. Paging strictly past the
// last row seen keeps both loops moving even when a read model row lags
// behind its aggregate and a dispatch leaves it unchanged.
type transferCursor struct {
	expiresAt  time.Time
	transferID uuid.UUID
}

func lastSeen(batch []account.PointsTransferDetails) *transferCursor {
	last := batch[len(batch)-1]
	return &transferCursor{expiresAt: *last.ExpiresAt, transferID: last.TransferID}
}

func afterCursor(query *gorm.DB, cursor *transferCursor) *gorm.DB {
	if cursor == nil {
		return query
	}
	return query.Where("expires_at > ? OR (expires_at = ? AND transfer_id > ?)",
		cursor.expiresAt, cursor.expiresAt, cursor.transferID)
}

func (s *Service) dueTransfers(ctx context.Context, now time.Time, cursor *transferCursor) ([]account.PointsTransferDetails, error) {
	var transfers []account.PointsTransferDetails
	query := s.db.WithContext(ctx).
		Where("type = ? AND state = ?", account.TransferTypeAdding, account.TransferStateActive).
		Where("expires_at <= ?", now)
	err := afterCursor(query, cursor).
		Order("expires_at asc, transfer_id asc").
		Limit(s.batchSize()).
		Find(&transfers).Error
	return transfers, err
}

func (s *Service) batchSize() int {
	if s.loyalty.ExpiryBatchSize > 0 {
		return s.loyalty.ExpiryBatchSize
	}
	return 1000
}
