package level

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/config"
	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/eventstore"
	"loyalty-engine/pkg/repository"
	"loyalty-engine/services/account"
	"loyalty-engine/services/customer"
	"loyalty-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func seedLevels(t *testing.T, s *Service) (bronze, silver, gold uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	bronze, silver, gold = uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, s.Create(ctx, &Level{ID: bronze, Name: "Bronze", MinPoints: 0, Active: true}))
	require.NoError(t, s.Create(ctx, &Level{ID: silver, Name: "Silver", MinPoints: 100, RewardMultiplier: 1.5, Active: true}))
	require.NoError(t, s.Create(ctx, &Level{ID: gold, Name: "Gold", MinPoints: 500, RewardMultiplier: 2, Active: true}))
	require.NoError(t, s.Create(ctx, &Level{ID: uuid.New(), Name: "Retired", MinPoints: 50, Active: false}))
	return bronze, silver, gold
}

func TestPickForPoints(t *testing.T) {
	db := testutil.NewTestDB(t, &Level{})
	s := NewService(Params{Levels: repository.ProvideStore[Level](db)})
	bronze, silver, gold := seedLevels(t, s)
	ctx := context.Background()

	cases := []struct {
		earned int64
		want   uuid.UUID
	}{
		{0, bronze},
		{99, bronze},
		{100, silver},
		{499, silver},
		{500, gold},
		{100000, gold},
	}
	for _, tc := range cases {
		lvl, err := s.PickForPoints(ctx, tc.earned)
		require.NoError(t, err)
		require.NotNil(t, lvl)
		require.Equal(t, tc.want, lvl.ID, "earned=%d", tc.earned)
	}
}

func TestCreateValidation(t *testing.T) {
	db := testutil.NewTestDB(t, &Level{})
	s := NewService(Params{Levels: repository.ProvideStore[Level](db)})

	err := s.Create(context.Background(), &Level{ID: uuid.New(), MinPoints: 10})
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestReactorMovesCustomerOnEarnedPoints(t *testing.T) {
	db := testutil.NewTestDB(t, &eventstore.EventRow{}, &Level{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	store := eventstore.NewGormStore(db, node, time.Now)

	bus := commandbus.New(commandbus.Params{Logger: zap.NewNop()})
	events := eventbus.New(eventbus.Params{Logger: zap.NewNop()})

	cfg := &config.Config{}
	cfg.Loyalty = config.Loyalty{AllTimeActive: true}
	account.NewHandler(account.HandlerParams{
		Store: store, Events: events, Config: cfg, Logger: zap.NewNop(),
	}).Register(bus)
	customerHandler := customer.NewHandler(customer.HandlerParams{
		Store: store, Events: events, Logger: zap.NewNop(),
	})
	customerHandler.Register(bus)

	s := NewService(Params{Levels: repository.ProvideStore[Level](db)})
	_, silver, _ := seedLevels(t, s)

	reactor := NewReactor(ReactorParams{Service: s, Bus: bus, Logger: zap.NewNop()})
	reactor.Subscribe(events)

	ctx := context.Background()
	customerID := uuid.New()
	require.NoError(t, bus.Dispatch(ctx, customer.RegisterCustomer{
		CustomerID: customerID,
		Email:      "jane@example.com",
	}))

	// Registration created the account; find it on the stream.
	var accountID uuid.UUID
	require.NoError(t, store.LoadAll(ctx, func(se eventstore.StoredEvent) error {
		if created, ok := se.Event.(*account.AccountCreated); ok {
			accountID = created.AccountID
		}
		return nil
	}))
	require.NotEqual(t, uuid.Nil, accountID)

	require.NoError(t, bus.Dispatch(ctx, account.AddPoints{
		AccountID:  accountID,
		TransferID: uuid.New(),
		Value:      150,
	}))

	cust, err := es.NewRepository(store, customer.New).Load(ctx, customerID)
	require.NoError(t, err)
	require.NotNil(t, cust.LevelID)
	require.Equal(t, silver, *cust.LevelID)
}
