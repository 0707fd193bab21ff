package earningrule

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/config"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/eventstore"
	"loyalty-engine/pkg/projection"
	"loyalty-engine/pkg/repository"
	"loyalty-engine/services/account"
	"loyalty-engine/services/customer"
	"loyalty-engine/services/level"
	"loyalty-engine/services/testutil"
	"loyalty-engine/services/transaction"
)

type reactorFixture struct {
	db       *gorm.DB
	bus      *commandbus.Bus
	events   *eventbus.Bus
	store    *eventstore.GormStore
	engine   *Engine
	accounts *es.Repository[*account.Account]
}

func newReactorFixture(t *testing.T) *reactorFixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&eventstore.EventRow{},
		&account.AccountDetails{},
		&account.PointsTransferDetails{},
		&transaction.TransactionDetails{},
		&customer.CustomerDetails{},
		&level.Level{},
		&Rule{},
		&RuleUsage{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	store := eventstore.NewGormStore(db, node, func() time.Time { return base })
	bus := commandbus.New(commandbus.Params{Logger: zap.NewNop()})
	events := eventbus.New(eventbus.Params{Logger: zap.NewNop()})

	cfg := &config.Config{}
	cfg.Loyalty = config.Loyalty{AllTimeActive: true}
	account.NewHandler(account.HandlerParams{
		Store: store, Events: events, Config: cfg, Logger: zap.NewNop(),
	}).Register(bus)
	transaction.NewHandler(transaction.HandlerParams{
		Store: store, Events: events, Logger: zap.NewNop(),
	}).Register(bus)

	manager := projection.NewManager(projection.Params{Store: store, Logger: zap.NewNop()})
	manager.Register(account.NewProjector(account.ProjectorParams{
		DB: db, Store: store, Logger: zap.NewNop(),
	}))
	manager.Register(transaction.NewProjector(transaction.ProjectorParams{
		DB: db, Store: store, Logger: zap.NewNop(),
	}))

	engine, err := NewEngine(EngineParams{
		Rules:  repository.ProvideStore[Rule](db),
		Usages: repository.ProvideStore[RuleUsage](db),
		Node:   node,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	engine.now = func() time.Time { return base }
	engine.cache.now = engine.now

	reactor := NewReactor(ReactorParams{
		Engine: engine, Bus: bus, DB: db, Store: store, Logger: zap.NewNop(),
	})
	reactor.Subscribe(events)

	return &reactorFixture{
		db:       db,
		bus:      bus,
		events:   events,
		store:    store,
		engine:   engine,
		accounts: es.NewRepository(store, account.New),
	}
}

func (f *reactorFixture) createAccount(t *testing.T) (accountID, customerID uuid.UUID) {
	t.Helper()
	accountID, customerID = uuid.New(), uuid.New()
	require.NoError(t, f.bus.Dispatch(context.Background(), account.CreateAccount{
		AccountID:  accountID,
		CustomerID: customerID,
	}))
	return accountID, customerID
}

func TestReactorAwardsTransactionPoints(t *testing.T) {
	f := newReactorFixture(t)
	ctx := context.Background()
	accountID, customerID := f.createAccount(t)

	saveRule(t, f.engine, Rule{
		Name:      "1 point per unit",
		EventName: TriggerTransactionRegistered,
		Type:      TypeTransaction,
		Payload:   mustPayload(t, TransactionPayload{PointsRate: 1}),
	})

	transactionID := uuid.New()
	require.NoError(t, f.bus.Dispatch(ctx, transaction.RegisterTransaction{
		TransactionID:  transactionID,
		CustomerID:     customerID,
		DocumentNumber: "INV-9",
		DocumentType:   transaction.DocumentTypeSell,
		PurchasedAt:    base,
		Items:          []transaction.Item{{SKU: "A", Quantity: 3, GrossValue: 45}},
	}))

	acc, err := f.accounts.Load(ctx, accountID)
	require.NoError(t, err)
	require.EqualValues(t, 45, acc.AvailableAmount())

	var row transaction.TransactionDetails
	require.NoError(t, f.db.Where("transaction_id = ?", transactionID).First(&row).Error)
	require.EqualValues(t, 45, row.PointsEarned)
}

func TestReactorAwardsGeoCheckin(t *testing.T) {
	f := newReactorFixture(t)
	ctx := context.Background()
	accountID, customerID := f.createAccount(t)

	saveRule(t, f.engine, Rule{
		Name:      "store visit",
		EventName: TriggerGeoEvent,
		Type:      TypeGeo,
		Payload: mustPayload(t, GeoPayload{
			Latitude:     52.2319,
			Longitude:    21.0067,
			RadiusMeters: 500,
			Points:       15,
		}),
	})

	f.events.Publish(ctx, eventbus.SystemEvent{
		Name: TriggerGeoEvent,
		Payload: map[string]any{
			"customerId": customerID.String(),
			"latitude":   52.2320,
			"longitude":  21.0070,
		},
	})

	acc, err := f.accounts.Load(ctx, accountID)
	require.NoError(t, err)
	require.EqualValues(t, 15, acc.AvailableAmount())
}

func TestReactorAppliesLevelMultiplier(t *testing.T) {
	f := newReactorFixture(t)
	ctx := context.Background()
	accountID, customerID := f.createAccount(t)

	lvl := level.Level{
		ID:               uuid.New(),
		Name:             "gold",
		MinPoints:        1000,
		RewardMultiplier: 2,
		Active:           true,
	}
	require.NoError(t, f.db.Create(&lvl).Error)
	require.NoError(t, f.db.Create(&customer.CustomerDetails{
		CustomerID: customerID,
		Email:      "gold@example.com",
		Status:     "active",
		LevelID:    &lvl.ID,
	}).Error)

	saveRule(t, f.engine, Rule{
		Name:      "1 point per unit",
		EventName: TriggerTransactionRegistered,
		Type:      TypeTransaction,
		Payload:   mustPayload(t, TransactionPayload{PointsRate: 1}),
	})

	require.NoError(t, f.bus.Dispatch(ctx, transaction.RegisterTransaction{
		TransactionID:  uuid.New(),
		CustomerID:     customerID,
		DocumentNumber: "INV-10",
		DocumentType:   transaction.DocumentTypeSell,
		PurchasedAt:    base,
		Items:          []transaction.Item{{SKU: "A", Quantity: 1, GrossValue: 45}},
	}))

	// The 45 base points double for a gold customer.
	acc, err := f.accounts.Load(ctx, accountID)
	require.NoError(t, err)
	require.EqualValues(t, 90, acc.AvailableAmount())
}

func TestReactorSkipsCustomerWithoutAccount(t *testing.T) {
	f := newReactorFixture(t)
	ctx := context.Background()

	saveRule(t, f.engine, Rule{
		Name:      "poster scan",
		EventName: TriggerQRCodeEvent,
		Type:      TypeQRCode,
		Payload:   mustPayload(t, QRCodePayload{Code: "C1", Points: 5}),
	})

	// No account exists for this customer; the publish must not fail.
	f.events.Publish(ctx, eventbus.SystemEvent{
		Name: TriggerQRCodeEvent,
		Payload: map[string]any{
			"customerId": uuid.New().String(),
			"code":       "C1",
		},
	})
}
