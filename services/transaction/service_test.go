package transaction

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
	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/eventstore"
	"loyalty-engine/pkg/projection"
	"loyalty-engine/services/account"
	"loyalty-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	bus     *commandbus.Bus
	store   *eventstore.GormStore
	repo    *es.Repository[*Transaction]
	manager *projection.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &eventstore.EventRow{}, &TransactionDetails{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	store := eventstore.NewGormStore(db, node, func() time.Time { return base })
	bus := commandbus.New(commandbus.Params{Logger: zap.NewNop()})
	events := eventbus.New(eventbus.Params{Logger: zap.NewNop()})

	h := NewHandler(HandlerParams{Store: store, Events: events, Logger: zap.NewNop()})
	h.Register(bus)

	projector := NewProjector(ProjectorParams{DB: db, Store: store, Logger: zap.NewNop()})
	manager := projection.NewManager(projection.Params{Store: store, Logger: zap.NewNop()})
	manager.Register(projector)

	return &fixture{
		db:      db,
		bus:     bus,
		store:   store,
		repo:    es.NewRepository(store, New),
		manager: manager,
	}
}

func sellCommand(transactionID uuid.UUID) RegisterTransaction {
	return RegisterTransaction{
		TransactionID:  transactionID,
		CustomerID:     uuid.New(),
		DocumentNumber: "INV-2024-001",
		DocumentType:   DocumentTypeSell,
		PurchasedAt:    base,
		Items: []Item{
			{SKU: "SKU-1", Name: "Coffee", Quantity: 2, GrossValue: 30, Category: "beverages"},
			{SKU: "SKU-2", Name: "Mug", Quantity: 1, GrossValue: 15, Category: "homeware"},
		},
	}
}

func TestRegisterTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, sellCommand(id)))

	tx, err := f.repo.Load(ctx, id)
	require.NoError(t, err)
	require.True(t, tx.Exists())
	require.Equal(t, "INV-2024-001", tx.DocumentNumber)
	require.InEpsilon(t, 45.0, tx.GrossValue(), 1e-9)
}

func TestRegisterTwiceIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, sellCommand(id)))

	err := f.bus.Dispatch(ctx, sellCommand(id))
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cmd := sellCommand(uuid.New())
	cmd.Items = nil
	err := f.bus.Dispatch(ctx, cmd)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	cmd = sellCommand(uuid.New())
	cmd.DocumentType = "exchange"
	err = f.bus.Dispatch(ctx, cmd)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestAppendLabels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, sellCommand(id)))
	require.NoError(t, f.bus.Dispatch(ctx, AppendLabels{
		TransactionID: id,
		Labels:        []Label{{Key: "channel", Value: "pos"}},
	}))

	tx, err := f.repo.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, tx.Labels, 1)
	require.Equal(t, "channel", tx.Labels[0].Key)

	err = f.bus.Dispatch(ctx, AppendLabels{TransactionID: uuid.New(), Labels: []Label{{Key: "x"}}})
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestProjectorWritesTransactionDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, sellCommand(id)))

	var row TransactionDetails
	require.NoError(t, f.db.Where("transaction_id = ?", id).First(&row).Error)
	require.Equal(t, "INV-2024-001", row.DocumentNumber)
	require.InEpsilon(t, 45.0, row.GrossValue, 1e-9)
	require.EqualValues(t, 0, row.PointsEarned)
}

func TestProjectorBackfillsPointsEarned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	transactionID := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, sellCommand(transactionID)))

	// Simulate the award path writing to the account stream with a link back
	// to the document.
	accountID := uuid.New()
	err := f.store.Append(ctx, accountID, account.AggregateType, 0, []eventstore.Event{
		&account.AccountCreated{AccountID: accountID, CustomerID: uuid.New(), CreatedAt: base},
		&account.PointsAdded{AccountID: accountID, Transfer: account.Transfer{
			ID:            uuid.New(),
			Value:         45,
			CreatedAt:     base,
			TransactionID: &transactionID,
		}},
	})
	require.NoError(t, err)

	var row TransactionDetails
	require.NoError(t, f.db.Where("transaction_id = ?", transactionID).First(&row).Error)
	require.EqualValues(t, 45, row.PointsEarned)
}

func TestProjectorRebuildRestoresPointsEarned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	transactionID := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, sellCommand(transactionID)))

	accountID := uuid.New()
	require.NoError(t, f.store.Append(ctx, accountID, account.AggregateType, 0, []eventstore.Event{
		&account.AccountCreated{AccountID: accountID, CustomerID: uuid.New(), CreatedAt: base},
		&account.PointsAdded{AccountID: accountID, Transfer: account.Transfer{
			ID:            uuid.New(),
			Value:         45,
			CreatedAt:     base,
			TransactionID: &transactionID,
		}},
	}))

	require.NoError(t, f.manager.RebuildAll(ctx))

	var row TransactionDetails
	require.NoError(t, f.db.Where("transaction_id = ?", transactionID).First(&row).Error)
	require.EqualValues(t, 45, row.PointsEarned)
}
