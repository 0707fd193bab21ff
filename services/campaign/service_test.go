package campaign

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
	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/eventstore"
	"loyalty-engine/pkg/projection"
	"loyalty-engine/pkg/repository"
	"loyalty-engine/services/account"
	"loyalty-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db        *gorm.DB
	bus       *commandbus.Bus
	store     *eventstore.GormStore
	campaigns repository.Repository[Campaign]
	accounts  *es.Repository[*account.Account]
	purchases *es.Repository[*Purchase]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&eventstore.EventRow{},
		&account.AccountDetails{},
		&account.PointsTransferDetails{},
		&Campaign{},
		&CampaignBought{},
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

	manager := projection.NewManager(projection.Params{Store: store, Logger: zap.NewNop()})
	manager.Register(account.NewProjector(account.ProjectorParams{
		DB: db, Store: store, Logger: zap.NewNop(),
	}))
	manager.Register(NewProjector(ProjectorParams{DB: db, Store: store}))

	campaigns := repository.ProvideStore[Campaign](db)
	h := NewHandler(HandlerParams{
		Store:     store,
		Campaigns: campaigns,
		Bought:    repository.ProvideStore[CampaignBought](db),
		Accounts:  repository.ProvideStore[account.AccountDetails](db),
		Events:    events,
		Logger:    zap.NewNop(),
	})
	h.now = func() time.Time { return base }
	h.Register(bus)

	return &fixture{
		db:        db,
		bus:       bus,
		store:     store,
		campaigns: campaigns,
		accounts:  es.NewRepository(store, account.New),
		purchases: es.NewRepository(store, New),
	}
}

func (f *fixture) fundedAccount(t *testing.T, points int64) (accountID, customerID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	accountID, customerID = uuid.New(), uuid.New()
	require.NoError(t, f.bus.Dispatch(ctx, account.CreateAccount{AccountID: accountID, CustomerID: customerID}))
	if points > 0 {
		require.NoError(t, f.bus.Dispatch(ctx, account.AddPoints{
			AccountID:  accountID,
			TransferID: uuid.New(),
			Value:      points,
		}))
	}
	return accountID, customerID
}

func (f *fixture) seedCampaign(t *testing.T, camp Campaign) uuid.UUID {
	t.Helper()
	if camp.ID == uuid.Nil {
		camp.ID = uuid.New()
	}
	if camp.Name == "" {
		camp.Name = "Free Coffee"
	}
	camp.Active = true
	require.NoError(t, f.campaigns.Create(context.Background(), &camp))
	return camp.ID
}

func (f *fixture) balance(t *testing.T, accountID uuid.UUID) int64 {
	t.Helper()
	acc, err := f.accounts.Load(context.Background(), accountID)
	require.NoError(t, err)
	return acc.AvailableAmount()
}

func TestBuyCampaignSpendsPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID, customerID := f.fundedAccount(t, 100)
	campaignID := f.seedCampaign(t, Campaign{CostInPoints: 30})

	purchaseID := uuid.New()
	require.NoError(t, f.bus.Dispatch(ctx, BuyCampaign{
		PurchaseID: purchaseID,
		CampaignID: campaignID,
		CustomerID: customerID,
	}))

	require.EqualValues(t, 70, f.balance(t, accountID))

	purchase, err := f.purchases.Load(ctx, purchaseID)
	require.NoError(t, err)
	require.Equal(t, PurchaseStatusActive, purchase.Status)
	require.Len(t, purchase.CouponCode, 12)

	var row CampaignBought
	require.NoError(t, f.db.Where("purchase_id = ?", purchaseID).First(&row).Error)
	require.Equal(t, PurchaseStatusActive, row.Status)
	require.EqualValues(t, 30, row.CostInPoints)
}

func TestBuyCampaignInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID, customerID := f.fundedAccount(t, 10)
	campaignID := f.seedCampaign(t, Campaign{CostInPoints: 30})

	err := f.bus.Dispatch(ctx, BuyCampaign{
		PurchaseID: uuid.New(),
		CampaignID: campaignID,
		CustomerID: customerID,
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
	require.EqualValues(t, 10, f.balance(t, accountID))
}

func TestBuyCampaignHonorsLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, customerID := f.fundedAccount(t, 1000)
	campaignID := f.seedCampaign(t, Campaign{CostInPoints: 10, LimitPerCustomer: 1})

	require.NoError(t, f.bus.Dispatch(ctx, BuyCampaign{
		PurchaseID: uuid.New(), CampaignID: campaignID, CustomerID: customerID,
	}))
	err := f.bus.Dispatch(ctx, BuyCampaign{
		PurchaseID: uuid.New(), CampaignID: campaignID, CustomerID: customerID,
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))

	soldOut := f.seedCampaign(t, Campaign{Name: "Limited", CostInPoints: 10, TotalLimit: 1})
	require.NoError(t, f.bus.Dispatch(ctx, BuyCampaign{
		PurchaseID: uuid.New(), CampaignID: soldOut, CustomerID: customerID,
	}))

	_, other := f.fundedAccount(t, 100)
	err = f.bus.Dispatch(ctx, BuyCampaign{
		PurchaseID: uuid.New(), CampaignID: soldOut, CustomerID: other,
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
}

func TestBuyCampaignOutOfWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, customerID := f.fundedAccount(t, 100)
	past := base.Add(-time.Hour)
	campaignID := f.seedCampaign(t, Campaign{CostInPoints: 10, EndAt: &past})

	err := f.bus.Dispatch(ctx, BuyCampaign{
		PurchaseID: uuid.New(), CampaignID: campaignID, CustomerID: customerID,
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
}

func TestTwoPhasePurchaseConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID, customerID := f.fundedAccount(t, 100)
	campaignID := f.seedCampaign(t, Campaign{CostInPoints: 40, RequiresConfirmation: true})

	purchaseID := uuid.New()
	require.NoError(t, f.bus.Dispatch(ctx, BuyCampaign{
		PurchaseID: purchaseID, CampaignID: campaignID, CustomerID: customerID,
	}))

	// The spend is reserved immediately.
	require.EqualValues(t, 60, f.balance(t, accountID))
	purchase, err := f.purchases.Load(ctx, purchaseID)
	require.NoError(t, err)
	require.Equal(t, PurchaseStatusPending, purchase.Status)

	require.NoError(t, f.bus.Dispatch(ctx, ConfirmCampaignPurchase{PurchaseID: purchaseID}))
	require.EqualValues(t, 60, f.balance(t, accountID))

	purchase, err = f.purchases.Load(ctx, purchaseID)
	require.NoError(t, err)
	require.Equal(t, PurchaseStatusActive, purchase.Status)

	// Confirming again conflicts.
	err = f.bus.Dispatch(ctx, ConfirmCampaignPurchase{PurchaseID: purchaseID})
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))
}

func TestTwoPhasePurchaseRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID, customerID := f.fundedAccount(t, 100)
	campaignID := f.seedCampaign(t, Campaign{CostInPoints: 40, RequiresConfirmation: true})

	purchaseID := uuid.New()
	require.NoError(t, f.bus.Dispatch(ctx, BuyCampaign{
		PurchaseID: purchaseID, CampaignID: campaignID, CustomerID: customerID,
	}))
	require.EqualValues(t, 60, f.balance(t, accountID))

	require.NoError(t, f.bus.Dispatch(ctx, ReleaseCampaignPurchase{PurchaseID: purchaseID}))
	require.EqualValues(t, 100, f.balance(t, accountID))

	purchase, err := f.purchases.Load(ctx, purchaseID)
	require.NoError(t, err)
	require.Equal(t, PurchaseStatusReleased, purchase.Status)
}

func TestCouponUsageChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, customerID := f.fundedAccount(t, 100)
	campaignID := f.seedCampaign(t, Campaign{CostInPoints: 10})

	purchaseID := uuid.New()
	require.NoError(t, f.bus.Dispatch(ctx, BuyCampaign{
		PurchaseID: purchaseID, CampaignID: campaignID, CustomerID: customerID,
	}))

	require.NoError(t, f.bus.Dispatch(ctx, ChangeCouponUsage{PurchaseID: purchaseID, Used: true}))
	purchase, err := f.purchases.Load(ctx, purchaseID)
	require.NoError(t, err)
	require.True(t, purchase.Used)
	events := purchase.Playhead()

	// Marking it used again changes nothing and records nothing.
	require.NoError(t, f.bus.Dispatch(ctx, ChangeCouponUsage{PurchaseID: purchaseID, Used: true}))
	purchase, err = f.purchases.Load(ctx, purchaseID)
	require.NoError(t, err)
	require.Equal(t, events, purchase.Playhead())

	var row CampaignBought
	require.NoError(t, f.db.Where("purchase_id = ?", purchaseID).First(&row).Error)
	require.True(t, row.Used)
}
