package customer

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
	db         *gorm.DB
	bus        *commandbus.Bus
	events     *eventbus.Bus
	store      *eventstore.GormStore
	handler    *Handler
	repo       *es.Repository[*Customer]
	activation *ActivationService
	manager    *projection.Manager
	clock      *time.Time
	seen       *[]eventbus.SystemEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&eventstore.EventRow{},
		&CustomerDetails{},
		&ActivationCode{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clock := base
	store := eventstore.NewGormStore(db, node, func() time.Time { return clock })
	bus := commandbus.New(commandbus.Params{Logger: zap.NewNop()})
	events := eventbus.New(eventbus.Params{Logger: zap.NewNop()})

	cfg := &config.Config{}
	cfg.Loyalty = config.Loyalty{AllTimeActive: true}
	accountHandler := account.NewHandler(account.HandlerParams{
		Store:  store,
		Events: events,
		Config: cfg,
		Logger: zap.NewNop(),
	})
	accountHandler.Register(bus)

	h := NewHandler(HandlerParams{Store: store, Events: events, Logger: zap.NewNop()})
	h.now = func() time.Time { return clock }
	h.Register(bus)

	activation := NewActivationService(ActivationParams{
		Codes:  repository.ProvideStore[ActivationCode](db),
		Bus:    bus,
		Node:   node,
		Logger: zap.NewNop(),
	})
	activation.now = func() time.Time { return clock }

	projector := NewProjector(ProjectorParams{DB: db, Store: store})
	manager := projection.NewManager(projection.Params{Store: store, Logger: zap.NewNop()})
	manager.Register(projector)

	seen := []eventbus.SystemEvent{}
	f := &fixture{
		db:         db,
		bus:        bus,
		events:     events,
		store:      store,
		handler:    h,
		repo:       es.NewRepository(store, New),
		activation: activation,
		manager:    manager,
		clock:      &clock,
		seen:       &seen,
	}
	events.SubscribeAll(func(_ context.Context, ev eventbus.SystemEvent) {
		*f.seen = append(*f.seen, ev)
	})
	return f
}

func (f *fixture) systemEvents(name string) []eventbus.SystemEvent {
	var out []eventbus.SystemEvent
	for _, ev := range *f.seen {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func registerCmd(id uuid.UUID) RegisterCustomer {
	return RegisterCustomer{
		CustomerID: id,
		Email:      "jane@example.com",
		Phone:      "+48100200300",
		FirstName:  "Jane",
		LastName:   "Doe",
	}
}

func TestRecordLoginPublishesSystemEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, f.bus.Dispatch(ctx, registerCmd(id)))

	f.handler.RecordLogin(ctx, id)

	logins := f.systemEvents(SystemCustomerLoggedIn)
	require.Len(t, logins, 1)
	require.Equal(t, id.String(), logins[0].Payload["customerId"])
}

func TestRegisterCustomerCreatesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, registerCmd(id)))

	cust, err := f.repo.Load(ctx, id)
	require.NoError(t, err)
	require.True(t, cust.Exists())
	require.Equal(t, StatusNew, cust.Status)

	require.Len(t, f.systemEvents(SystemCustomerRegistered), 1)
	created := f.systemEvents(account.SystemAccountCreated)
	require.Len(t, created, 1)
	require.Equal(t, id.String(), created[0].Payload["customerId"])
}

func TestRegisterRejectsMalformedEmail(t *testing.T) {
	f := newFixture(t)

	cmd := registerCmd(uuid.New())
	cmd.Email = "not-an-email"
	err := f.bus.Dispatch(context.Background(), cmd)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestActivateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, registerCmd(id)))
	require.NoError(t, f.bus.Dispatch(ctx, ActivateCustomer{CustomerID: id}))
	require.NoError(t, f.bus.Dispatch(ctx, ActivateCustomer{CustomerID: id}))

	stream, err := f.store.LoadStream(ctx, id)
	require.NoError(t, err)
	require.Len(t, stream, 2)

	cust, err := f.repo.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusActive, cust.Status)
}

func TestReferralRecordedOnReferrerStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	referrerID := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, registerCmd(referrerID)))

	invited := registerCmd(uuid.New())
	invited.Email = "invited@example.com"
	invited.ReferrerID = &referrerID
	require.NoError(t, f.bus.Dispatch(ctx, invited))

	referrer, err := f.repo.Load(ctx, referrerID)
	require.NoError(t, err)
	require.Equal(t, 1, referrer.ReferralCount())

	referred := f.systemEvents(SystemCustomerReferred)
	require.Len(t, referred, 1)
	require.Equal(t, invited.CustomerID.String(), referred[0].Payload["referredCustomerId"])

	// Same invitation again leaves the stream untouched.
	require.NoError(t, f.bus.Dispatch(ctx, RecordReferral{
		CustomerID:         referrerID,
		ReferredCustomerID: invited.CustomerID,
	}))
	referrer, err = f.repo.Load(ctx, referrerID)
	require.NoError(t, err)
	require.Equal(t, 1, referrer.ReferralCount())
}

func TestSelfReferralRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, registerCmd(id)))
	err := f.bus.Dispatch(ctx, RecordReferral{CustomerID: id, ReferredCustomerID: id})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
}

func TestActivationCodeFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, registerCmd(id)))

	code, err := f.activation.Issue(ctx, id)
	require.NoError(t, err)
	require.Len(t, code.Code, 6)

	err = f.activation.Verify(ctx, id, "000000x")
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))

	require.NoError(t, f.activation.Verify(ctx, id, code.Code))

	cust, err := f.repo.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusActive, cust.Status)

	err = f.activation.Verify(ctx, id, code.Code)
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))
}

func TestActivationCodeExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, registerCmd(id)))
	code, err := f.activation.Issue(ctx, id)
	require.NoError(t, err)

	*f.clock = base.Add(25 * time.Hour)
	err = f.activation.Verify(ctx, id, code.Code)
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
}

func TestProjectorMaintainsCustomerDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()
	levelID := uuid.New()

	require.NoError(t, f.bus.Dispatch(ctx, registerCmd(id)))
	require.NoError(t, f.bus.Dispatch(ctx, ActivateCustomer{CustomerID: id}))
	require.NoError(t, f.bus.Dispatch(ctx, MoveToLevel{CustomerID: id, LevelID: levelID}))

	var row CustomerDetails
	require.NoError(t, f.db.Where("customer_id = ?", id).First(&row).Error)
	require.Equal(t, "jane@example.com", row.Email)
	require.Equal(t, StatusActive, row.Status)
	require.NotNil(t, row.LevelID)
	require.Equal(t, levelID, *row.LevelID)

	require.NoError(t, f.db.Model(&CustomerDetails{}).
		Where("customer_id = ?", id).
		Update("status", "corrupted").Error)
	require.NoError(t, f.manager.RebuildAll(ctx))

	require.NoError(t, f.db.Where("customer_id = ?", id).First(&row).Error)
	require.Equal(t, StatusActive, row.Status)
}
