package customer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"loyalty-engine/pkg/commandbus"
	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/es"
	"loyalty-engine/pkg/eventbus"
	"loyalty-engine/pkg/eventstore"
	"loyalty-engine/services/account"
)

const (
	SystemCustomerRegistered   = "customer.registered"
	SystemCustomerReferred     = "customer.referred"
	SystemCustomerLoggedIn     = "customer.logged_in"
	SystemCustomerLevelChanged = "customer.level_changed"
)

type Handler struct {
	repo   *es.Repository[*Customer]
	bus    *commandbus.Bus
	events *eventbus.Bus
	logger *zap.Logger
	now    func() time.Time
}

type HandlerParams struct {
	fx.In

	Store  eventstore.Store
	Events *eventbus.Bus
	Logger *zap.Logger
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		repo:   es.NewRepository(p.Store, New),
		events: p.Events,
		logger: p.Logger,
		now:    time.Now,
	}
}

func (h *Handler) Register(bus *commandbus.Bus) {
	h.bus = bus
	bus.Register(CommandRegisterCustomer, h.registerCustomer)
	bus.Register(CommandActivateCustomer, h.activateCustomer)
	bus.Register(CommandDeactivateCustomer, h.deactivateCustomer)
	bus.Register(CommandMoveToLevel, h.moveToLevel)
	bus.Register(CommandRecordReferral, h.recordReferral)
}

// RecordLogin publishes the login fact for rule evaluation. Logins are not
// part of the customer's event stream.
func (h *Handler) RecordLogin(ctx context.Context, customerID uuid.UUID) {
	h.events.Publish(ctx, eventbus.SystemEvent{
		Name:    SystemCustomerLoggedIn,
		Payload: map[string]any{"customerId": customerID.String()},
	})
}

func (h *Handler) registerCustomer(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(RegisterCustomer)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}

	cust, err := h.repo.Load(ctx, c.CustomerID)
	if err != nil {
		return err
	}
	err = cust.RegisterCustomer(CustomerRegistered{
		Email:        c.Email,
		Phone:        c.Phone,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		ReferrerID:   c.ReferrerID,
		RegisteredAt: h.now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := h.repo.Save(ctx, cust); err != nil {
		return err
	}

	// Every customer gets a points account alongside registration.
	if err := h.bus.Dispatch(ctx, account.CreateAccount{
		AccountID:  uuid.New(),
		CustomerID: c.CustomerID,
	}); err != nil {
		h.logger.Error("account creation after registration failed",
			zap.String("customer_id", c.CustomerID.String()),
			zap.Error(err),
		)
	}

	h.events.Publish(ctx, eventbus.SystemEvent{
		Name: SystemCustomerRegistered,
		Payload: map[string]any{
			"customerId": c.CustomerID.String(),
			"email":      c.Email,
		},
	})

	if c.ReferrerID != nil {
		if err := h.bus.Dispatch(ctx, RecordReferral{
			CustomerID:         *c.ReferrerID,
			ReferredCustomerID: c.CustomerID,
		}); err != nil {
			h.logger.Warn("referral recording failed",
				zap.String("referrer_id", c.ReferrerID.String()),
				zap.String("customer_id", c.CustomerID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (h *Handler) activateCustomer(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(ActivateCustomer)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}
	return h.mutate(ctx, c.CustomerID, nil, func(cust *Customer) error {
		return cust.Activate(h.now())
	})
}

func (h *Handler) deactivateCustomer(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(DeactivateCustomer)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}
	return h.mutate(ctx, c.CustomerID, nil, func(cust *Customer) error {
		return cust.Deactivate(h.now())
	})
}

func (h *Handler) moveToLevel(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(MoveToLevel)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}
	after := func(cust *Customer) {
		h.events.Publish(ctx, eventbus.SystemEvent{
			Name: SystemCustomerLevelChanged,
			Payload: map[string]any{
				"customerId": cust.AggregateID().String(),
				"levelId":    c.LevelID.String(),
			},
		})
	}
	return h.mutate(ctx, c.CustomerID, after, func(cust *Customer) error {
		return cust.MoveToLevel(c.LevelID, h.now())
	})
}

func (h *Handler) recordReferral(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(RecordReferral)
	if !ok {
		return errutil.Internal(fmt.Sprintf("unexpected command %T", cmd))
	}
	after := func(cust *Customer) {
		h.events.Publish(ctx, eventbus.SystemEvent{
			Name: SystemCustomerReferred,
			Payload: map[string]any{
				"customerId":         cust.AggregateID().String(),
				"referredCustomerId": c.ReferredCustomerID.String(),
			},
		})
	}
	return h.mutate(ctx, c.CustomerID, after, func(cust *Customer) error {
		return cust.RecordReferral(c.ReferredCustomerID, h.now())
	})
}

// mutate saves only when the behavior recorded something; after runs once the
// new events are committed.
func (h *Handler) mutate(ctx context.Context, id uuid.UUID, after func(*Customer), fn func(*Customer) error) error {
	cust, err := h.repo.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(cust); err != nil {
		return err
	}
	if len(cust.Pending()) == 0 {
		return nil
	}
	if err := h.repo.Save(ctx, cust); err != nil {
		return err
	}
	if after != nil {
		after(cust)
	}
	return nil
}
