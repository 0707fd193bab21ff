package customer

import (
	"strings"

	"github.com/google/uuid"

	"loyalty-engine/pkg/errutil"
)

const (
	CommandRegisterCustomer   = "customer.register"
	CommandActivateCustomer   = "customer.activate"
	CommandDeactivateCustomer = "customer.deactivate"
	CommandMoveToLevel        = "customer.move_to_level"
	CommandRecordReferral     = "customer.record_referral"
)

type RegisterCustomer struct {
	CustomerID uuid.UUID
	Email      string
	Phone      string
	FirstName  string
	LastName   string
	ReferrerID *uuid.UUID
}

func (c RegisterCustomer) AggregateID() uuid.UUID { return c.CustomerID }
func (c RegisterCustomer) CommandType() string    { return CommandRegisterCustomer }

func (c RegisterCustomer) Validate() error {
	if c.CustomerID == uuid.Nil {
		return errutil.ValidationFailed("customer id is required")
	}
	if c.Email == "" {
		return errutil.ValidationFailed("email is required")
	}
	if !strings.Contains(c.Email, "@") {
		return errutil.ValidationFailed("email is malformed")
	}
	return nil
}

type ActivateCustomer struct {
	CustomerID uuid.UUID
}

func (c ActivateCustomer) AggregateID() uuid.UUID { return c.CustomerID }
func (c ActivateCustomer) CommandType() string    { return CommandActivateCustomer }

func (c ActivateCustomer) Validate() error {
	return requireCustomerID(c.CustomerID)
}

type DeactivateCustomer struct {
	CustomerID uuid.UUID
}

func (c DeactivateCustomer) AggregateID() uuid.UUID { return c.CustomerID }
func (c DeactivateCustomer) CommandType() string    { return CommandDeactivateCustomer }

func (c DeactivateCustomer) Validate() error {
	return requireCustomerID(c.CustomerID)
}

type MoveToLevel struct {
	CustomerID uuid.UUID
	LevelID    uuid.UUID
}

func (c MoveToLevel) AggregateID() uuid.UUID { return c.CustomerID }
func (c MoveToLevel) CommandType() string    { return CommandMoveToLevel }

func (c MoveToLevel) Validate() error {
	if err := requireCustomerID(c.CustomerID); err != nil {
		return err
	}
	if c.LevelID == uuid.Nil {
		return errutil.ValidationFailed("level id is required")
	}
	return nil
}

type RecordReferral struct {
	CustomerID         uuid.UUID
	ReferredCustomerID uuid.UUID
}

func (c RecordReferral) AggregateID() uuid.UUID { return c.CustomerID }
func (c RecordReferral) CommandType() string    { return CommandRecordReferral }

func (c RecordReferral) Validate() error {
	if err := requireCustomerID(c.CustomerID); err != nil {
		return err
	}
	if c.ReferredCustomerID == uuid.Nil {
		return errutil.ValidationFailed("referred customer id is required")
	}
	return nil
}

func requireCustomerID(id uuid.UUID) error {
	if id == uuid.Nil {
		return errutil.ValidationFailed("customer id is required")
	}
	return nil
}
