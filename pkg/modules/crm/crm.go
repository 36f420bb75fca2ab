// Package crm implements customer profile and interaction commands.
package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/modules/sandbox"
	"github.com/quantumnode/gateway/pkg/storage"
)

// Command names a CRM module command.
type Command string

const (
	AttachCustomerProfile       Command = "attachCustomerProfile"
	UpdateCustomerProfile       Command = "updateCustomerProfile"
	AddTagToCustomer            Command = "addTagToCustomer"
	LogInteraction              Command = "logInteraction"
	GetCustomerOverview         Command = "getCustomerOverview"
	ListInteractionsForCustomer Command = "listInteractionsForCustomer"
)

// Commands in catalog order.
var Commands = []Command{
	AttachCustomerProfile,
	UpdateCustomerProfile,
	AddTagToCustomer,
	LogInteraction,
	GetCustomerOverview,
	ListInteractionsForCustomer,
}

const (
	defaultInteractionLimit = 5
	maxInteractionLimit     = 50
	overviewInteractions    = 5
)

// Module implements command.Module for the CRM.
type Module struct {
	store *storage.Store
	now   func() time.Time
}

// Option configures a Module.
type Option func(*Module)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Module) { m.now = now }
}

// New creates the CRM module over store.
func New(store *storage.Store, opts ...Option) *Module {
	m := &Module{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements command.Module.
func (m *Module) Name() string { return "crm" }

// Commands implements command.Module.
func (m *Module) Commands() []string {
	out := make([]string, len(Commands))
	for i, c := range Commands {
		out[i] = string(c)
	}
	return out
}

// Execute implements command.Module.
func (m *Module) Execute(ctx context.Context, cmd string, p command.Payload) (command.Result, error) {
	switch Command(cmd) {
	case AttachCustomerProfile:
		return m.attachCustomerProfile(ctx, p)
	case UpdateCustomerProfile:
		return m.updateCustomerProfile(ctx, p)
	case AddTagToCustomer:
		return m.addTagToCustomer(ctx, p)
	case LogInteraction:
		return m.logInteraction(ctx, p)
	case GetCustomerOverview:
		return m.getCustomerOverview(ctx, p)
	case ListInteractionsForCustomer:
		return m.listInteractionsForCustomer(ctx, p)
	default:
		return command.Result{}, fmt.Errorf("%w: crm.%s", domain.ErrUnknownCommand, cmd)
	}
}

// Sandbox implements command.Sandboxer.
func (m *Module) Sandbox(ctx context.Context) (command.Module, error) {
	store, err := sandbox.NewStore(ctx, m.now())
	if err != nil {
		return nil, err
	}
	return New(store, WithClock(m.now)), nil
}

// Fixtures implements command.Module.
func (m *Module) Fixtures() []command.Fixture {
	return []command.Fixture{
		{Name: string(AttachCustomerProfile), Payload: command.Payload{
			"customerId": sandbox.CustomerID,
			"email":      "test@example.com",
			"name":       "Test User",
			"phone":      "0300-0000000",
			"company":    "Quantum Node",
		}},
		{Name: string(UpdateCustomerProfile), Payload: command.Payload{
			"customerId": sandbox.CustomerID,
			"phone":      "0300-1111111",
		}},
		{Name: string(AddTagToCustomer), Payload: command.Payload{"customerId": sandbox.CustomerID, "tag": "vip"}},
		{Name: string(LogInteraction), Payload: command.Payload{
			"customerId": sandbox.CustomerID,
			"channel":    "email",
			"subject":    "Welcome",
			"message":    "Welcome to Quantum Node!",
			"agent":      "system",
			"direction":  "outbound",
		}},
		{Name: string(GetCustomerOverview), Payload: command.Payload{"customerId": sandbox.CustomerID}},
		{Name: string(ListInteractionsForCustomer), Payload: command.Payload{"customerId": sandbox.CustomerID, "limit": 3}},
	}
}
