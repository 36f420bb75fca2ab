// Package billing implements customer, plan, service and invoice commands
// over storage.Store.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/modules/sandbox"
	"github.com/quantumnode/gateway/pkg/storage"
)

// Command names a billing module command.
type Command string

const (
	CreateCustomer           Command = "createCustomer"
	GetCustomerByEmail       Command = "getCustomerByEmail"
	AddPlan                  Command = "addPlan"
	GetPlanByCode            Command = "getPlanByCode"
	CreateServiceWithInvoice Command = "createServiceWithInvoice"
	MarkInvoicePaid          Command = "markInvoicePaid"
	ListCustomerServices     Command = "listCustomerServices"
	ListCustomerInvoices     Command = "listCustomerInvoices"
	RecordPayment            Command = "recordPayment"
	FindOverdueInvoices      Command = "findOverdueInvoices"
)

// Commands in catalog order.
var Commands = []Command{
	CreateCustomer,
	GetCustomerByEmail,
	AddPlan,
	GetPlanByCode,
	CreateServiceWithInvoice,
	MarkInvoicePaid,
	ListCustomerServices,
	ListCustomerInvoices,
	RecordPayment,
	FindOverdueInvoices,
}

const (
	day = 24 * time.Hour

	invoiceDueAfter      = 7 * day
	renewalPeriod        = 30 * day
	defaultOverdueDays   = 10
	defaultAmountPKR     = 999
	defaultCountry       = "PK"
	defaultBillingCycle  = "monthly"
	defaultPaymentMethod = "manual"
	statusPending        = "pending_activation"
)

// Module implements command.Module for billing.
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

// New creates the billing module over store.
func New(store *storage.Store, opts ...Option) *Module {
	m := &Module{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements command.Module.
func (m *Module) Name() string { return "billing" }

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
	case CreateCustomer:
		return m.createCustomer(ctx, p)
	case GetCustomerByEmail:
		return m.getCustomerByEmail(ctx, p)
	case AddPlan:
		return m.addPlan(ctx, p)
	case GetPlanByCode:
		return m.getPlanByCode(ctx, p)
	case CreateServiceWithInvoice:
		return m.createServiceWithInvoice(ctx, p)
	case MarkInvoicePaid:
		return m.markInvoicePaid(ctx, p)
	case ListCustomerServices:
		return m.listCustomerServices(ctx, p)
	case ListCustomerInvoices:
		return m.listCustomerInvoices(ctx, p)
	case RecordPayment:
		return m.recordPayment(ctx, p)
	case FindOverdueInvoices:
		return m.findOverdueInvoices(ctx, p)
	default:
		return command.Result{}, fmt.Errorf("%w: billing.%s", domain.ErrUnknownCommand, cmd)
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
		{Name: string(CreateCustomer), Payload: command.Payload{
			"name":    "Test User",
			"email":   "test@example.com",
			"phone":   "0300-0000000",
			"country": "PK",
		}},
		{Name: string(GetCustomerByEmail), Payload: command.Payload{"email": "test@example.com"}},
		{Name: string(AddPlan), Payload: command.Payload{
			"code":       sandbox.PlanCode,
			"name":       "Test Plan",
			"cycle":      "monthly",
			"pricePkr":   999,
			"whmPackage": "quantumn_Starter",
		}},
		{Name: string(GetPlanByCode), Payload: command.Payload{"code": sandbox.PlanCode}},
		{Name: string(CreateServiceWithInvoice), Payload: command.Payload{
			"customerId":   sandbox.CustomerID,
			"planCode":     sandbox.PlanCode,
			"domain":       "test-domain.com",
			"billingCycle": "monthly",
		}},
		{Name: string(MarkInvoicePaid), Payload: command.Payload{"invoiceId": sandbox.InvoiceID}},
		{Name: string(ListCustomerServices), Payload: command.Payload{"customerId": sandbox.CustomerID}},
		{Name: string(ListCustomerInvoices), Payload: command.Payload{"customerId": sandbox.CustomerID}},
		{Name: string(RecordPayment), Payload: command.Payload{
			"invoiceId": sandbox.InvoiceID,
			"amountPkr": 999,
			"method":    "manual",
		}},
		{Name: string(FindOverdueInvoices), Payload: command.Payload{"daysOverdue": 10}},
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
