package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/storage"
)

type createCustomerInput struct {
	Name    string `mapstructure:"name"`
	Email   string `mapstructure:"email"`
	Phone   string `mapstructure:"phone"`
	Country string `mapstructure:"country"`
}

func (m *Module) createCustomer(ctx context.Context, p command.Payload) (command.Result, error) {
	var in createCustomerInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode createCustomer: %w", err)
	}
	if res, failed := command.Require().
		Field("name", in.Name != "").
		Field("email", in.Email != "").
		Failed(); failed {
		return res, nil
	}

	customer := domain.Customer{
		ID:        storage.NewID("CUST"),
		Name:      in.Name,
		Email:     in.Email,
		Phone:     optional(in.Phone),
		Country:   orDefault(in.Country, defaultCountry),
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Customers.Put(ctx, customer.ID, customer); err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"customer": customer}), nil
}

type emailInput struct {
	Email string `mapstructure:"email"`
}

// getCustomerByEmail answers ok with a null customer when nobody matches.
func (m *Module) getCustomerByEmail(ctx context.Context, p command.Payload) (command.Result, error) {
	var in emailInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode getCustomerByEmail: %w", err)
	}
	if in.Email == "" {
		return command.MissingField("email"), nil
	}

	customer, err := m.store.Customers.FindOne(ctx, "email", in.Email)
	if errors.Is(err, storage.ErrNotFound) {
		return command.OK(map[string]any{"customer": nil}), nil
	}
	if err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"customer": customer}), nil
}

type addPlanInput struct {
	Code        string   `mapstructure:"code"`
	Name        string   `mapstructure:"name"`
	Cycle       string   `mapstructure:"cycle"`
	PricePKR    float64  `mapstructure:"pricePkr"`
	WHMPackage  string   `mapstructure:"whmPackage"`
	Description string   `mapstructure:"description"`
	Features    []string `mapstructure:"features"`
}

// addPlan creates or replaces the plan stored under its code.
func (m *Module) addPlan(ctx context.Context, p command.Payload) (command.Result, error) {
	var in addPlanInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode addPlan: %w", err)
	}
	if res, failed := command.Require().
		Field("code", in.Code != "").
		Field("name", in.Name != "").
		Field("cycle", in.Cycle != "").
		Field("pricePkr", in.PricePKR != 0).
		Field("whmPackage", in.WHMPackage != "").
		Failed(); failed {
		return res, nil
	}

	plan := domain.Plan{
		ID:          storage.NewID("PLAN"),
		Code:        in.Code,
		Name:        in.Name,
		Cycle:       in.Cycle,
		PricePKR:    in.PricePKR,
		WHMPackage:  in.WHMPackage,
		Description: optional(in.Description),
		Features:    in.Features,
		CreatedAt:   m.now().UTC(),
	}
	if plan.Features == nil {
		plan.Features = []string{}
	}
	if err := m.store.Plans.Put(ctx, plan.Code, plan); err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"plan": plan}), nil
}

type codeInput struct {
	Code string `mapstructure:"code"`
}

func (m *Module) getPlanByCode(ctx context.Context, p command.Payload) (command.Result, error) {
	var in codeInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode getPlanByCode: %w", err)
	}
	if in.Code == "" {
		return command.MissingField("code"), nil
	}

	plan, err := m.store.Plans.Get(ctx, in.Code)
	if errors.Is(err, storage.ErrNotFound) {
		return command.NotFound(map[string]any{"code": in.Code}), nil
	}
	if err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"plan": plan}), nil
}

type createServiceInput struct {
	CustomerID   string `mapstructure:"customerId"`
	PlanCode     string `mapstructure:"planCode"`
	Domain       string `mapstructure:"domain"`
	BillingCycle string `mapstructure:"billingCycle"`
}

// createServiceWithInvoice opens a pending service and its first invoice.
// The invoice amount comes from the plan when the plan is known.
func (m *Module) createServiceWithInvoice(ctx context.Context, p command.Payload) (command.Result, error) {
	var in createServiceInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode createServiceWithInvoice: %w", err)
	}
	if res, failed := command.Require().
		Field("customerId", in.CustomerID != "").
		Field("planCode", in.PlanCode != "").
		Field("domain", in.Domain != "").
		Failed(); failed {
		return res, nil
	}

	amount := float64(defaultAmountPKR)
	plan, err := m.store.Plans.Get(ctx, in.PlanCode)
	switch {
	case err == nil:
		amount = plan.PricePKR
	case !errors.Is(err, storage.ErrNotFound):
		return command.Result{}, err
	}

	service, invoice, err := m.openService(ctx, Order(in), amount)
	if err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"service": service, "invoice": invoice}), nil
}

// Order is a request to open a service for an existing customer on an
// existing plan.
type Order struct {
	CustomerID   string
	PlanCode     string
	Domain       string
	BillingCycle string
}

// MissingRecordError reports an order that references an unknown record.
type MissingRecordError struct {
	Kind string
	ID   string
}

func (e *MissingRecordError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is reports whether target is domain.ErrNotFound.
func (e *MissingRecordError) Is(target error) bool {
	return target == domain.ErrNotFound
}

// PlaceOrder opens a service and its first invoice, priced from the plan.
// Unlike the createServiceWithInvoice command it refuses unknown customers
// and plans with a *MissingRecordError.
func (m *Module) PlaceOrder(ctx context.Context, o Order) (domain.Service, domain.Invoice, error) {
	if _, err := m.store.Customers.Get(ctx, o.CustomerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Service{}, domain.Invoice{}, &MissingRecordError{Kind: "customer", ID: o.CustomerID}
		}
		return domain.Service{}, domain.Invoice{}, err
	}
	plan, err := m.store.Plans.Get(ctx, o.PlanCode)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Service{}, domain.Invoice{}, &MissingRecordError{Kind: "plan", ID: o.PlanCode}
		}
		return domain.Service{}, domain.Invoice{}, err
	}
	if o.BillingCycle == "" {
		o.BillingCycle = plan.Cycle
	}
	return m.openService(ctx, o, plan.PricePKR)
}

func (m *Module) openService(ctx context.Context, o Order, amount float64) (domain.Service, domain.Invoice, error) {
	now := m.now().UTC()
	service := domain.Service{
		ID:              storage.NewID("SRV"),
		CustomerID:      o.CustomerID,
		PlanCode:        o.PlanCode,
		Domain:          o.Domain,
		Status:          statusPending,
		BillingCycle:    orDefault(o.BillingCycle, defaultBillingCycle),
		NextInvoiceDate: now.Add(renewalPeriod),
		CreatedAt:       now,
	}
	invoice := domain.Invoice{
		ID:         storage.NewID("INV"),
		CustomerID: o.CustomerID,
		ServiceID:  service.ID,
		AmountPKR:  amount,
		Status:     domain.InvoiceUnpaid,
		IssuedAt:   now,
		DueAt:      now.Add(invoiceDueAfter),
	}
	if err := m.store.Services.Put(ctx, service.ID, service); err != nil {
		return domain.Service{}, domain.Invoice{}, err
	}
	if err := m.store.Invoices.Put(ctx, invoice.ID, invoice); err != nil {
		return domain.Service{}, domain.Invoice{}, err
	}
	return service, invoice, nil
}

type markPaidInput struct {
	InvoiceID string `mapstructure:"invoiceId"`
	PaidAt    string `mapstructure:"paidAt"`
}

// markInvoicePaid settles an invoice and pushes its service's next invoice
// date one renewal period out.
func (m *Module) markInvoicePaid(ctx context.Context, p command.Payload) (command.Result, error) {
	var in markPaidInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode markInvoicePaid: %w", err)
	}
	if in.InvoiceID == "" {
		return command.MissingField("invoiceId"), nil
	}

	now := m.now().UTC()
	paidAt := now
	if in.PaidAt != "" {
		parsed, err := time.Parse(time.RFC3339, in.PaidAt)
		if err != nil {
			return command.Fail("invalid_paidAt"), nil
		}
		paidAt = parsed.UTC()
	}

	invoice, err := m.store.Invoices.Update(ctx, in.InvoiceID, func(inv *domain.Invoice) error {
		inv.Status = domain.InvoicePaid
		inv.PaidAt = &paidAt
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return command.NotFound(map[string]any{"invoiceId": in.InvoiceID}), nil
	}
	if err != nil {
		return command.Result{}, err
	}

	data := map[string]any{"invoice": invoice}
	service, err := m.store.Services.Update(ctx, invoice.ServiceID, func(s *domain.Service) error {
		s.NextInvoiceDate = now.Add(renewalPeriod)
		return nil
	})
	switch {
	case err == nil:
		data["service"] = service
	case !errors.Is(err, storage.ErrNotFound):
		return command.Result{}, err
	}
	return command.OK(data), nil
}

type customerInput struct {
	CustomerID string `mapstructure:"customerId"`
}

func (m *Module) listCustomerServices(ctx context.Context, p command.Payload) (command.Result, error) {
	var in customerInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode listCustomerServices: %w", err)
	}
	if in.CustomerID == "" {
		return command.MissingField("customerId"), nil
	}
	services, err := m.store.Services.Find(ctx, "customerId", in.CustomerID)
	if err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"services": services}), nil
}

func (m *Module) listCustomerInvoices(ctx context.Context, p command.Payload) (command.Result, error) {
	var in customerInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode listCustomerInvoices: %w", err)
	}
	if in.CustomerID == "" {
		return command.MissingField("customerId"), nil
	}
	invoices, err := m.store.Invoices.Find(ctx, "customerId", in.CustomerID)
	if err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"invoices": invoices}), nil
}

type recordPaymentInput struct {
	InvoiceID string  `mapstructure:"invoiceId"`
	AmountPKR float64 `mapstructure:"amountPkr"`
	Method    string  `mapstructure:"method"`
	Reference string  `mapstructure:"reference"`
}

func (m *Module) recordPayment(ctx context.Context, p command.Payload) (command.Result, error) {
	var in recordPaymentInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode recordPayment: %w", err)
	}
	if res, failed := command.Require().
		Field("invoiceId", in.InvoiceID != "").
		Field("amountPkr", in.AmountPKR != 0).
		Failed(); failed {
		return res, nil
	}

	payment := domain.Payment{
		ID:        storage.NewID("PAY"),
		InvoiceID: in.InvoiceID,
		AmountPKR: in.AmountPKR,
		Method:    orDefault(in.Method, defaultPaymentMethod),
		Reference: optional(in.Reference),
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Payments.Put(ctx, payment.ID, payment); err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"payment": payment}), nil
}

type overdueInput struct {
	DaysOverdue int `mapstructure:"daysOverdue"`
}

// OverdueInvoice is one row of findOverdueInvoices.
type OverdueInvoice struct {
	ID          string  `json:"id"`
	CustomerID  string  `json:"customerId"`
	DaysOverdue int     `json:"daysOverdue"`
	AmountPKR   float64 `json:"amountPkr"`
}

// findOverdueInvoices lists unpaid invoices whose due date passed
// at least daysOverdue days ago.
func (m *Module) findOverdueInvoices(ctx context.Context, p command.Payload) (command.Result, error) {
	var in overdueInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode findOverdueInvoices: %w", err)
	}
	threshold := in.DaysOverdue
	if threshold == 0 {
		threshold = defaultOverdueDays
	}

	unpaid, err := m.store.Invoices.Find(ctx, "status", domain.InvoiceUnpaid)
	if err != nil {
		return command.Result{}, err
	}
	now := m.now().UTC()
	overdue := make([]OverdueInvoice, 0)
	for _, inv := range unpaid {
		days := int(math.Floor(now.Sub(inv.DueAt).Hours() / 24))
		if days < threshold {
			continue
		}
		overdue = append(overdue, OverdueInvoice{
			ID:          inv.ID,
			CustomerID:  inv.CustomerID,
			DaysOverdue: days,
			AmountPKR:   inv.AmountPKR,
		})
	}
	return command.OK(map[string]any{"thresholdDays": threshold, "overdueInvoices": overdue}), nil
}
