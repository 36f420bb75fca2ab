// Package sandbox builds the seeded in-memory store that self-test fixtures
// run against.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/storage"
)

// Identifiers referenced by the module fixtures.
const (
	CustomerID = "CUST_TEST_1"
	ServiceID  = "SRV_TEST_1"
	InvoiceID  = "INV_TEST_1"
	TicketID   = "TCK_TEST_1"
	PlanCode   = "QN_TEST_PLAN"
)

// NewStore returns a fresh memory store seeded with the fixture records.
func NewStore(ctx context.Context, now time.Time) (*storage.Store, error) {
	store := storage.NewMemory()
	if err := Seed(ctx, store, now); err != nil {
		return nil, err
	}
	return store, nil
}

// Seed writes the fixture records into store.
func Seed(ctx context.Context, store *storage.Store, now time.Time) error {
	phone := "0300-0000000"
	created := now.Add(-45 * 24 * time.Hour)

	if err := store.Customers.Put(ctx, CustomerID, domain.Customer{
		ID:        CustomerID,
		Name:      "Test User",
		Email:     "test@example.com",
		Phone:     &phone,
		Country:   "PK",
		CreatedAt: created,
	}); err != nil {
		return fmt.Errorf("seed customer: %w", err)
	}

	if err := store.Services.Put(ctx, ServiceID, domain.Service{
		ID:              ServiceID,
		CustomerID:      CustomerID,
		PlanCode:        PlanCode,
		Domain:          "test-domain.com",
		Status:          "active",
		BillingCycle:    "monthly",
		NextInvoiceDate: now.Add(-14 * 24 * time.Hour),
		CreatedAt:       created,
	}); err != nil {
		return fmt.Errorf("seed service: %w", err)
	}

	if err := store.Invoices.Put(ctx, InvoiceID, domain.Invoice{
		ID:         InvoiceID,
		CustomerID: CustomerID,
		ServiceID:  ServiceID,
		AmountPKR:  999,
		Status:     domain.InvoiceUnpaid,
		IssuedAt:   now.Add(-21 * 24 * time.Hour),
		DueAt:      now.Add(-14 * 24 * time.Hour),
	}); err != nil {
		return fmt.Errorf("seed invoice: %w", err)
	}

	if err := store.Tickets.Put(ctx, TicketID, domain.Ticket{
		ID:         TicketID,
		CustomerID: CustomerID,
		Subject:    "Test Issue",
		Message:    "Something is not working.",
		Channel:    "email",
		Priority:   "high",
		Status:     "open",
		CreatedAt:  created,
		UpdatedAt:  created,
	}); err != nil {
		return fmt.Errorf("seed ticket: %w", err)
	}
	return nil
}
