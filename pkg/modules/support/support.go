// Package support implements ticketing and outbound messaging commands.
package support

import (
	"context"
	"fmt"
	"time"

	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/modules/sandbox"
	"github.com/quantumnode/gateway/pkg/storage"
)

// Command names a support module command.
type Command string

const (
	CreateTicket           Command = "createTicket"
	UpdateTicketStatus     Command = "updateTicketStatus"
	AddTicketNote          Command = "addTicketNote"
	SendEmail              Command = "sendEmail"
	SendWhatsAppMessage    Command = "sendWhatsAppMessage"
	ListTicketsForCustomer Command = "listTicketsForCustomer"
)

// Commands in catalog order.
var Commands = []Command{
	CreateTicket,
	UpdateTicketStatus,
	AddTicketNote,
	SendEmail,
	SendWhatsAppMessage,
	ListTicketsForCustomer,
}

const (
	defaultTicketLimit = 3
	maxTicketLimit     = 50
)

// Module implements command.Module for support.
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

// New creates the support module over store.
func New(store *storage.Store, opts ...Option) *Module {
	m := &Module{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements command.Module.
func (m *Module) Name() string { return "support" }

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
	case CreateTicket:
		return m.createTicket(ctx, p)
	case UpdateTicketStatus:
		return m.updateTicketStatus(ctx, p)
	case AddTicketNote:
		return m.addTicketNote(ctx, p)
	case SendEmail:
		return m.sendEmail(p)
	case SendWhatsAppMessage:
		return m.sendWhatsAppMessage(p)
	case ListTicketsForCustomer:
		return m.listTicketsForCustomer(ctx, p)
	default:
		return command.Result{}, fmt.Errorf("%w: support.%s", domain.ErrUnknownCommand, cmd)
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
		{Name: string(CreateTicket), Payload: command.Payload{
			"customerId": sandbox.CustomerID,
			"subject":    "Test Issue",
			"message":    "Something is not working.",
			"channel":    "email",
			"priority":   "high",
		}},
		{Name: string(UpdateTicketStatus), Payload: command.Payload{"ticketId": sandbox.TicketID, "status": "in_progress"}},
		{Name: string(AddTicketNote), Payload: command.Payload{
			"ticketId": sandbox.TicketID,
			"note":     "Investigating the issue.",
			"internal": true,
			"author":   "system",
		}},
		{Name: string(SendEmail), Payload: command.Payload{
			"to":      "test@example.com",
			"subject": "We received your ticket",
			"body":    "Thank you for contacting Quantum Node.",
		}},
		{Name: string(SendWhatsAppMessage), Payload: command.Payload{"to": "03000000000", "body": "Your ticket has been updated."}},
		{Name: string(ListTicketsForCustomer), Payload: command.Payload{"customerId": sandbox.CustomerID, "limit": 3}},
	}
}
