package support

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/storage"
)

type createTicketInput struct {
	CustomerID string `mapstructure:"customerId"`
	Subject    string `mapstructure:"subject"`
	Message    string `mapstructure:"message"`
	Channel    string `mapstructure:"channel"`
	Priority   string `mapstructure:"priority"`
}

func (m *Module) createTicket(ctx context.Context, p command.Payload) (command.Result, error) {
	var in createTicketInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode createTicket: %w", err)
	}
	if res, failed := command.Require().
		Field("customerId", in.CustomerID != "").
		Field("subject", in.Subject != "").
		Field("message", in.Message != "").
		Failed(); failed {
		return res, nil
	}

	now := m.now().UTC()
	ticket := domain.Ticket{
		ID:         storage.NewID("TCK"),
		CustomerID: in.CustomerID,
		Subject:    in.Subject,
		Message:    in.Message,
		Channel:    orDefault(in.Channel, "system"),
		Priority:   orDefault(in.Priority, "normal"),
		Status:     "open",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Tickets.Put(ctx, ticket.ID, ticket); err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"ticket": ticket}), nil
}

type statusInput struct {
	TicketID string `mapstructure:"ticketId"`
	Status   string `mapstructure:"status"`
}

func (m *Module) updateTicketStatus(ctx context.Context, p command.Payload) (command.Result, error) {
	var in statusInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode updateTicketStatus: %w", err)
	}
	if res, failed := command.Require().
		Field("ticketId", in.TicketID != "").
		Field("status", in.Status != "").
		Failed(); failed {
		return res, nil
	}

	ticket, err := m.store.Tickets.Update(ctx, in.TicketID, func(t *domain.Ticket) error {
		t.Status = in.Status
		t.UpdatedAt = m.now().UTC()
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return command.NotFound(map[string]any{"ticketId": in.TicketID}), nil
	}
	if err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"ticket": ticket}), nil
}

type noteInput struct {
	TicketID string `mapstructure:"ticketId"`
	Note     string `mapstructure:"note"`
	Internal *bool  `mapstructure:"internal"`
	Author   string `mapstructure:"author"`
}

// addTicketNote appends a note to the ticket. Notes are internal unless the
// payload sets internal to false.
func (m *Module) addTicketNote(ctx context.Context, p command.Payload) (command.Result, error) {
	var in noteInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode addTicketNote: %w", err)
	}
	if res, failed := command.Require().
		Field("ticketId", in.TicketID != "").
		Field("note", in.Note != "").
		Failed(); failed {
		return res, nil
	}

	now := m.now().UTC()
	note := domain.TicketNote{
		ID:        storage.NewID("NOTE"),
		Internal:  in.Internal == nil || *in.Internal,
		Author:    orDefault(in.Author, "system"),
		Body:      in.Note,
		CreatedAt: now,
	}
	_, err := m.store.Tickets.Update(ctx, in.TicketID, func(t *domain.Ticket) error {
		t.Notes = append(t.Notes, note)
		t.UpdatedAt = now
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return command.NotFound(map[string]any{"ticketId": in.TicketID}), nil
	}
	if err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"ticketId": in.TicketID, "note": note}), nil
}

type emailInput struct {
	To       string         `mapstructure:"to"`
	Subject  string         `mapstructure:"subject"`
	Body     string         `mapstructure:"body"`
	Template string         `mapstructure:"template"`
	Context  map[string]any `mapstructure:"context"`
}

// Email is a queued outbound email.
type Email struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Context  map[string]any `json:"context"`
	Status   string         `json:"status"`
	QueuedAt string         `json:"queuedAt"`
}

func (m *Module) sendEmail(p command.Payload) (command.Result, error) {
	var in emailInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode sendEmail: %w", err)
	}
	if res, failed := command.Require().
		Field("to", in.To != "").
		Field("body or template", in.Body != "" || in.Template != "").
		Failed(); failed {
		return res, nil
	}

	body := in.Body
	if body == "" {
		body = "Rendered from template " + in.Template
	}
	return command.OK(map[string]any{
		"email": Email{
			To:       in.To,
			Subject:  orDefault(in.Subject, "(no subject)"),
			Body:     body,
			Context:  in.Context,
			Status:   "queued",
			QueuedAt: m.stamp(),
		},
	}), nil
}

type whatsAppInput struct {
	To   string `mapstructure:"to"`
	Body string `mapstructure:"body"`
}

// WhatsAppMessage is a queued WhatsApp message.
type WhatsAppMessage struct {
	To       string `json:"to"`
	Body     string `json:"body"`
	Status   string `json:"status"`
	QueuedAt string `json:"queuedAt"`
}

func (m *Module) sendWhatsAppMessage(p command.Payload) (command.Result, error) {
	var in whatsAppInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode sendWhatsAppMessage: %w", err)
	}
	if res, failed := command.Require().
		Field("to", in.To != "").
		Field("body", in.Body != "").
		Failed(); failed {
		return res, nil
	}
	return command.OK(map[string]any{
		"whatsapp": WhatsAppMessage{
			To:       in.To,
			Body:     in.Body,
			Status:   "queued",
			QueuedAt: m.stamp(),
		},
	}), nil
}

type listInput struct {
	CustomerID string `mapstructure:"customerId"`
	Limit      int    `mapstructure:"limit"`
}

// listTicketsForCustomer returns the customer's tickets, newest first.
func (m *Module) listTicketsForCustomer(ctx context.Context, p command.Payload) (command.Result, error) {
	var in listInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode listTicketsForCustomer: %w", err)
	}
	if in.CustomerID == "" {
		return command.MissingField("customerId"), nil
	}

	limit := in.Limit
	switch {
	case limit == 0:
		limit = defaultTicketLimit
	case limit < 0:
		limit = 0
	case limit > maxTicketLimit:
		limit = maxTicketLimit
	}

	tickets, err := m.store.Tickets.Find(ctx, "customerId", in.CustomerID)
	if err != nil {
		return command.Result{}, err
	}
	sort.SliceStable(tickets, func(i, j int) bool { return tickets[i].CreatedAt.After(tickets[j].CreatedAt) })
	if len(tickets) > limit {
		tickets = tickets[:limit]
	}
	return command.OK(map[string]any{"tickets": tickets}), nil
}

func (m *Module) stamp() string {
	return m.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
