package support

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/modules/sandbox"
	"github.com/quantumnode/gateway/pkg/storage"
)

var fixedNow = time.Date(2025, 11, 20, 8, 30, 0, 0, time.UTC)

func newModule(t *testing.T) (*Module, *storage.Store) {
	t.Helper()
	store, err := sandbox.NewStore(context.Background(), fixedNow)
	require.NoError(t, err)
	return New(store, WithClock(func() time.Time { return fixedNow })), store
}

func exec(t *testing.T, m *Module, cmd Command, p command.Payload) command.Result {
	t.Helper()
	res, err := m.Execute(context.Background(), string(cmd), p)
	require.NoError(t, err)
	return res
}

func TestSelfTestSuite(t *testing.T) {
	report := command.RunSuite(context.Background(), New(storage.NewMemory()))
	assert.True(t, report.OK, "failed: %v", report.Summary.Failed)
	assert.Len(t, report.Summary.Passed, len(Commands))
}

func TestTicketLifecycle(t *testing.T) {
	m, store := newModule(t)

	res := exec(t, m, CreateTicket, command.Payload{
		"customerId": sandbox.CustomerID, "subject": "Down", "message": "Site is down",
	})
	require.True(t, res.OK)
	ticket := res.Data["ticket"].(domain.Ticket)
	assert.Equal(t, "system", ticket.Channel)
	assert.Equal(t, "normal", ticket.Priority)
	assert.Equal(t, "open", ticket.Status)

	res = exec(t, m, UpdateTicketStatus, command.Payload{"ticketId": ticket.ID, "status": "resolved"})
	require.True(t, res.OK)
	assert.Equal(t, "resolved", res.Data["ticket"].(domain.Ticket).Status)

	res = exec(t, m, AddTicketNote, command.Payload{"ticketId": ticket.ID, "note": "Restarted php-fpm"})
	require.True(t, res.OK)
	note := res.Data["note"].(domain.TicketNote)
	assert.True(t, note.Internal)
	assert.Equal(t, "system", note.Author)

	res = exec(t, m, AddTicketNote, command.Payload{"ticketId": ticket.ID, "note": "Fixed", "internal": "false"})
	require.True(t, res.OK)
	assert.False(t, res.Data["note"].(domain.TicketNote).Internal)

	stored, err := store.Tickets.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Notes, 2)
	assert.Equal(t, "resolved", stored.Status)
}

func TestUnknownTicketIsNotFound(t *testing.T) {
	m, _ := newModule(t)
	res := exec(t, m, UpdateTicketStatus, command.Payload{"ticketId": "TCK_NOPE", "status": "closed"})
	assert.Equal(t, domain.CodeNotFound, res.Error)
	res = exec(t, m, AddTicketNote, command.Payload{"ticketId": "TCK_NOPE", "note": "x"})
	assert.Equal(t, domain.CodeNotFound, res.Error)
}

func TestSendEmail(t *testing.T) {
	m, _ := newModule(t)

	res := exec(t, m, SendEmail, command.Payload{"to": "a@example.pk"})
	assert.Equal(t, domain.CodeMissingFields, res.Error)
	assert.Equal(t, []string{"to", "body or template"}, res.Required)
	assert.Equal(t, []string{"body or template"}, res.Missing)

	res = exec(t, m, SendEmail, command.Payload{"to": "a@example.pk", "template": "welcome", "context": map[string]any{"name": "A"}})
	require.True(t, res.OK)
	email := res.Data["email"].(Email)
	assert.Equal(t, "Rendered from template welcome", email.Body)
	assert.Equal(t, "(no subject)", email.Subject)
	assert.Equal(t, "queued", email.Status)
	assert.Equal(t, "2025-11-20T08:30:00.000Z", email.QueuedAt)
	assert.Equal(t, map[string]any{"name": "A"}, email.Context)
}

func TestSendWhatsAppValidation(t *testing.T) {
	m, _ := newModule(t)
	res := exec(t, m, SendWhatsAppMessage, command.Payload{"body": "hi"})
	assert.Equal(t, []string{"to"}, res.Missing)
}

func TestListTicketsNewestFirst(t *testing.T) {
	m, _ := newModule(t)
	res := exec(t, m, CreateTicket, command.Payload{"customerId": sandbox.CustomerID, "subject": "New", "message": "m"})
	created := res.Data["ticket"].(domain.Ticket)

	res = exec(t, m, ListTicketsForCustomer, command.Payload{"customerId": sandbox.CustomerID})
	tickets := res.Data["tickets"].([]domain.Ticket)
	require.Len(t, tickets, 2)
	assert.Equal(t, created.ID, tickets[0].ID)
	assert.Equal(t, sandbox.TicketID, tickets[1].ID)

	res = exec(t, m, ListTicketsForCustomer, command.Payload{"customerId": sandbox.CustomerID, "limit": 1})
	assert.Len(t, res.Data["tickets"].([]domain.Ticket), 1)

	res = exec(t, m, ListTicketsForCustomer, command.Payload{})
	assert.Equal(t, "missing_customerId", res.Error)
}
