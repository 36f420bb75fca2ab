package domain

import "time"

// Customer is a billing customer.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"createdAt"`
}

// Plan is a sellable hosting plan mapped onto a WHM package. Plans are keyed by Code.
type Plan struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Cycle       string    `json:"cycle"`
	PricePKR    float64   `json:"pricePkr"`
	WHMPackage  string    `json:"whmPackage"`
	Description *string   `json:"description"`
	Features    []string  `json:"features"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Service is a provisioned (or pending) hosting service.
type Service struct {
	ID              string    `json:"id"`
	CustomerID      string    `json:"customerId"`
	PlanCode        string    `json:"planCode"`
	Domain          string    `json:"domain"`
	Status          string    `json:"status"`
	BillingCycle    string    `json:"billingCycle"`
	NextInvoiceDate time.Time `json:"nextInvoiceDate"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Invoice statuses.
const (
	InvoiceUnpaid = "unpaid"
	InvoicePaid   = "paid"
)

// Invoice is a bill issued against a service.
type Invoice struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customerId"`
	ServiceID  string     `json:"serviceId"`
	AmountPKR  float64    `json:"amountPkr"`
	Status     string     `json:"status"`
	IssuedAt   time.Time  `json:"issuedAt"`
	DueAt      time.Time  `json:"dueAt"`
	PaidAt     *time.Time `json:"paidAt,omitempty"`
}

// Payment records money received against an invoice.
type Payment struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoiceId"`
	AmountPKR float64   `json:"amountPkr"`
	Method    string    `json:"method"`
	Reference *string   `json:"reference"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile is the CRM view of a customer.
type Profile struct {
	CustomerID string         `json:"customerId"`
	Email      string         `json:"email"`
	Name       string         `json:"name"`
	Phone      *string        `json:"phone"`
	Company    *string        `json:"company"`
	Tags       []string       `json:"tags"`
	Extra      map[string]any `json:"extra,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Interaction is a logged touchpoint with a customer.
type Interaction struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	Channel    string    `json:"channel"`
	Subject    *string   `json:"subject"`
	Message    string    `json:"message"`
	Agent      string    `json:"agent"`
	Direction  string    `json:"direction"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Ticket is a support ticket.
type Ticket struct {
	ID         string       `json:"id"`
	CustomerID string       `json:"customerId"`
	Subject    string       `json:"subject"`
	Message    string       `json:"message"`
	Channel    string       `json:"channel"`
	Priority   string       `json:"priority"`
	Status     string       `json:"status"`
	Notes      []TicketNote `json:"notes,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// TicketNote is a note attached to a ticket; internal notes are hidden from customers.
type TicketNote struct {
	ID        string    `json:"id"`
	Internal  bool      `json:"internal"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
