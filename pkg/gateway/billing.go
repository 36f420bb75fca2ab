package gateway

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quantumnode/gateway/internal/governance"
	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/logging"
	"github.com/quantumnode/gateway/pkg/modules/billing"
)

// billingOp serves one POST /api/billing/{op} endpoint from a decoded body.
type billingOp func(g *Gateway, w http.ResponseWriter, r *http.Request, body command.Payload)

var billingOps = map[string]billingOp{
	"create-customer":            (*Gateway).billingCreateCustomer,
	"create-plan":                (*Gateway).billingCreatePlan,
	"create-service-and-invoice": (*Gateway).billingCreateServiceAndInvoice,
	"mark-invoice-paid":          (*Gateway).billingMarkInvoicePaid,
}

// handleBilling serves the billing REST endpoints. They accept the field
// names of the admin panel forms and run through the billing module.
func (g *Gateway) handleBilling(w http.ResponseWriter, r *http.Request) {
	op, ok := billingOps[chi.URLParam(r, "op")]
	if !ok {
		writeCode(w, domain.CodeNotFound)
		return
	}
	if r.Method != http.MethodPost {
		writeCode(w, domain.CodeMethodNotAllowed)
		return
	}

	client := governance.ClientKey(r, g.server.TrustForwardedFor)
	if g.rateLimited(w, r, client) {
		return
	}

	raw, err := readBody(w, r, g.server.MaxBodyBytes)
	if errors.Is(err, errBodyTooLarge) {
		g.reject(w, r, client, guardBodyLimit, domain.CodeBodyTooLarge)
		return
	}
	var body map[string]any
	if err == nil {
		body, err = decodeObject(raw)
	}
	if err != nil {
		writeCode(w, domain.CodeInvalidJSON)
		return
	}
	op(g, w, r, command.Payload(body))
}

func (g *Gateway) dispatchBilling(w http.ResponseWriter, r *http.Request, cmd billing.Command, p command.Payload) {
	env, status := g.dispatcher.Dispatch(r.Context(), "billing", string(cmd), p)
	writeJSON(w, status, env)
}

func writeResult(w http.ResponseWriter, res command.Result) {
	writeJSON(w, domain.StatusForCode(res.Error), res.Fields())
}

type restCustomerInput struct {
	CustomerName string `mapstructure:"customerName"`
	Name         string `mapstructure:"name"`
	Email        string `mapstructure:"email"`
	Phone        string `mapstructure:"phone"`
	Country      string `mapstructure:"country"`
}

func (g *Gateway) billingCreateCustomer(w http.ResponseWriter, r *http.Request, body command.Payload) {
	var in restCustomerInput
	_ = body.Decode(&in)
	if in.CustomerName == "" {
		in.CustomerName = in.Name
	}
	if res, failed := command.Require().
		Field("customerName", in.CustomerName != "").
		Field("email", in.Email != "").
		Failed(); failed {
		writeResult(w, res)
		return
	}

	p := command.Payload{"name": in.CustomerName, "email": in.Email, "phone": in.Phone}
	if in.Country != "" {
		p["country"] = in.Country
	}
	g.dispatchBilling(w, r, billing.CreateCustomer, p)
}

type restPlanInput struct {
	PlanID      string   `mapstructure:"planId"`
	Name        string   `mapstructure:"name"`
	Price       float64  `mapstructure:"price"`
	Features    []string `mapstructure:"features"`
	Cycle       string   `mapstructure:"cycle"`
	WHMPackage  string   `mapstructure:"whmPackage"`
	Description string   `mapstructure:"description"`
}

// billingCreatePlan stores the plan under planId. The cycle defaults to
// monthly and the WHM package to the plan id.
func (g *Gateway) billingCreatePlan(w http.ResponseWriter, r *http.Request, body command.Payload) {
	var in restPlanInput
	_ = body.Decode(&in)
	if res, failed := command.Require().
		Field("planId", in.PlanID != "").
		Field("name", in.Name != "").
		Field("price", in.Price > 0).
		Failed(); failed {
		writeResult(w, res)
		return
	}

	p := command.Payload{
		"code":        in.PlanID,
		"name":        in.Name,
		"pricePkr":    in.Price,
		"cycle":       orDefault(in.Cycle, "monthly"),
		"whmPackage":  orDefault(in.WHMPackage, in.PlanID),
		"description": in.Description,
		"features":    in.Features,
	}
	g.dispatchBilling(w, r, billing.AddPlan, p)
}

type restOrderInput struct {
	CustomerID   string `mapstructure:"customerId"`
	PlanID       string `mapstructure:"planId"`
	PlanCode     string `mapstructure:"planCode"`
	Domain       string `mapstructure:"domain"`
	BillingCycle string `mapstructure:"billingCycle"`
}

// billingCreateServiceAndInvoice requires the customer and the plan to
// exist, unlike the lenient createServiceWithInvoice command.
func (g *Gateway) billingCreateServiceAndInvoice(w http.ResponseWriter, r *http.Request, body command.Payload) {
	var in restOrderInput
	_ = body.Decode(&in)
	plan := orDefault(in.PlanID, in.PlanCode)
	if res, failed := command.Require().
		Field("customerId", in.CustomerID != "").
		Field("planId", plan != "").
		Failed(); failed {
		writeResult(w, res)
		return
	}

	service, invoice, err := g.billing.PlaceOrder(r.Context(), billing.Order{
		CustomerID:   in.CustomerID,
		PlanCode:     plan,
		Domain:       in.Domain,
		BillingCycle: in.BillingCycle,
	})
	var missing *billing.MissingRecordError
	switch {
	case errors.As(err, &missing):
		writeJSON(w, http.StatusNotFound, envelope{
			"ok":     false,
			"error":  domain.CodeNotFound,
			"record": missing.Kind,
			"id":     missing.ID,
		})
	case err != nil:
		logging.FromContext(r.Context()).Error("place order failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{
			"ok":      false,
			"error":   domain.CodeInternal,
			"details": err.Error(),
		})
	default:
		writeJSON(w, http.StatusOK, envelope{"ok": true, "service": service, "invoice": invoice})
	}
}

type restInvoiceInput struct {
	InvoiceID string `mapstructure:"invoiceId"`
	PaidAt    string `mapstructure:"paidAt"`
}

func (g *Gateway) billingMarkInvoicePaid(w http.ResponseWriter, r *http.Request, body command.Payload) {
	var in restInvoiceInput
	_ = body.Decode(&in)
	if in.InvoiceID == "" {
		writeResult(w, command.MissingField("invoiceId"))
		return
	}

	p := command.Payload{"invoiceId": in.InvoiceID}
	if in.PaidAt != "" {
		p["paidAt"] = in.PaidAt
	}
	g.dispatchBilling(w, r, billing.MarkInvoicePaid, p)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
