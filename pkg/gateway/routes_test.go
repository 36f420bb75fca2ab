package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumnode/gateway/internal/governance"
	"github.com/quantumnode/gateway/pkg/config"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/logging"
)

func TestCommandCatalog(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), nil)

	rec, body := serve(g, httptest.NewRequest(http.MethodGet, "/api/commands/billing", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "billing", body["module"])
	commands, ok := body["commands"].([]any)
	require.True(t, ok)
	assert.Contains(t, commands, "createCustomer")
	assert.Equal(t, "selftest", commands[len(commands)-1])
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestCommandDispatch(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/commands/billing",
		strings.NewReader(`{"cmd":"createCustomer","payload":{"name":"Ali","email":"ali@example.pk"}}`))
	rec, body := serve(g, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "createCustomer", body["cmd"])
	customer, ok := body["customer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ali@example.pk", customer["email"])

	rec, body = serve(g, httptest.NewRequest(http.MethodGet, "/api/commands/billing?cmd=getCustomerByEmail&email=ali@example.pk", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	found, ok := body["customer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, customer["id"], found["id"])
}

func TestCommandErrors(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), nil)

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{
			name:   "unknown module",
			req:    httptest.NewRequest(http.MethodGet, "/api/commands/payroll?cmd=run", nil),
			status: http.StatusNotFound,
			code:   domain.CodeUnknownModule,
		},
		{
			name:   "unknown command",
			req:    httptest.NewRequest(http.MethodGet, "/api/commands/crm?cmd=dropTables", nil),
			status: http.StatusBadRequest,
			code:   domain.CodeUnknownCommand,
		},
		{
			name:   "missing fields",
			req:    httptest.NewRequest(http.MethodPost, "/api/commands/billing", strings.NewReader(`{"cmd":"createCustomer"}`)),
			status: http.StatusBadRequest,
			code:   domain.CodeMissingFields,
		},
		{
			name:   "not found",
			req:    httptest.NewRequest(http.MethodPost, "/api/commands/support", strings.NewReader(`{"cmd":"updateTicketStatus","ticketId":"TCK_NOPE","status":"closed"}`)),
			status: http.StatusNotFound,
			code:   domain.CodeNotFound,
		},
		{
			name:   "invalid json",
			req:    httptest.NewRequest(http.MethodPost, "/api/commands/crm", strings.NewReader(`{`)),
			status: http.StatusBadRequest,
			code:   domain.CodeInvalidJSON,
		},
		{
			name:   "method",
			req:    httptest.NewRequest(http.MethodDelete, "/api/commands/crm", nil),
			status: http.StatusMethodNotAllowed,
			code:   domain.CodeMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(g, tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestCommandSelfTest(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), nil)

	for _, module := range []string{"whm", "billing", "crm", "support"} {
		t.Run(module, func(t *testing.T) {
			rec, body := serve(g, httptest.NewRequest(http.MethodGet, "/api/commands/"+module+"?cmd=selftest", nil))
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, true, body["ok"])
			summary, ok := body["summary"].(map[string]any)
			require.True(t, ok)
			assert.Empty(t, summary["failed"])
		})
	}
}

func TestWHMTestEndpoint(t *testing.T) {
	accts := make([]any, 0, 5)
	for _, u := range []string{"a", "b", "c", "d", "e"} {
		accts = append(accts, map[string]any{"user": u, "domain": u + ".pk", "plan": "basic", "suspended": float64(0)})
	}
	whm := &fakeWHM{resp: map[string]any{"data": map[string]any{"acct": accts}}}
	g := newTestGateway(t, testConfig(t, nil), whm)

	rec, body := serve(g, httptest.NewRequest(http.MethodGet, "/api/whm/test", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.CodeUnauthorized, body["error"])

	rec, _ = serve(g, httptest.NewRequest(http.MethodGet, "/api/whm/test?key=wrong", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/whm/test", nil)
	req.Header.Set("x-test-key", "test-key")
	rec, body = serve(g, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 5, body["total"])
	sample, ok := body["sample"].([]any)
	require.True(t, ok)
	require.Len(t, sample, 3)
	assert.Equal(t, map[string]any{"user": "a", "domain": "a.pk", "plan": "basic", "suspended": false}, sample[0])
}

func TestWHMTestRequiresConfiguredKey(t *testing.T) {
	g := newTestGateway(t, testConfig(t, func(c *config.Config) { c.Security.TestKey = "" }), &fakeWHM{})
	rec, _ := serve(g, httptest.NewRequest(http.MethodGet, "/api/whm/test?key=", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDevSign(t *testing.T) {
	whm := &fakeWHM{}
	g := newTestGateway(t, testConfig(t, nil), whm)

	rec, body := serve(g, httptest.NewRequest(http.MethodGet, "/api/dev/sign?key=nope&route=suspendacct&user=u1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.CodeUnauthorized, body["error"])

	rec, body = serve(g, httptest.NewRequest(http.MethodGet, "/api/dev/sign?key=dev-key&route=removeacct", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "route_must_be_createacct_or_suspendacct", body["error"])

	rec, body = serve(g, httptest.NewRequest(http.MethodGet, "/api/dev/sign?key=dev-key&route=createacct&username=u1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_fields_for_createacct", body["error"])

	rec, body = serve(g, httptest.NewRequest(http.MethodGet, "/api/dev/sign?key=dev-key&route=suspendacct&user=u1", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "suspendacct", body["route"])
	assert.Equal(t, map[string]any{"user": "u1", "reason": "manual_test"}, body["request"])
	response, ok := body["response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, response["ok"])

	calls := whm.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "suspendacct", calls[0].Action)
	assert.Equal(t, map[string]any{"user": "u1", "reason": "manual_test"}, calls[0].Params)
}

func TestDevSignReplayPropagatesFailure(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), &fakeWHM{})

	rec, body := serve(g, httptest.NewRequest(http.MethodGet,
		"/api/dev/sign?key=dev-key&route=createacct&username=u1&domain=u1.pk&password=pw", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["ok"])
	response, ok := body["response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, domain.CodeMissingFields, response["error"])
}

func TestHealth(t *testing.T) {
	start := time.Date(2025, 11, 20, 8, 0, 0, 0, time.UTC)
	now := start
	cfg := testConfig(t, func(c *config.Config) { c.Server.Version = "abc123" })
	g := New(cfg, WithLogger(logging.Discard()), WithClock(func() time.Time { return now }))
	now = start.Add(90 * time.Second)

	rec, body := serve(g, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, config.DefaultServiceName, body["service"])
	assert.Equal(t, "abc123", body["version"])
	assert.InDelta(t, 90.0, body["uptime"], 0.001)
	assert.Equal(t, "2025-11-20T08:01:30.000Z", body["time"])
}

func TestHealthWithoutVersion(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), nil)

	_, body := serve(g, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, "local", body["version"])
}

func TestMetricsEndpoint(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), &fakeWHM{})
	serve(g, httptest.NewRequest(http.MethodPost, "/api/whm/listaccts", strings.NewReader(`{}`)))

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway_http_requests_total")
	assert.Contains(t, rec.Body.String(), `gateway_guard_rejections_total{reason="bad_signature"`)
}

func TestPoliciesReconfigure(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), &fakeWHM{})
	g.Policies().Configure(governance.Policy{Limit: 1, Window: time.Minute}, nil)

	rec, _ := serve(g, signedRequest(t, "/api/whm/listaccts", `{}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = serve(g, signedRequest(t, "/api/whm/listaccts", `{}`))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestNewLimiterMemory(t *testing.T) {
	l, stop, err := NewLimiter(context.Background(), config.RateLimitConfig{Backend: config.BackendMemory}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = stop() })
	assert.IsType(t, &governance.MemoryLimiter{}, l)
}

func TestNewLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	l, stop, err := NewLimiter(context.Background(), config.RateLimitConfig{
		Backend:  config.BackendRedis,
		RedisURL: "redis://" + mr.Addr() + "/0",
	}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = stop() })

	policy := governance.Policy{Limit: 1, Window: time.Minute}
	assert.False(t, l.Check(context.Background(), "c", "/r", policy).Blocked)
	assert.True(t, l.Check(context.Background(), "c", "/r", policy).Blocked)
	assert.True(t, mr.Exists("rl:c:/r"))
}

func TestNewLimiterBadRedisURL(t *testing.T) {
	_, _, err := NewLimiter(context.Background(), config.RateLimitConfig{
		Backend:  config.BackendRedis,
		RedisURL: "http://not-redis",
	}, logging.Discard())
	assert.Error(t, err)
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestBillingEndpointsFlow(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), nil)

	rec, body := serve(g, postJSON("/api/billing/create-customer",
		`{"customerName":"Sana Tariq","email":"sana@example.pk","phone":"0300-1234567"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	customer := body["customer"].(map[string]any)
	assert.Equal(t, "Sana Tariq", customer["name"])
	customerID := customer["id"].(string)

	rec, body = serve(g, postJSON("/api/billing/create-plan",
		`{"planId":"QN_STARTER","name":"Starter","price":"799","features":["1 site","5 GB"]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plan := body["plan"].(map[string]any)
	assert.Equal(t, "QN_STARTER", plan["code"])
	assert.Equal(t, 799.0, plan["pricePkr"])
	assert.Equal(t, "monthly", plan["cycle"])
	assert.Equal(t, []any{"1 site", "5 GB"}, plan["features"])

	rec, body = serve(g, postJSON("/api/billing/create-service-and-invoice",
		`{"customerId":"`+customerID+`","planId":"QN_STARTER"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["ok"])
	invoice := body["invoice"].(map[string]any)
	assert.Equal(t, 799.0, invoice["amountPkr"])
	assert.Equal(t, domain.InvoiceUnpaid, invoice["status"])
	service := body["service"].(map[string]any)
	assert.Equal(t, customerID, service["customerId"])

	rec, body = serve(g, postJSON("/api/billing/mark-invoice-paid",
		`{"invoiceId":"`+invoice["id"].(string)+`"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := body["invoice"].(map[string]any)
	assert.Equal(t, domain.InvoicePaid, paid["status"])
	assert.NotEmpty(t, paid["paidAt"])

	// The command endpoint reads the same store.
	rec, body = serve(g, httptest.NewRequest(http.MethodGet,
		"/api/commands/billing?cmd=listCustomerInvoices&customerId="+customerID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["invoices"], 1)
}

func TestBillingEndpointErrors(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), nil)

	_, body := serve(g, postJSON("/api/billing/create-customer", `{"customerName":"Bilal","email":"bilal@example.pk"}`))
	customerID := body["customer"].(map[string]any)["id"].(string)

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"get is rejected", httptest.NewRequest(http.MethodGet, "/api/billing/create-customer", nil), http.StatusMethodNotAllowed, domain.CodeMethodNotAllowed},
		{"unknown operation", postJSON("/api/billing/delete-everything", `{}`), http.StatusNotFound, domain.CodeNotFound},
		{"invalid json", postJSON("/api/billing/create-plan", `{`), http.StatusBadRequest, domain.CodeInvalidJSON},
		{"customer missing email", postJSON("/api/billing/create-customer", `{"customerName":"X"}`), http.StatusBadRequest, domain.CodeMissingFields},
		{"plan missing price", postJSON("/api/billing/create-plan", `{"planId":"P","name":"N"}`), http.StatusBadRequest, domain.CodeMissingFields},
		{"order missing plan", postJSON("/api/billing/create-service-and-invoice", `{"customerId":"`+customerID+`"}`), http.StatusBadRequest, domain.CodeMissingFields},
		{"order unknown customer", postJSON("/api/billing/create-service-and-invoice", `{"customerId":"CUST_NOPE","planId":"P"}`), http.StatusNotFound, domain.CodeNotFound},
		{"order unknown plan", postJSON("/api/billing/create-service-and-invoice", `{"customerId":"`+customerID+`","planId":"P_NOPE"}`), http.StatusNotFound, domain.CodeNotFound},
		{"invoice missing id", postJSON("/api/billing/mark-invoice-paid", `{}`), http.StatusBadRequest, "missing_invoiceId"},
		{"invoice unknown", postJSON("/api/billing/mark-invoice-paid", `{"invoiceId":"INV_NOPE"}`), http.StatusNotFound, domain.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(g, tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.code, body["error"])
		})
	}

	_, body = serve(g, postJSON("/api/billing/create-service-and-invoice", `{"customerId":"`+customerID+`","planId":"P_NOPE"}`))
	assert.Equal(t, "plan", body["record"])
	assert.Equal(t, "P_NOPE", body["id"])
}
