package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumnode/gateway/internal/governance"
	"github.com/quantumnode/gateway/pkg/config"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/logging"
	"github.com/quantumnode/gateway/pkg/signature"
)

const testSecret = "test-secret"

type whmCall struct {
	Action string
	Params map[string]any
}

type fakeWHM struct {
	mu    sync.Mutex
	calls []whmCall
	resp  map[string]any
	err   error
}

func (f *fakeWHM) Call(_ context.Context, action string, params map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, whmCall{Action: action, Params: params})
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return map[string]any{"metadata": map[string]any{"result": float64(1)}, "data": map[string]any{}}, nil
}

func (f *fakeWHM) Calls() []whmCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]whmCall(nil), f.calls...)
}

func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Security.HMACSecret = testSecret
	cfg.Security.TestKey = "test-key"
	cfg.Security.DevSignKey = "dev-key"
	cfg.RateLimits.Default = governance.Policy{Limit: 100, Window: time.Minute}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestGateway(t *testing.T, cfg *config.Config, whm *fakeWHM) *Gateway {
	t.Helper()
	opts := []Option{WithLogger(logging.Discard())}
	if whm != nil {
		opts = append(opts, WithUpstream(whm))
	}
	return New(cfg, opts...)
}

func signedRequest(t *testing.T, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, signature.Sign([]byte(body), []byte(testSecret)))
	return req
}

func serve(g http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

const validCreate = `{"username":"u1","domain":"u1.example.com","planCode":"P1","contactEmail":"u1@example.com"}`

func TestSignedEndpointScenario(t *testing.T) {
	t.Run("unsigned is rejected", func(t *testing.T) {
		g := newTestGateway(t, testConfig(t, nil), &fakeWHM{})
		req := httptest.NewRequest(http.MethodPost, "/api/whm/createacct", strings.NewReader(validCreate))

		rec, body := serve(g, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, domain.CodeBadSignature, body["error"])
	})

	t.Run("signed but not allowed", func(t *testing.T) {
		whm := &fakeWHM{}
		g := newTestGateway(t, testConfig(t, func(c *config.Config) {
			c.Security.AllowedActions = []string{"listaccts"}
		}), whm)

		rec, body := serve(g, signedRequest(t, "/api/whm/createacct", validCreate))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, domain.CodeNotAllowed, body["error"])
		assert.Empty(t, whm.Calls())
	})

	t.Run("missing domain names the field", func(t *testing.T) {
		whm := &fakeWHM{}
		g := newTestGateway(t, testConfig(t, nil), whm)
		payload := `{"username":"u1","planCode":"P1","contactEmail":"u1@example.com"}`

		rec, body := serve(g, signedRequest(t, "/api/whm/createacct", payload))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, domain.CodeMissingFields, body["error"])
		assert.Equal(t, []any{"domain"}, body["missing"])
		assert.Contains(t, body["required"], "domain")
		assert.Empty(t, whm.Calls())
	})

	t.Run("eleventh request is rate limited", func(t *testing.T) {
		whm := &fakeWHM{}
		g := newTestGateway(t, testConfig(t, func(c *config.Config) {
			c.RateLimits.Routes = map[string]governance.Policy{
				"/api/whm/createacct": {Limit: 10, Window: time.Minute},
			}
		}), whm)

		for i := 1; i <= 10; i++ {
			rec, body := serve(g, signedRequest(t, "/api/whm/createacct", validCreate))
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
			assert.Equal(t, true, body["ok"])
			assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
		}

		rec, body := serve(g, signedRequest(t, "/api/whm/createacct", validCreate))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, domain.CodeRateLimited, body["error"])
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
		assert.Len(t, whm.Calls(), 10)
	})
}

func TestCreateAccountForwardsParams(t *testing.T) {
	whm := &fakeWHM{resp: map[string]any{"data": map[string]any{"user": "u1"}}}
	g := newTestGateway(t, testConfig(t, nil), whm)
	payload := `{"username":"u1","domain":"u1.example.com","plan":"P1","contactemail":"u1@example.com","password":"pw"}`

	rec, body := serve(g, signedRequest(t, "/api/whm/createacct", payload))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "createacct", body["action"])
	assert.Equal(t, map[string]any{"user": "u1"}, body["result"])

	calls := whm.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "createacct", calls[0].Action)
	assert.Equal(t, map[string]any{
		"username":     "u1",
		"domain":       "u1.example.com",
		"plan":         "P1",
		"contactemail": "u1@example.com",
		"password":     "pw",
	}, calls[0].Params)
}

func TestRejectedRequestsCountAgainstQuota(t *testing.T) {
	g := newTestGateway(t, testConfig(t, func(c *config.Config) {
		c.RateLimits.Default = governance.Policy{Limit: 2, Window: time.Minute}
	}), &fakeWHM{})

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/whm/listaccts", strings.NewReader(`{}`))
		rec, _ := serve(g, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec, body := serve(g, signedRequest(t, "/api/whm/listaccts", `{}`))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, domain.CodeRateLimited, body["error"])
}

func TestRouteLimitSharedAcrossActionCase(t *testing.T) {
	whm := &fakeWHM{}
	g := newTestGateway(t, testConfig(t, func(c *config.Config) {
		c.RateLimits.Routes = map[string]governance.Policy{
			"/api/whm/createacct": {Limit: 10, Window: time.Minute},
		}
	}), whm)

	variants := []string{"/api/whm/createacct", "/api/whm/Createacct", "/api/whm/CREATEACCT", "/api/whm/createAcct"}
	admitted := 0
	for _, path := range variants {
		for range 10 {
			rec, _ := serve(g, signedRequest(t, path, validCreate))
			if rec.Code == http.StatusOK {
				admitted++
				continue
			}
			require.Equal(t, http.StatusTooManyRequests, rec.Code, path)
			assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
			assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		}
	}
	assert.Equal(t, 10, admitted)
	assert.Len(t, whm.Calls(), 10)
}

func TestPreflightBypassesGuards(t *testing.T) {
	g := newTestGateway(t, testConfig(t, func(c *config.Config) {
		c.RateLimits.Default = governance.Policy{Limit: 1, Window: time.Minute}
	}), &fakeWHM{})

	for range 3 {
		req := httptest.NewRequest(http.MethodOptions, "/api/whm/listaccts", nil)
		req.Header.Set("Origin", "https://admin.example")
		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://admin.example", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		assert.Empty(t, rec.Body.Bytes())
	}

	rec, _ := serve(g, signedRequest(t, "/api/whm/listaccts", `{}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSOrigins(t *testing.T) {
	g := newTestGateway(t, testConfig(t, func(c *config.Config) {
		c.CORS.AllowedOrigins = []string{"https://admin.quantumnode.pk"}
	}), &fakeWHM{})

	tests := []struct {
		origin string
		want   string
	}{
		{"https://admin.quantumnode.pk", "https://admin.quantumnode.pk"},
		{"https://evil.example", "*"},
		{"", "*"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		rec, _ := serve(g, req)
		assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"), "origin %q", tt.origin)
		assert.Contains(t, rec.Header().Values("Vary"), "Origin")
	}
}

func TestSignedMethodNotAllowed(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), &fakeWHM{})
	rec, body := serve(g, httptest.NewRequest(http.MethodGet, "/api/whm/createacct", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, domain.CodeMethodNotAllowed, body["error"])
}

func TestSignedBodyTooLarge(t *testing.T) {
	g := newTestGateway(t, testConfig(t, func(c *config.Config) {
		c.Server.MaxBodyBytes = 16
	}), &fakeWHM{})

	rec, body := serve(g, signedRequest(t, "/api/whm/createacct", validCreate))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, domain.CodeBodyTooLarge, body["error"])
}

func TestSignedInvalidJSON(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), &fakeWHM{})
	rec, body := serve(g, signedRequest(t, "/api/whm/createacct", `{"username":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeInvalidJSON, body["error"])
}

func TestUnknownSignedActionNotAllowed(t *testing.T) {
	whm := &fakeWHM{}
	g := newTestGateway(t, testConfig(t, func(c *config.Config) {
		c.Security.AllowedActions = append(c.Security.AllowedActions, "removeacct")
	}), whm)

	rec, body := serve(g, signedRequest(t, "/api/whm/removeacct", `{"user":"u1"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.CodeNotAllowed, body["error"])
	assert.Empty(t, whm.Calls())
}

func TestUpstreamFailure(t *testing.T) {
	whm := &fakeWHM{err: &domain.UpstreamError{Action: "suspendacct", StatusCode: 503, Message: "maintenance"}}
	g := newTestGateway(t, testConfig(t, nil), whm)

	rec, body := serve(g, signedRequest(t, "/api/whm/suspendacct", `{"user":"u1","reason":"abuse"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, domain.CodeUpstream, body["error"])
	assert.Equal(t, "WHM suspendacct 503: maintenance", body["detail"])
	require.Len(t, whm.Calls(), 1)
	assert.Equal(t, map[string]any{"user": "u1", "reason": "abuse"}, whm.Calls()[0].Params)
}

func TestUpstreamNotConfigured(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), nil)
	rec, body := serve(g, signedRequest(t, "/api/whm/listaccts", `{}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, domain.CodeUpstream, body["error"])
}

func TestListAccounts(t *testing.T) {
	whm := &fakeWHM{resp: map[string]any{
		"metadata": map[string]any{"result": float64(1)},
		"data": map[string]any{"acct": []any{
			map[string]any{"domain": "a.pk", "user": "a", "suspended": float64(0), "plan": "basic", "diskused": "10M", "email": "x"},
			map[string]any{"domain": "b.pk", "user": "b", "suspended": float64(1), "plan": "pro", "diskused": "2M"},
		}},
	}}
	g := newTestGateway(t, testConfig(t, nil), whm)

	rec, body := serve(g, signedRequest(t, "/api/whm/listaccts", `{}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{
		map[string]any{"domain": "a.pk", "user": "a", "suspended": false, "plan": "basic", "diskused": "10M"},
		map[string]any{"domain": "b.pk", "user": "b", "suspended": true, "plan": "pro", "diskused": "2M"},
	}, body["accounts"])
}

func TestAccountSummaryRequiresUser(t *testing.T) {
	whm := &fakeWHM{}
	g := newTestGateway(t, testConfig(t, nil), whm)

	rec, body := serve(g, signedRequest(t, "/api/whm/accountsummary", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_user", body["error"])

	rec, _ = serve(g, signedRequest(t, "/api/whm/accountsummary", `{"user":"u1"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, whm.Calls(), 1)
	assert.Equal(t, map[string]any{"user": "u1"}, whm.Calls()[0].Params)
}

func TestRequestIDHeader(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), &fakeWHM{})

	rec, _ := serve(g, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec, _ = serve(g, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestUnknownRoute(t *testing.T) {
	g := newTestGateway(t, testConfig(t, nil), &fakeWHM{})
	rec, body := serve(g, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["ok"])
}
