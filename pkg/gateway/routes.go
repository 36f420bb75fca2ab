package gateway

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quantumnode/gateway/internal/governance"
	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/logging"
	"github.com/quantumnode/gateway/pkg/signature"
	"github.com/quantumnode/gateway/pkg/upstream"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// handleCommand serves GET (query string) and POST (JSON body) command calls.
func (g *Gateway) handleCommand(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeCode(w, domain.CodeMethodNotAllowed)
		return
	}

	client := governance.ClientKey(r, g.server.TrustForwardedFor)
	if g.rateLimited(w, r, client) {
		return
	}

	var source map[string]any
	if r.Method == http.MethodGet {
		source = command.QueryMap(r.URL.Query())
	} else {
		raw, err := readBody(w, r, g.server.MaxBodyBytes)
		if errors.Is(err, errBodyTooLarge) {
			g.reject(w, r, client, guardBodyLimit, domain.CodeBodyTooLarge)
			return
		}
		if err == nil {
			source, err = decodeObject(raw)
		}
		if err != nil {
			writeCode(w, domain.CodeInvalidJSON)
			return
		}
	}

	req := command.ParseRequest(source)
	env, status := g.dispatcher.Dispatch(r.Context(), module, req.Cmd, req.Payload)
	writeJSON(w, status, env)
}

// keyMatches compares a supplied operator key in constant time. An unset
// expected key never matches.
func keyMatches(expected, supplied string) bool {
	if expected == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}

// handleWHMTest is an operator connectivity check guarded by the test key.
func (g *Gateway) handleWHMTest(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = r.Header.Get("x-test-key")
	}
	if !keyMatches(g.security.TestKey, key) {
		writeCode(w, domain.CodeUnauthorized)
		return
	}

	resp, err := g.callUpstream(r.Context(), "listaccts", nil)
	if err != nil {
		logging.FromContext(r.Context()).Error("whm test failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{
			"ok":     false,
			"error":  domain.CodeUpstream,
			"detail": err.Error(),
		})
		return
	}

	type sampleRow struct {
		User      string `json:"user"`
		Domain    string `json:"domain"`
		Plan      string `json:"plan"`
		Suspended bool   `json:"suspended"`
	}
	accounts := upstream.Accounts(resp)
	sample := make([]sampleRow, 0, 3)
	for _, a := range accounts {
		if len(sample) == 3 {
			break
		}
		sample = append(sample, sampleRow{User: a.User, Domain: a.Domain, Plan: a.Plan, Suspended: a.Suspended})
	}
	writeJSON(w, http.StatusOK, envelope{"ok": true, "sample": sample, "total": len(accounts)})
}

type devCreateBody struct {
	Username     string `json:"username"`
	Domain       string `json:"domain"`
	Password     string `json:"password"`
	Plan         string `json:"plan,omitempty"`
	ContactEmail string `json:"contactemail,omitempty"`
}

type devSuspendBody struct {
	User   string `json:"user"`
	Reason string `json:"reason"`
}

// handleDevSign builds a signed body from query parameters and replays it
// in-process against the signed endpoint. Guarded by the dev sign key.
func (g *Gateway) handleDevSign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeCode(w, domain.CodeMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	if !keyMatches(g.security.DevSignKey, q.Get("key")) {
		writeCode(w, domain.CodeUnauthorized)
		return
	}

	route := q.Get("route")
	var body any
	switch route {
	case "createacct":
		b := devCreateBody{
			Username:     q.Get("username"),
			Domain:       q.Get("domain"),
			Password:     q.Get("password"),
			Plan:         q.Get("plan"),
			ContactEmail: q.Get("contactemail"),
		}
		if b.Username == "" || b.Domain == "" || b.Password == "" {
			writeError(w, http.StatusBadRequest, "missing_fields_for_createacct")
			return
		}
		body = b
	case "suspendacct":
		b := devSuspendBody{User: q.Get("user"), Reason: q.Get("reason")}
		if b.User == "" {
			writeError(w, http.StatusBadRequest, "missing_user_for_suspendacct")
			return
		}
		if b.Reason == "" {
			b.Reason = "manual_test"
		}
		body = b
	default:
		writeError(w, http.StatusBadRequest, "route_must_be_createacct_or_suspendacct")
		return
	}

	raw, err := json.Marshal(body)
	if err != nil {
		writeCode(w, domain.CodeInternal)
		return
	}

	// A fresh routing context makes chi route the replay from the root.
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, nil)
	replay := httptest.NewRequestWithContext(ctx, http.MethodPost, "/api/whm/"+route, bytes.NewReader(raw))
	replay.RemoteAddr = r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		replay.Header.Set("X-Forwarded-For", fwd)
	}
	replay.Header.Set("Content-Type", "application/json")
	replay.Header.Set(signature.Header, g.verifier.Sign(raw))

	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, replay)

	response := map[string]any{}
	if ct := rec.Header().Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &response)
	}
	ok := rec.Code >= 200 && rec.Code < 300
	writeJSON(w, rec.Code, envelope{"ok": ok, "route": route, "request": body, "response": response})
}

// handleHealth reports liveness and build information.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := g.now()
	writeJSON(w, http.StatusOK, envelope{
		"ok":      true,
		"service": g.server.ServiceName,
		"uptime":  now.Sub(g.started).Seconds(),
		"version": g.server.Version,
		"time":    now.UTC().Format(timeLayout),
	})
}
