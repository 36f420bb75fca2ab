package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantumnode/gateway/internal/governance"
	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/logging"
	"github.com/quantumnode/gateway/pkg/signature"
	"github.com/quantumnode/gateway/pkg/telemetry"
	"github.com/quantumnode/gateway/pkg/upstream"
)

// Guard names used in logs, metrics and span events.
const (
	guardRateLimit = "rate_limit"
	guardBodyLimit = "body_limit"
	guardSignature = "signature"
	guardAllowList = "allowlist"
)

// action is one signed WHM endpoint. prepare validates the decoded body and
// builds the upstream query; render shapes the upstream response.
type action struct {
	prepare func(body command.Payload) (map[string]any, *command.Result)
	render  func(resp map[string]any) envelope
}

type accountSummaryInput struct {
	User string `mapstructure:"user"`
}

// contactEmail also matches "contactemail": keys are matched case-insensitively.
type createAccountInput struct {
	Username     string `mapstructure:"username"`
	Domain       string `mapstructure:"domain"`
	Password     string `mapstructure:"password"`
	PlanCode     string `mapstructure:"planCode"`
	Plan         string `mapstructure:"plan"`
	ContactEmail string `mapstructure:"contactEmail"`
}

type suspendAccountInput struct {
	User   string `mapstructure:"user"`
	Reason string `mapstructure:"reason"`
}

func whmActions() map[string]action {
	return map[string]action{
		"listaccts": {
			prepare: func(command.Payload) (map[string]any, *command.Result) { return nil, nil },
			render: func(resp map[string]any) envelope {
				return envelope{"accounts": upstream.Accounts(resp)}
			},
		},
		"accountsummary": {
			prepare: func(body command.Payload) (map[string]any, *command.Result) {
				var in accountSummaryInput
				if err := body.Decode(&in); err != nil || strings.TrimSpace(in.User) == "" {
					res := command.MissingField("user")
					return nil, &res
				}
				return map[string]any{"user": in.User}, nil
			},
			render: func(resp map[string]any) envelope {
				return envelope{"summary": upstream.Data(resp)}
			},
		},
		"createacct": {
			prepare: func(body command.Payload) (map[string]any, *command.Result) {
				var in createAccountInput
				_ = body.Decode(&in)
				plan := in.PlanCode
				if plan == "" {
					plan = in.Plan
				}
				if res, failed := command.Require().
					Field("username", in.Username != "").
					Field("domain", in.Domain != "").
					Field("planCode", plan != "").
					Field("contactEmail", in.ContactEmail != "").
					Failed(); failed {
					return nil, &res
				}
				params := map[string]any{
					"username":     in.Username,
					"domain":       in.Domain,
					"plan":         plan,
					"contactemail": in.ContactEmail,
				}
				if in.Password != "" {
					params["password"] = in.Password
				}
				return params, nil
			},
			render: func(resp map[string]any) envelope {
				return envelope{"result": upstream.Data(resp)}
			},
		},
		"suspendacct": {
			prepare: func(body command.Payload) (map[string]any, *command.Result) {
				var in suspendAccountInput
				if err := body.Decode(&in); err != nil || strings.TrimSpace(in.User) == "" {
					res := command.MissingField("user")
					return nil, &res
				}
				params := map[string]any{"user": in.User}
				if in.Reason != "" {
					params["reason"] = in.Reason
				}
				return params, nil
			},
			render: func(resp map[string]any) envelope {
				return envelope{"result": upstream.Data(resp)}
			},
		},
	}
}

// handleSigned runs the signed pipeline: method check, rate limit, body size,
// signature, allow list, JSON parse, field validation, upstream call.
func (g *Gateway) handleSigned(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "action"))
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
	if err != nil {
		writeCode(w, domain.CodeInvalidJSON)
		return
	}

	if !g.verifier.Verify(raw, r.Header.Get(signature.Header)) {
		g.reject(w, r, client, guardSignature, domain.CodeBadSignature)
		return
	}
	telemetry.RecordGuardDecision(trace.SpanFromContext(r.Context()), guardSignature, false, "")

	act, known := g.actions[name]
	if !known || !g.allow.IsAllowed(name) {
		g.reject(w, r, client, guardAllowList, domain.CodeNotAllowed)
		return
	}

	body, err := decodeObject(raw)
	if err != nil {
		writeCode(w, domain.CodeInvalidJSON)
		return
	}

	params, failed := act.prepare(command.Payload(body))
	if failed != nil {
		out := envelope(failed.Fields())
		out["action"] = name
		writeJSON(w, domain.StatusForCode(failed.Error), out)
		return
	}

	resp, err := g.callUpstream(r.Context(), name, params)
	if err != nil {
		logging.FromContext(r.Context()).Error("whm call failed", "action", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{
			"ok":     false,
			"action": name,
			"error":  domain.CodeUpstream,
			"detail": err.Error(),
		})
		return
	}

	out := act.render(resp)
	out["ok"] = true
	out["action"] = name
	writeJSON(w, http.StatusOK, out)
}

// rateLimited counts the request and writes the X-RateLimit headers. It
// reports true after writing a 429.
func (g *Gateway) rateLimited(w http.ResponseWriter, r *http.Request, client string) bool {
	route := governance.RouteKey(r)
	decision := g.limiter.Check(r.Context(), client, route, g.policies.For(route))
	governance.WriteRateLimitHeaders(w, decision)
	if decision.Blocked {
		g.reject(w, r, client, guardRateLimit, domain.CodeRateLimited)
		return true
	}
	telemetry.RecordGuardDecision(trace.SpanFromContext(r.Context()), guardRateLimit, false, "")
	return false
}

func (g *Gateway) reject(w http.ResponseWriter, r *http.Request, client, guard, code string) {
	logging.FromContext(r.Context()).Warn("request rejected",
		"route", r.URL.Path,
		"client", client,
		"guard", guard,
		"reason", code,
	)
	g.metrics.GuardRejected(routePattern(r), code)
	telemetry.RecordGuardDecision(trace.SpanFromContext(r.Context()), guard, true, code)
	writeCode(w, code)
}

func (g *Gateway) callUpstream(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	ctx, span := g.tracer.Start(ctx, "whm.call", trace.WithAttributes(attribute.String("whm.action", name)))
	defer span.End()

	var (
		resp map[string]any
		err  error
	)
	if g.upstream == nil {
		err = &domain.UpstreamError{Action: name, Message: "upstream not configured"}
	} else {
		resp, err = g.upstream.Call(ctx, name, params)
	}
	telemetry.RecordUpstreamCall(span, name, params, err)
	g.metrics.UpstreamCall(name, err)
	return resp, err
}
