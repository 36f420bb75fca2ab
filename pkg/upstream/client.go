// Package upstream is the HTTP client for the WHM JSON API.
package upstream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quantumnode/gateway/pkg/domain"
)

const (
	// DefaultPort is the WHM SSL port.
	DefaultPort = 2087
	// DefaultTimeout bounds a single upstream call.
	DefaultTimeout = 15 * time.Second

	maxErrorBody    = 512
	maxResponseBody = 8 << 20
)

// Config describes how to reach WHM.
type Config struct {
	Host               string        `yaml:"host" json:"host" env:"WHM_HOST"`
	Port               int           `yaml:"port" json:"port" env:"WHM_PORT"`
	User               string        `yaml:"user" json:"user" env:"WHM_USER"`
	Token              string        `yaml:"token" json:"-" env:"WHM_TOKEN"`
	Timeout            time.Duration `yaml:"timeout" json:"timeout" env:"WHM_TIMEOUT"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" json:"insecure_skip_verify" env:"WHM_INSECURE_SKIP_VERIFY"`
	// BaseURL replaces https://host:port when set, e.g. for a local stub.
	BaseURL string `yaml:"base_url" json:"base_url" env:"WHM_BASE_URL"`
}

// Configured reports whether enough settings exist to make calls.
func (c Config) Configured() bool {
	return (c.Host != "" || c.BaseURL != "") && c.User != "" && c.Token != ""
}

// Caller is the contract the gateway depends on.
type Caller interface {
	Call(ctx context.Context, action string, params map[string]any) (map[string]any, error)
}

// Client calls WHM json-api functions. Calls are not retried.
type Client struct {
	cfg        Config
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Client. An unconfigured Client is valid; its calls fail.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	raw := cfg.BaseURL
	if raw == "" {
		raw = "https://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse whm base url: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed WHM installs
	}

	c := &Client{
		cfg:     cfg,
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Call invokes json-api/{action} with api.version=1 and params encoded in the
// query string. A non-2xx status or a WHM metadata.result of 0 is returned as
// a *domain.UpstreamError.
func (c *Client) Call(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	if !c.cfg.Configured() {
		return nil, &domain.UpstreamError{Action: action, Message: "upstream not configured"}
	}

	q := url.Values{}
	q.Set("api.version", "1")
	for k, v := range params {
		if v == nil {
			continue
		}
		q.Set(k, fmt.Sprint(v))
	}
	u := c.baseURL.JoinPath("json-api", action)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build whm request: %w", err)
	}
	req.Header.Set("Authorization", "whm "+c.cfg.User+":"+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "whm call failed", "action", action, "error", err)
		return nil, &domain.UpstreamError{Action: action, Message: err.Error()}
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "whm call",
		"action", action,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.UpstreamError{
			Action:     action,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(snippet)),
		}
	}

	var out map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil {
		return nil, &domain.UpstreamError{Action: action, StatusCode: resp.StatusCode, Message: "invalid json: " + err.Error()}
	}
	if reason, failed := metadataFailure(out); failed {
		return nil, &domain.UpstreamError{Action: action, Message: reason}
	}
	return out, nil
}

// metadataFailure inspects the api.version=1 metadata block.
func metadataFailure(body map[string]any) (string, bool) {
	meta, ok := body["metadata"].(map[string]any)
	if !ok {
		return "", false
	}
	result, ok := meta["result"].(float64)
	if !ok || result != 0 {
		return "", false
	}
	reason, _ := meta["reason"].(string)
	if reason == "" {
		reason = "request failed"
	}
	return reason, true
}

// Data returns body["data"] when present, else body itself.
func Data(body map[string]any) map[string]any {
	if data, ok := body["data"].(map[string]any); ok {
		return data
	}
	return body
}

// AccountRow is the projection of a listaccts entry exposed by the gateway.
type AccountRow struct {
	Domain    string `json:"domain"`
	User      string `json:"user"`
	Suspended bool   `json:"suspended"`
	Plan      string `json:"plan"`
	DiskUsed  string `json:"diskused"`
}

// Accounts extracts data.acct from a listaccts response.
func Accounts(body map[string]any) []AccountRow {
	raw, _ := Data(body)["acct"].([]any)
	rows := make([]AccountRow, 0, len(raw))
	for _, item := range raw {
		a, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, AccountRow{
			Domain:    str(a["domain"]),
			User:      str(a["user"]),
			Suspended: truthy(a["suspended"]),
			Plan:      str(a["plan"]),
			DiskUsed:  str(a["diskused"]),
		})
	}
	return rows
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// truthy accepts the 0/1 integers WHM uses for flags.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		b, err := strconv.ParseBool(t)
		return err == nil && b
	default:
		return false
	}
}
