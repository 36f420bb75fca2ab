// Package config provides configuration structures and loading logic for the gateway.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/quantumnode/gateway/internal/governance"
	"github.com/quantumnode/gateway/pkg/allowlist"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/logging"
	"github.com/quantumnode/gateway/pkg/storage"
	"github.com/quantumnode/gateway/pkg/telemetry"
	"github.com/quantumnode/gateway/pkg/upstream"
)

// Defaults applied by Default and by the section validators.
const (
	DefaultAddress         = ":8080"
	DefaultMaxBodyBytes    = 1 << 20
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultServiceName     = "quantum-node-gateway"
)

// Rate limit backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the global configuration for the gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Security   SecurityConfig   `yaml:"security"`
	CORS       CORSConfig       `yaml:"cors"`
	Upstream   upstream.Config  `yaml:"upstream"`
	RateLimits RateLimitConfig  `yaml:"rate_limits"`
	Storage    storage.Config   `yaml:"storage"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
	Logging    logging.Config   `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address     string `yaml:"address" env:"GATEWAY_ADDR"`
	ServiceName string `yaml:"service_name" env:"GATEWAY_SERVICE_NAME"`
	// Version is reported by /api/health. Empty means the binary's build
	// version.
	Version string `yaml:"version" env:"GATEWAY_VERSION"`
	// TrustForwardedFor keys rate limits on X-Forwarded-For. Enable only
	// behind a proxy that overwrites the header.
	TrustForwardedFor bool          `yaml:"trust_forwarded_for" env:"TRUST_FORWARDED_FOR"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"GATEWAY_READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"GATEWAY_WRITE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"GATEWAY_SHUTDOWN_TIMEOUT"`
	TLS               TLSConfig     `yaml:"tls"`
}

// TLSVersion represents supported TLS protocol versions.
type TLSVersion string

const (
	TLSVersion12 TLSVersion = "1.2"
	TLSVersion13 TLSVersion = "1.3"
)

// ParseTLSVersion converts a string to a TLSVersion with validation.
func ParseTLSVersion(version string) (TLSVersion, error) {
	if version == "" {
		return TLSVersion12, nil
	}

	normalized := strings.TrimSpace(version)
	switch TLSVersion(normalized) {
	case TLSVersion12, TLSVersion13:
		return TLSVersion(normalized), nil
	default:
		return "", fmt.Errorf("unsupported TLS version %q", version)
	}
}

// TLSConfig enables TLS termination on the gateway listener.
type TLSConfig struct {
	CertFile   string `yaml:"cert_file" env:"GATEWAY_TLS_CERT_FILE"`
	KeyFile    string `yaml:"key_file" env:"GATEWAY_TLS_KEY_FILE"`
	MinVersion string `yaml:"min_version" env:"GATEWAY_TLS_MIN_VERSION"`
}

// Enabled reports whether a certificate pair is configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// SecurityConfig holds the shared secrets and the WHM action allow list.
// None of these are reloaded at runtime.
type SecurityConfig struct {
	HMACSecret     string   `yaml:"hmac_secret" env:"GATEWAY_HMAC_SECRET"`
	DevSignKey     string   `yaml:"dev_sign_key" env:"DEV_SIGN_KEY"`
	TestKey        string   `yaml:"test_key" env:"TEST_KEY"`
	AllowedActions []string `yaml:"allowed_actions" env:"ALLOW_WHM" envSeparator:","`
}

// CORSConfig lists the origins echoed back to browsers.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ADMIN_ORIGIN" envSeparator:","`
}

// RateLimitConfig holds the fixed-window policies and the counter backend.
type RateLimitConfig struct {
	Default  governance.Policy            `yaml:"default"`
	Routes   map[string]governance.Policy `yaml:"routes"`
	Backend  string                       `yaml:"backend" env:"RATE_LIMIT_BACKEND"`
	RedisURL string                       `yaml:"redis_url" env:"REDIS_URL"`
}

// Apply installs the configured policies into p.
func (c RateLimitConfig) Apply(p *governance.Policies) {
	p.Configure(c.Default, c.Routes)
}

// Policies builds a policy table from the configuration.
func (c RateLimitConfig) Policies() *governance.Policies {
	return governance.NewPolicies(c.Default, c.Routes)
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         DefaultAddress,
			ServiceName:     DefaultServiceName,
			MaxBodyBytes:    DefaultMaxBodyBytes,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Security: SecurityConfig{
			AllowedActions: append([]string(nil), allowlist.DefaultActions...),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Upstream: upstream.Config{
			Port:    upstream.DefaultPort,
			Timeout: upstream.DefaultTimeout,
		},
		RateLimits: RateLimitConfig{
			Default: governance.Policy{Limit: governance.DefaultLimit, Window: governance.DefaultWindow},
			Backend: BackendMemory,
		},
		Telemetry: telemetry.Config{
			ServiceName: DefaultServiceName,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file %s: %w", domain.ErrConfigInvalid, path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: environment: %w", domain.ErrConfigInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate performs validation of the entire configuration and fills defaults.
// Every returned error wraps domain.ErrConfigInvalid.
func (c *Config) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"server", c.Server.Validate},
		{"security", c.Security.Validate},
		{"cors", c.CORS.Validate},
		{"upstream", c.validateUpstream},
		{"rate_limits", c.RateLimits.Validate},
		{"storage", c.validateStorage},
		{"logging", c.validateLogging},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: %s configuration: %w", domain.ErrConfigInvalid, s.name, err)
		}
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Server.ServiceName
	}
	return nil
}

// Validate performs validation of server configuration.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = DefaultAddress
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.TLS.Enabled() {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return errors.New("tls requires both cert_file and key_file")
		}
		if _, err := ParseTLSVersion(c.TLS.MinVersion); err != nil {
			return fmt.Errorf("tls: %w", err)
		}
	}
	return nil
}

// Validate normalizes the allow list. An empty secret is accepted; every
// signed request is then rejected.
func (c *SecurityConfig) Validate() error {
	actions := c.AllowedActions[:0]
	for _, a := range c.AllowedActions {
		if a = strings.TrimSpace(a); a != "" {
			actions = append(actions, a)
		}
	}
	c.AllowedActions = actions
	return nil
}

// Validate trims the origin list. An empty list means any origin.
func (c *CORSConfig) Validate() error {
	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = append(origins, "*")
	}
	c.AllowedOrigins = origins
	return nil
}

// Validate performs validation of rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	if c.Default.Limit < 0 || c.Default.Window < 0 {
		return errors.New("default policy must not be negative")
	}
	for route, p := range c.Routes {
		if !strings.HasPrefix(route, "/") {
			return fmt.Errorf("route %q must be a path", route)
		}
		if p.Limit < 0 || p.Window < 0 {
			return fmt.Errorf("route %q policy must not be negative", route)
		}
	}

	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case "", BackendMemory:
		c.Backend = BackendMemory
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("redis backend requires redis_url")
		}
	default:
		return fmt.Errorf("unknown backend %q, supported: memory, redis", c.Backend)
	}
	return nil
}

func (c *Config) validateUpstream() error {
	if c.Upstream.Port == 0 {
		c.Upstream.Port = upstream.DefaultPort
	}
	if c.Upstream.Port < 0 || c.Upstream.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Upstream.Port)
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = upstream.DefaultTimeout
	}
	return nil
}

func (c *Config) validateStorage() error {
	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch driver {
	case "", storage.DriverMemory:
		if driver == "" && c.Storage.DatabaseURL != "" {
			driver = storage.DriverPostgres
		} else {
			driver = storage.DriverMemory
		}
	case storage.DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("postgres driver requires database_url")
		}
	default:
		return fmt.Errorf("unknown driver %q, supported: memory, postgres", c.Storage.Driver)
	}
	c.Storage.Driver = driver
	return nil
}

func (c *Config) validateLogging() error {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Logging.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Logging.Level = level
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Logging.Level)
	}

	format := strings.TrimSpace(strings.ToLower(c.Logging.Format))
	switch format {
	case "", "json":
		c.Logging.Format = "json"
	case "text":
		c.Logging.Format = format
	default:
		return fmt.Errorf("invalid log format %q, supported formats: json, text", c.Logging.Format)
	}
	return nil
}
