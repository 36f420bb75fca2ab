package storage

import (
	"context"
	"fmt"
	"strings"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config selects and configures the storage backend.
type Config struct {
	Driver      string `yaml:"driver" json:"driver" env:"STORAGE_DRIVER"`
	DatabaseURL string `yaml:"database_url" json:"database_url" env:"BILLING_DATABASE_URL"`
}

// Open builds a Store for cfg. An empty driver selects memory, unless a
// database URL is present.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverMemory
		if cfg.DatabaseURL != "" {
			driver = DriverPostgres
		}
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("storage driver postgres requires database_url")
		}
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		backend, err := NewPostgresBackend(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return New(backend), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
