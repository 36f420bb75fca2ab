package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS gateway_records (
	seq        BIGSERIAL,
	kind       TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS gateway_records_kind_seq ON gateway_records (kind, seq);
`

var (
	pgxPoolNewWithConfig   = pgxpool.NewWithConfig
	postgresConnectRetries = 5
	postgresRetryDelay     = time.Second
	postgresPingTimeout    = 2 * time.Second
)

// PostgresBackend stores documents in a single JSONB table.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresPool connects to dsn, retrying until the server answers a ping.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	var lastErr error
	for i := 0; i < postgresConnectRetries; i++ {
		pool, err := pgxPoolNewWithConfig(ctx, cfg)
		if err != nil {
			lastErr = err
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, postgresPingTimeout)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				return pool, nil
			}
			lastErr = err
			pool.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(postgresRetryDelay):
		}
	}
	return nil, fmt.Errorf("db ping retries exhausted: %w", lastErr)
}

// NewPostgresBackend wraps pool and creates the records table if needed.
func NewPostgresBackend(ctx context.Context, pool *pgxpool.Pool) (*PostgresBackend, error) {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("migrate gateway_records: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// Put upserts the document.
func (p *PostgresBackend) Put(ctx context.Context, kind, id string, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO gateway_records (kind, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (kind, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		kind, id, string(data))
	return err
}

// Get loads one document.
func (p *PostgresBackend) Get(ctx context.Context, kind, id string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data::text FROM gateway_records WHERE kind = $1 AND id = $2`,
		kind, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Find matches on a top-level JSON field.
func (p *PostgresBackend) Find(ctx context.Context, kind, field, value string) ([][]byte, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if field == "" {
		rows, err = p.pool.Query(ctx,
			`SELECT data::text FROM gateway_records WHERE kind = $1 ORDER BY seq`, kind)
	} else {
		rows, err = p.pool.Query(ctx,
			`SELECT data::text FROM gateway_records WHERE kind = $1 AND data->>$2 = $3 ORDER BY seq`,
			kind, field, value)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

// Close closes the pool.
func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}
