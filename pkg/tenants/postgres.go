// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// querier is the subset of *pgxpool.Pool the store needs.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// pgStore implements Store backed by the bootstrap PostgreSQL database.
type pgStore struct {
	db  querier            // Connection pool to the bootstrap database
	log *zap.SugaredLogger // Logger for diagnostic output
}

// NewPostgresStore constructs a PostgreSQL-backed descriptor store.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{db: dbPool, log: log}
}

// EnsureSchema creates the descriptor table if it does not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenant_connections (
  id bigserial PRIMARY KEY,
  tenant_key text NOT NULL,
  display_name text NOT NULL DEFAULT '',
  base_url text NOT NULL,
  public_key text NOT NULL DEFAULT '',
  active boolean NOT NULL DEFAULT true,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
-- at most one active descriptor per key, compared case-insensitively
CREATE UNIQUE INDEX IF NOT EXISTS tenant_connections_active_key_idx
  ON tenant_connections (lower(tenant_key)) WHERE active;
`)
	return err
}

// SeedFromEnv ingests initial descriptors.
// jsonSeed format (TENANT_SEED_JSON):
//
//	[{"tenant_key":"sieg","display_name":"Sieg","base_url":"https://...","public_key":"...","active":true}]
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, jsonSeed string) error {
	if jsonSeed == "" {
		return nil
	}
	var entries []Descriptor
	if err := json.Unmarshal([]byte(jsonSeed), &entries); err != nil {
		return err
	}
	for _, d := range entries {
		if !d.Active {
			continue
		}
		_, err := dbPool.Exec(ctx, `INSERT INTO tenant_connections(tenant_key,display_name,base_url,public_key,active)
		  VALUES ($1,$2,$3,$4,true)
		  ON CONFLICT (lower(tenant_key)) WHERE active DO UPDATE SET display_name=EXCLUDED.display_name,base_url=EXCLUDED.base_url,public_key=EXCLUDED.public_key,updated_at=NOW()`,
			NormalizeKey(d.TenantKey), d.DisplayName, d.BaseURL, d.PublicKey)
		if err != nil {
			return fmt.Errorf("seed %s: %w", d.TenantKey, err)
		}
	}
	return nil
}

// ActiveDescriptor fetches the active descriptor for key.
func (p *pgStore) ActiveDescriptor(ctx context.Context, key string) (Descriptor, error) {
	row := p.db.QueryRow(ctx, `SELECT tenant_key, display_name, base_url, public_key, active
		FROM tenant_connections WHERE lower(tenant_key)=$1 AND active LIMIT 1`, NormalizeKey(key))
	var d Descriptor
	if err := row.Scan(&d.TenantKey, &d.DisplayName, &d.BaseURL, &d.PublicKey, &d.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Descriptor{}, ErrDescriptorNotFound
		}
		return Descriptor{}, fmt.Errorf("descriptor lookup: %w", redactPgErr(err))
	}
	return d, nil
}

// ListActive returns all active descriptors ordered by display name.
func (p *pgStore) ListActive(ctx context.Context) ([]Descriptor, error) {
	rows, err := p.db.Query(ctx, `SELECT tenant_key, display_name, base_url, public_key, active
		FROM tenant_connections WHERE active ORDER BY display_name, tenant_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Descriptor
	for rows.Next() {
		var d Descriptor
		if err := rows.Scan(&d.TenantKey, &d.DisplayName, &d.BaseURL, &d.PublicKey, &d.Active); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// redactPgErr keeps the SQLSTATE and drops detail text that may echo row values.
func redactPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres error %s", pgErr.Code)
	}
	return err
}
