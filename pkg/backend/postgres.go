package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenantdash/pkg/db"
	"tenantdash/pkg/tenants"
)

type pgPool interface {
	db.Beginner
	Ping(ctx context.Context) error
	Close()
}

// pgClient reaches a tenant backend that is a PostgreSQL database. Queries
// run inside a transaction carrying app.tenant_id so row-level policies apply.
type pgClient struct {
	pool pgPool
}

// NewPostgresClient opens a pool for d. A non-empty PublicKey overrides the
// DSN password.
func NewPostgresClient(ctx context.Context, d tenants.Descriptor, timeout time.Duration) (Client, error) {
	cfg, err := pgxpool.ParseConfig(d.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse tenant dsn: %w", err)
	}
	if d.PublicKey != "" {
		cfg.ConnConfig.Password = d.PublicKey
	}
	cfg.ConnConfig.ConnectTimeout = timeout
	cfg.MaxConns = 4
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &pgClient{pool: pool}, nil
}

func (c *pgClient) Ping(ctx context.Context) error {
	return classifyPgErr(c.pool.Ping(ctx))
}

func (c *pgClient) Close() { c.pool.Close() }

func (c *pgClient) Membership(ctx context.Context, tenantID, principalID string) (*MembershipRow, error) {
	tx, err := db.BeginTxWithTenant(ctx, c.pool, tenantID)
	if err != nil {
		return nil, classifyPgErr(err)
	}
	defer tx.Rollback(ctx)
	row := tx.QueryRow(ctx, `SELECT tenant_id, user_id, role, COALESCE(permissions, ARRAY[]::text[])
		FROM tenant_members WHERE tenant_id=$1 AND user_id=$2 LIMIT 1`, tenantID, principalID)
	var m MembershipRow
	if err := row.Scan(&m.TenantID, &m.PrincipalID, &m.Role, &m.Permissions); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPgErr(err)
	}
	return &m, tx.Commit(ctx)
}

func (c *pgClient) TagMappings(ctx context.Context, tenantID string) ([]TagMappingRow, error) {
	tx, err := db.BeginTxWithTenant(ctx, c.pool, tenantID)
	if err != nil {
		return nil, classifyPgErr(err)
	}
	defer tx.Rollback(ctx)
	rows, err := tx.Query(ctx, `SELECT tenant_id, external_tag, internal_stage, display_label, description, display_order, active
		FROM tag_mappings WHERE tenant_id=$1 AND active=true ORDER BY display_order ASC, external_tag ASC`, tenantID)
	if err != nil {
		return nil, classifyPgErr(err)
	}
	var out []TagMappingRow
	for rows.Next() {
		var m TagMappingRow
		if err := rows.Scan(&m.TenantID, &m.ExternalTag, &m.InternalStage, &m.DisplayLabel, &m.Description, &m.DisplayOrder, &m.Active); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classifyPgErr(err)
	}
	return out, tx.Commit(ctx)
}

// classifyPgErr maps credential rejections (SQLSTATE class 28) to ErrUnauthorized.
func classifyPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "28" {
		return fmt.Errorf("%w: sqlstate %s", ErrUnauthorized, pgErr.Code)
	}
	return err
}
