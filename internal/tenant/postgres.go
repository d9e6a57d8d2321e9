package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry loads tenant records from PostgreSQL.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

func NewPostgresRegistry(ctx context.Context, databaseURL string) (*PostgresRegistry, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initTenantSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresRegistry{pool: pool}, nil
}

func initTenantSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmt := `CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		config JSONB NOT NULL DEFAULT '{}'::jsonb
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init schema failed on %q: %w", stmt, err)
	}
	return nil
}

func (r *PostgresRegistry) Lookup(ctx context.Context, id string) (Tenant, error) {
	var (
		t   Tenant
		raw []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, active, config FROM tenants WHERE id=$1 AND active`, id).
		Scan(&t.ID, &t.Name, &t.Active, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("query tenant: %w", err)
	}

	if err := json.Unmarshal(raw, &t); err != nil {
		return Tenant{}, fmt.Errorf("decode tenant config %s: %w", id, err)
	}
	return Normalize(t), nil
}

func (r *PostgresRegistry) List(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, active, config FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		var (
			t   Tenant
			raw []byte
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Active, &raw); err != nil {
			return nil, fmt.Errorf("scan tenant row: %w", err)
		}
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode tenant config %s: %w", t.ID, err)
		}
		out = append(out, Normalize(t))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant rows: %w", err)
	}
	return out, nil
}

func (r *PostgresRegistry) Close() error {
	r.pool.Close()
	return nil
}
