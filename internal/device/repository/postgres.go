package repository

import (
	"context"
	"database/sql"
)

// PostgresRepository stores device records in the devices table. Add and
// Remove are single atomic statements, so per-tenant serialization comes
// from the database; no in-process locking is needed.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a device repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// List returns the session ids recorded for the tenant.
func (r *PostgresRepository) List(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id FROM devices WHERE tenant_id = $1 ORDER BY session_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Add records a session id for the tenant. No-op if already present.
func (r *PostgresRepository) Add(ctx context.Context, tenantID, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (tenant_id, session_id, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (tenant_id, session_id) DO NOTHING`, tenantID, sessionID)
	return err
}

// Remove deletes a session id for the tenant. No-op if absent.
func (r *PostgresRepository) Remove(ctx context.Context, tenantID, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM devices WHERE tenant_id = $1 AND session_id = $2`, tenantID, sessionID)
	return err
}

// Tenants returns all tenants with at least one recorded device.
func (r *PostgresRepository) Tenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM devices ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
