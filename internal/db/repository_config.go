package db

import (
	"context"
	"database/sql"
	"time"
)

// SetTenantFeature flips one capability flag inside the tenant's features
// map without rewriting the rest of it.
func (r *Repository) SetTenantFeature(ctx context.Context, tenantID, flag string, enabled bool) error {
	query := `
        UPDATE tenants SET
            features = jsonb_set(COALESCE(features, '{}'::jsonb), ARRAY[$2], to_jsonb($3::boolean)),
            updated_at = $4
        WHERE id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, tenantID, flag, enabled, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *Repository) UpsertEnvironmentConfig(ctx context.Context, c *EnvironmentConfig) error {
	query := `
        INSERT INTO environment_configs (id, environment, key, value, updated_by, updated_at)
        VALUES (:id, :environment, :key, :value, :updated_by, :updated_at)
        ON CONFLICT (environment, key) DO UPDATE SET
            value = EXCLUDED.value,
            updated_by = EXCLUDED.updated_by,
            updated_at = EXCLUDED.updated_at`

	_, err := r.db.NamedExecContext(ctx, query, c)
	return err
}

func (r *Repository) GetEnvironmentConfig(ctx context.Context, environment, key string) (*EnvironmentConfig, error) {
	var c EnvironmentConfig
	query := `SELECT * FROM environment_configs WHERE environment = $1 AND key = $2`
	err := r.db.GetContext(ctx, &c, query, environment, key)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
