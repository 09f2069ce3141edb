package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var ErrNotFound = errors.New("record not found")

type Repository struct {
	db *sqlx.DB
}

func NewConnection(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping() error {
	return r.db.Ping()
}

// DB exposes the underlying handle for components that need transactions
// spanning DDL (schema provisioning).
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// Tenant operations

func (r *Repository) CreateTenant(ctx context.Context, t *Tenant) error {
	query := `
        INSERT INTO tenants (
            id, name, slug, schema_name, clerk_org_id,
            subscription_tier, subscription_status, trial_ends_at,
            max_users, max_entities, features, created_at, updated_at
        ) VALUES (
            :id, :name, :slug, :schema_name, :clerk_org_id,
            :subscription_tier, :subscription_status, :trial_ends_at,
            :max_users, :max_entities, :features, :created_at, :updated_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, t)
	return err
}

func (r *Repository) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	query := `SELECT * FROM tenants WHERE id = $1`
	err := r.db.GetContext(ctx, &t, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) GetTenantByClerkOrgID(ctx context.Context, clerkOrgID string) (*Tenant, error) {
	var t Tenant
	query := `SELECT * FROM tenants WHERE clerk_org_id = $1`
	err := r.db.GetContext(ctx, &t, query, clerkOrgID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) UpdateTenantMetadata(ctx context.Context, id, name, slug string) error {
	query := `
        UPDATE tenants SET
            name = $2,
            slug = $3,
            updated_at = $4
        WHERE id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, name, slug, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *Repository) SoftDeleteTenant(ctx context.Context, id string) error {
	query := `UPDATE tenants SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *Repository) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	tenants := []*Tenant{}
	query := `
        SELECT * FROM tenants
        WHERE deleted_at IS NULL
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`

	err := r.db.SelectContext(ctx, &tenants, query, limit, offset)
	return tenants, err
}

// TenantUser operations

// UpsertTenantUser replaces any existing membership for the (user, tenant)
// pair inside one transaction, so a role change is never observable as a
// window with zero or two memberships.
func (r *Repository) UpsertTenantUser(ctx context.Context, u *TenantUser) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	deleteQuery := `DELETE FROM tenant_users WHERE tenant_id = $1 AND clerk_user_id = $2`
	if _, err := tx.ExecContext(ctx, deleteQuery, u.TenantID, u.ClerkUserID); err != nil {
		return fmt.Errorf("failed to remove previous membership: %w", err)
	}

	insertQuery := `
        INSERT INTO tenant_users (id, tenant_id, clerk_user_id, role, created_at, updated_at)
        VALUES (:id, :tenant_id, :clerk_user_id, :role, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, u); err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}

	return tx.Commit()
}

func (r *Repository) RemoveTenantUser(ctx context.Context, tenantID, clerkUserID string) error {
	query := `DELETE FROM tenant_users WHERE tenant_id = $1 AND clerk_user_id = $2`
	_, err := r.db.ExecContext(ctx, query, tenantID, clerkUserID)
	return err
}

func (r *Repository) GetTenantUsers(ctx context.Context, tenantID string) ([]*TenantUser, error) {
	users := []*TenantUser{}
	query := `SELECT * FROM tenant_users WHERE tenant_id = $1 ORDER BY created_at`
	err := r.db.SelectContext(ctx, &users, query, tenantID)
	return users, err
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
