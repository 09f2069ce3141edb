package provisioner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Provisioner creates and destroys per-tenant schemas. Each tenant's
// business data lives in its own postgres schema; no cross-tenant access
// path exists through this package.
type Provisioner struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func New(db *sqlx.DB, logger *zap.Logger) *Provisioner {
	return &Provisioner{db: db, logger: logger}
}

var schemaNamePattern = regexp.MustCompile(`^tenant_[0-9a-f]{16}$`)

// NewSchemaName derives a schema name from a random token rather than the
// tenant's slug, so names cannot collide or be enumerated. Uniqueness is
// enforced by the tenants.schema_name constraint.
func NewSchemaName() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate schema token: %w", err)
	}
	return "tenant_" + hex.EncodeToString(buf), nil
}

// ValidSchemaName reports whether name matches the generated naming pattern.
func ValidSchemaName(name string) bool {
	return schemaNamePattern.MatchString(name)
}

// Provision creates the tenant schema and its business tables in a single
// transaction. On any failure the transaction rolls back and nothing
// observable remains.
func (p *Provisioner) Provision(ctx context.Context, tenantID, schemaName string) error {
	if !ValidSchemaName(schemaName) {
		return fmt.Errorf("invalid schema name %q", schemaName)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin provisioning transaction: %w", err)
	}
	defer tx.Rollback()

	quoted := pq.QuoteIdentifier(schemaName)

	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA %s`, quoted),
		fmt.Sprintf(`
            CREATE TABLE %s.entities (
                id TEXT PRIMARY KEY,
                name TEXT NOT NULL,
                is_default BOOLEAN NOT NULL DEFAULT FALSE,
                created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
                updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
            )`, quoted),
		fmt.Sprintf(`
            CREATE TABLE %s.records (
                id TEXT PRIMARY KEY,
                entity_id TEXT NOT NULL REFERENCES %s.entities(id),
                kind TEXT NOT NULL,
                payload JSONB,
                created_at TIMESTAMPTZ NOT NULL DEFAULT now()
            )`, quoted, quoted),
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to provision schema %s: %w", schemaName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema %s: %w", schemaName, err)
	}

	p.logger.Info("Tenant schema provisioned",
		zap.String("tenant_id", tenantID),
		zap.String("schema_name", schemaName),
	)
	return nil
}

// Deprovision destroys a tenant partition.
//
// hard=false only marks the tenant row deleted; the schema stays intact
// for recovery tooling. hard=true drops the schema and removes the tenant
// row in one transaction. Hard deletion is irreversible and is never
// invoked from the automatic event path.
func (p *Provisioner) Deprovision(ctx context.Context, tenantID, schemaName string, hard bool) error {
	if !hard {
		query := `UPDATE tenants SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
		if _, err := p.db.ExecContext(ctx, query, tenantID, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to soft-delete tenant %s: %w", tenantID, err)
		}
		return nil
	}

	if !ValidSchemaName(schemaName) {
		return fmt.Errorf("invalid schema name %q", schemaName)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin deprovisioning transaction: %w", err)
	}
	defer tx.Rollback()

	drop := fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, pq.QuoteIdentifier(schemaName))
	if _, err := tx.ExecContext(ctx, drop); err != nil {
		return fmt.Errorf("failed to drop schema %s: %w", schemaName, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tenant_users WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("failed to remove memberships for tenant %s: %w", tenantID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, tenantID); err != nil {
		return fmt.Errorf("failed to remove tenant row %s: %w", tenantID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deprovisioning of %s: %w", schemaName, err)
	}

	p.logger.Info("Tenant schema dropped",
		zap.String("tenant_id", tenantID),
		zap.String("schema_name", schemaName),
	)
	return nil
}

// CreateDefaultEntity inserts the initial business entity inside a freshly
// provisioned schema. Failures here are recoverable: the caller treats them
// as non-fatal enrichment errors.
func (p *Provisioner) CreateDefaultEntity(ctx context.Context, schemaName, entityID, tenantName string) error {
	if !ValidSchemaName(schemaName) {
		return fmt.Errorf("invalid schema name %q", schemaName)
	}

	query := fmt.Sprintf(`
        INSERT INTO %s.entities (id, name, is_default)
        VALUES ($1, $2, TRUE)
        ON CONFLICT (id) DO NOTHING`, pq.QuoteIdentifier(schemaName))

	if _, err := p.db.ExecContext(ctx, query, entityID, tenantName); err != nil {
		return fmt.Errorf("failed to create default entity in %s: %w", schemaName, err)
	}
	return nil
}
