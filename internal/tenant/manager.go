package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/audit"
	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/provisioner"
)

// Store is the slice of the repository the lifecycle manager needs.
type Store interface {
	CreateTenant(ctx context.Context, t *db.Tenant) error
	GetTenantByClerkOrgID(ctx context.Context, clerkOrgID string) (*db.Tenant, error)
	GetTenant(ctx context.Context, id string) (*db.Tenant, error)
	UpdateTenantMetadata(ctx context.Context, id, name, slug string) error
	UpsertTenantUser(ctx context.Context, u *db.TenantUser) error
	RemoveTenantUser(ctx context.Context, tenantID, clerkUserID string) error
}

// SchemaProvisioner creates and destroys per-tenant partitions.
type SchemaProvisioner interface {
	Provision(ctx context.Context, tenantID, schemaName string) error
	Deprovision(ctx context.Context, tenantID, schemaName string, hard bool) error
	CreateDefaultEntity(ctx context.Context, schemaName, entityID, tenantName string) error
}

// Recorder appends audit entries. Implementations must not fail the caller.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry)
}

type Manager struct {
	store       Store
	provisioner SchemaProvisioner
	recorder    Recorder
	logger      *zap.Logger
	trialDays   int
	defaultTier db.SubscriptionTier
}

func NewManager(store Store, prov SchemaProvisioner, recorder Recorder, logger *zap.Logger, trialDays int, defaultTier db.SubscriptionTier) *Manager {
	if trialDays <= 0 {
		trialDays = 14
	}
	if defaultTier == "" {
		defaultTier = db.TierStarter
	}
	return &Manager{
		store:       store,
		provisioner: prov,
		recorder:    recorder,
		logger:      logger,
		trialDays:   trialDays,
		defaultTier: defaultTier,
	}
}

type CreatedResult struct {
	Tenant        *db.Tenant
	AlreadyExists bool
}

// HandleOrganizationCreated turns an organization.created event into a
// provisioned tenant. The operation is idempotent by external org id: a
// second call returns the existing tenant and performs no schema work.
//
// Enrichment steps after schema creation (default entity, owner
// membership) are recoverable and never fail the call; failed ones leave
// an audit marker for operators.
func (m *Manager) HandleOrganizationCreated(ctx context.Context, orgID, name, slug, creatorID string) (*CreatedResult, error) {
	existing, err := m.store.GetTenantByClerkOrgID(ctx, orgID)
	if err != nil && err != db.ErrNotFound {
		return nil, fmt.Errorf("failed to check existing tenant for org %s: %w", orgID, err)
	}
	if existing != nil {
		m.logger.Info("Tenant already provisioned for organization",
			zap.String("clerk_org_id", orgID),
			zap.String("tenant_id", existing.ID),
		)
		return &CreatedResult{Tenant: existing, AlreadyExists: true}, nil
	}

	schemaName, err := provisioner.NewSchemaName()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	trialEnd := now.AddDate(0, 0, m.trialDays)
	t := &db.Tenant{
		ID:                 "tnt_" + uuid.NewString(),
		Name:               name,
		Slug:               slug,
		SchemaName:         schemaName,
		ClerkOrgID:         orgID,
		SubscriptionTier:   m.defaultTier,
		SubscriptionStatus: db.SubscriptionTrial,
		TrialEndsAt:        &trialEnd,
		MaxUsers:           TierQuotas(m.defaultTier).MaxUsers,
		MaxEntities:        TierQuotas(m.defaultTier).MaxEntities,
		Features:           TierFeatures(m.defaultTier),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := m.store.CreateTenant(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant for org %s: %w", orgID, err)
	}

	// Schema creation is the fatal path: without a partition the tenant is
	// not usable.
	if err := m.provisioner.Provision(ctx, t.ID, schemaName); err != nil {
		m.logger.Error("Schema provisioning failed",
			zap.Error(err),
			zap.String("tenant_id", t.ID),
			zap.String("clerk_org_id", orgID),
		)
		return nil, err
	}

	enrichmentOK := true

	if err := m.provisioner.CreateDefaultEntity(ctx, schemaName, "ent_"+uuid.NewString(), name); err != nil {
		enrichmentOK = false
		m.logger.Warn("Failed to create default entity",
			zap.Error(err),
			zap.String("tenant_id", t.ID),
		)
	}

	if creatorID != "" {
		owner := &db.TenantUser{
			ID:          "tu_" + uuid.NewString(),
			TenantID:    t.ID,
			ClerkUserID: creatorID,
			Role:        db.RoleOwner,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := m.store.UpsertTenantUser(ctx, owner); err != nil {
			enrichmentOK = false
			m.logger.Warn("Failed to create owner membership",
				zap.Error(err),
				zap.String("tenant_id", t.ID),
				zap.String("clerk_user_id", creatorID),
			)
		}
	}

	m.recorder.Record(ctx, audit.Entry{
		TenantID:     t.ID,
		UserID:       creatorID,
		Action:       "tenant.provisioned",
		ResourceType: "tenant",
		ResourceID:   t.ID,
		Metadata: map[string]interface{}{
			"clerk_org_id": orgID,
			"schema_name":  schemaName,
			"tier":         string(m.defaultTier),
		},
	})

	if !enrichmentOK {
		m.recorder.Record(ctx, audit.Entry{
			TenantID:     t.ID,
			Action:       "tenant.enrichment_failed",
			ResourceType: "tenant",
			ResourceID:   t.ID,
		})
	}

	return &CreatedResult{Tenant: t}, nil
}

// HandleOrganizationUpdated patches mutable metadata. A missing tenant is
// an error; transient store failures are logged only, because the event
// source offers no redelivery.
func (m *Manager) HandleOrganizationUpdated(ctx context.Context, orgID, name, slug string) error {
	t, err := m.store.GetTenantByClerkOrgID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("no tenant for organization %s: %w", orgID, err)
	}

	if name == "" {
		name = t.Name
	}
	if slug == "" {
		slug = t.Slug
	}

	if err := m.store.UpdateTenantMetadata(ctx, t.ID, name, slug); err != nil {
		m.logger.Error("Failed to update tenant metadata",
			zap.Error(err),
			zap.String("tenant_id", t.ID),
		)
		return nil
	}

	m.recorder.Record(ctx, audit.Entry{
		TenantID:     t.ID,
		Action:       "tenant.updated",
		ResourceType: "tenant",
		ResourceID:   t.ID,
		Metadata:     map[string]interface{}{"name": name, "slug": slug},
	})
	return nil
}

// HandleOrganizationDeleted soft-deletes the tenant. The schema stays
// intact; hard deletion is a separate explicit operation.
func (m *Manager) HandleOrganizationDeleted(ctx context.Context, orgID string) error {
	t, err := m.store.GetTenantByClerkOrgID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("no tenant for organization %s: %w", orgID, err)
	}

	if err := m.provisioner.Deprovision(ctx, t.ID, t.SchemaName, false); err != nil {
		return fmt.Errorf("failed to soft-delete tenant %s: %w", t.ID, err)
	}

	m.recorder.Record(ctx, audit.Entry{
		TenantID:     t.ID,
		Action:       "tenant.soft_deleted",
		ResourceType: "tenant",
		ResourceID:   t.ID,
		Metadata:     map[string]interface{}{"clerk_org_id": orgID},
	})
	return nil
}

// HardDelete irreversibly drops the tenant partition and row. Never called
// from the event path.
func (m *Manager) HardDelete(ctx context.Context, tenantID, requestedBy string) error {
	t, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("tenant %s not found: %w", tenantID, err)
	}

	if err := m.provisioner.Deprovision(ctx, t.ID, t.SchemaName, true); err != nil {
		return err
	}

	m.recorder.Record(ctx, audit.Entry{
		TenantID:     t.ID,
		UserID:       requestedBy,
		Action:       "tenant.hard_deleted",
		ResourceType: "tenant",
		ResourceID:   t.ID,
		Metadata:     map[string]interface{}{"schema_name": t.SchemaName},
	})
	return nil
}

type MembershipOp string

const (
	MembershipAdd    MembershipOp = "add"
	MembershipUpdate MembershipOp = "update"
	MembershipRemove MembershipOp = "remove"
)

// HandleMembershipChanged applies a membership event. Add and update both
// go through the transactional upsert, so a role change replaces the
// existing row instead of accumulating a second one.
func (m *Manager) HandleMembershipChanged(ctx context.Context, orgID, userID string, role db.MemberRole, op MembershipOp) error {
	t, err := m.store.GetTenantByClerkOrgID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("no tenant for organization %s: %w", orgID, err)
	}

	switch op {
	case MembershipAdd, MembershipUpdate:
		if !validRole(role) {
			return fmt.Errorf("invalid member role %q", role)
		}
		now := time.Now().UTC()
		u := &db.TenantUser{
			ID:          "tu_" + uuid.NewString(),
			TenantID:    t.ID,
			ClerkUserID: userID,
			Role:        role,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := m.store.UpsertTenantUser(ctx, u); err != nil {
			return fmt.Errorf("failed to upsert membership: %w", err)
		}
	case MembershipRemove:
		if err := m.store.RemoveTenantUser(ctx, t.ID, userID); err != nil {
			return fmt.Errorf("failed to remove membership: %w", err)
		}
	default:
		return fmt.Errorf("unknown membership op %q", op)
	}

	m.recorder.Record(ctx, audit.Entry{
		TenantID:     t.ID,
		UserID:       userID,
		Action:       "tenant.membership_" + string(op),
		ResourceType: "tenant_user",
		ResourceID:   userID,
		Metadata:     map[string]interface{}{"role": string(role)},
	})
	return nil
}

func validRole(r db.MemberRole) bool {
	switch r {
	case db.RoleOwner, db.RoleAdmin, db.RoleMember, db.RoleViewer:
		return true
	}
	return false
}
