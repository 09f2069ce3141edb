package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/audit"
	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/provisioner"
)

type fakeStore struct {
	tenants     map[string]*db.Tenant // keyed by clerk org id
	users       map[string]*db.TenantUser
	createErr   error
	upsertErr   error
	updateCalls []string
	updateErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants: map[string]*db.Tenant{},
		users:   map[string]*db.TenantUser{},
	}
}

func (f *fakeStore) CreateTenant(ctx context.Context, t *db.Tenant) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.tenants[t.ClerkOrgID] = t
	return nil
}

func (f *fakeStore) GetTenantByClerkOrgID(ctx context.Context, clerkOrgID string) (*db.Tenant, error) {
	t, ok := f.tenants[clerkOrgID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetTenant(ctx context.Context, id string) (*db.Tenant, error) {
	for _, t := range f.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) UpdateTenantMetadata(ctx context.Context, id, name, slug string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updateCalls = append(f.updateCalls, id+"/"+name+"/"+slug)
	return nil
}

func (f *fakeStore) UpsertTenantUser(ctx context.Context, u *db.TenantUser) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.users[u.TenantID+"/"+u.ClerkUserID] = u
	return nil
}

func (f *fakeStore) RemoveTenantUser(ctx context.Context, tenantID, clerkUserID string) error {
	delete(f.users, tenantID+"/"+clerkUserID)
	return nil
}

type fakeProvisioner struct {
	provisioned   []string
	deprovisioned []string
	hardDeletes   []string
	entities      []string
	provisionErr  error
	entityErr     error
}

func (f *fakeProvisioner) Provision(ctx context.Context, tenantID, schemaName string) error {
	if f.provisionErr != nil {
		return f.provisionErr
	}
	f.provisioned = append(f.provisioned, schemaName)
	return nil
}

func (f *fakeProvisioner) Deprovision(ctx context.Context, tenantID, schemaName string, hard bool) error {
	if hard {
		f.hardDeletes = append(f.hardDeletes, schemaName)
	} else {
		f.deprovisioned = append(f.deprovisioned, schemaName)
	}
	return nil
}

func (f *fakeProvisioner) CreateDefaultEntity(ctx context.Context, schemaName, entityID, tenantName string) error {
	if f.entityErr != nil {
		return f.entityErr
	}
	f.entities = append(f.entities, schemaName)
	return nil
}

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Record(ctx context.Context, e audit.Entry) {
	r.entries = append(r.entries, e)
}

func (r *recordingAudit) actions() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestManager(store *fakeStore, prov *fakeProvisioner, rec *recordingAudit) *Manager {
	return NewManager(store, prov, rec, zap.NewNop(), 14, db.TierStarter)
}

func TestOrganizationCreated(t *testing.T) {
	store := newFakeStore()
	prov := &fakeProvisioner{}
	rec := &recordingAudit{}
	m := newTestManager(store, prov, rec)

	result, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "user_1")
	require.NoError(t, err)
	require.False(t, result.AlreadyExists)

	tn := result.Tenant
	assert.True(t, provisioner.ValidSchemaName(tn.SchemaName))
	assert.Equal(t, db.TierStarter, tn.SubscriptionTier)
	assert.Equal(t, db.SubscriptionTrial, tn.SubscriptionStatus)
	require.NotNil(t, tn.TrialEndsAt)
	assert.Equal(t, 5, tn.MaxUsers)

	require.Len(t, prov.provisioned, 1)
	require.Len(t, prov.entities, 1)
	require.Len(t, store.users, 1)

	owner := store.users[tn.ID+"/user_1"]
	require.NotNil(t, owner)
	assert.Equal(t, db.RoleOwner, owner.Role)

	assert.Equal(t, []string{"tenant.provisioned"}, rec.actions())
}

func TestOrganizationCreatedIsIdempotent(t *testing.T) {
	store := newFakeStore()
	prov := &fakeProvisioner{}
	m := newTestManager(store, prov, &recordingAudit{})

	first, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "user_1")
	require.NoError(t, err)

	second, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "user_1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.Tenant.ID, second.Tenant.ID)

	// No second schema was touched.
	assert.Len(t, prov.provisioned, 1)
}

func TestOrganizationCreatedProvisioningFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	prov := &fakeProvisioner{provisionErr: errors.New("schema exists")}
	m := newTestManager(store, prov, &recordingAudit{})

	_, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "user_1")
	require.Error(t, err)
}

func TestOrganizationCreatedEnrichmentFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	prov := &fakeProvisioner{entityErr: errors.New("insert failed")}
	rec := &recordingAudit{}
	m := newTestManager(store, prov, rec)

	result, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "user_1")
	require.NoError(t, err)
	require.False(t, result.AlreadyExists)

	// Provisioning succeeded; the miss is visible to operators.
	assert.Contains(t, rec.actions(), "tenant.provisioned")
	assert.Contains(t, rec.actions(), "tenant.enrichment_failed")
}

func TestOrganizationUpdated(t *testing.T) {
	store := newFakeStore()
	rec := &recordingAudit{}
	m := newTestManager(store, &fakeProvisioner{}, rec)

	result, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "")
	require.NoError(t, err)

	require.NoError(t, m.HandleOrganizationUpdated(context.Background(), "org_1", "Acme Inc", ""))
	require.Len(t, store.updateCalls, 1)
	// The empty slug keeps the old value.
	assert.Equal(t, result.Tenant.ID+"/Acme Inc/acme", store.updateCalls[0])
}

func TestOrganizationUpdatedUnknownOrg(t *testing.T) {
	m := newTestManager(newFakeStore(), &fakeProvisioner{}, &recordingAudit{})
	err := m.HandleOrganizationUpdated(context.Background(), "org_gone", "X", "x")
	require.Error(t, err)
}

func TestOrganizationUpdatedStoreFailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeProvisioner{}, &recordingAudit{})
	_, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "")
	require.NoError(t, err)

	store.updateErr = errors.New("db down")
	assert.NoError(t, m.HandleOrganizationUpdated(context.Background(), "org_1", "Acme Inc", ""))
}

func TestOrganizationDeletedIsSoft(t *testing.T) {
	store := newFakeStore()
	prov := &fakeProvisioner{}
	rec := &recordingAudit{}
	m := newTestManager(store, prov, rec)

	_, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "")
	require.NoError(t, err)

	require.NoError(t, m.HandleOrganizationDeleted(context.Background(), "org_1"))
	assert.Len(t, prov.deprovisioned, 1)
	assert.Empty(t, prov.hardDeletes)
	assert.Contains(t, rec.actions(), "tenant.soft_deleted")
}

func TestHardDelete(t *testing.T) {
	store := newFakeStore()
	prov := &fakeProvisioner{}
	rec := &recordingAudit{}
	m := newTestManager(store, prov, rec)

	result, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "")
	require.NoError(t, err)

	require.NoError(t, m.HardDelete(context.Background(), result.Tenant.ID, "admin_1"))
	assert.Len(t, prov.hardDeletes, 1)
	assert.Contains(t, rec.actions(), "tenant.hard_deleted")
}

func TestMembershipRoleChangeReplacesRow(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeProvisioner{}, &recordingAudit{})

	result, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "")
	require.NoError(t, err)
	tenantID := result.Tenant.ID

	require.NoError(t, m.HandleMembershipChanged(context.Background(), "org_1", "user_2", db.RoleMember, MembershipAdd))
	require.NoError(t, m.HandleMembershipChanged(context.Background(), "org_1", "user_2", db.RoleAdmin, MembershipUpdate))

	require.Len(t, store.users, 1)
	assert.Equal(t, db.RoleAdmin, store.users[tenantID+"/user_2"].Role)

	require.NoError(t, m.HandleMembershipChanged(context.Background(), "org_1", "user_2", "", MembershipRemove))
	assert.Empty(t, store.users)
}

func TestMembershipRejectsInvalidRole(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeProvisioner{}, &recordingAudit{})

	_, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "")
	require.NoError(t, err)

	err = m.HandleMembershipChanged(context.Background(), "org_1", "user_2", "superuser", MembershipAdd)
	require.Error(t, err)
}

func TestMembershipUnknownOp(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeProvisioner{}, &recordingAudit{})

	_, err := m.HandleOrganizationCreated(context.Background(), "org_1", "Acme", "acme", "")
	require.NoError(t, err)

	err = m.HandleMembershipChanged(context.Background(), "org_1", "user_2", db.RoleMember, "merge")
	require.Error(t, err)
}

func TestTierQuotas(t *testing.T) {
	assert.Equal(t, 5, TierQuotas(db.TierStarter).MaxUsers)
	assert.Equal(t, 25, TierQuotas(db.TierProfessional).MaxUsers)
	assert.Equal(t, 250, TierQuotas(db.TierEnterprise).MaxUsers)
	// Unknown tiers fall back to the starter quota.
	assert.Equal(t, 5, TierQuotas("platinum").MaxUsers)
}
