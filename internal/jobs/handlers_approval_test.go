package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/queue"
	"github.com/opsforge/tenantcore/internal/tenant"
)

type fakeConfigStore struct {
	flags   map[string]bool
	configs []*db.EnvironmentConfig
}

func (f *fakeConfigStore) SetTenantFeature(ctx context.Context, tenantID, flag string, enabled bool) error {
	if f.flags == nil {
		f.flags = map[string]bool{}
	}
	f.flags[tenantID+"/"+flag] = enabled
	return nil
}

func (f *fakeConfigStore) UpsertEnvironmentConfig(ctx context.Context, c *db.EnvironmentConfig) error {
	f.configs = append(f.configs, c)
	return nil
}

type fakeMemberships struct {
	calls []string
}

func (f *fakeMemberships) HandleMembershipChanged(ctx context.Context, orgID, userID string, role db.MemberRole, op tenant.MembershipOp) error {
	f.calls = append(f.calls, orgID+"/"+userID+"/"+string(role)+"/"+string(op))
	return nil
}

type fakeController struct {
	cancelled []string
	promoted  int
	swept     int
}

func (f *fakeController) Cancel(ctx context.Context, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeController) PromoteDelayed(ctx context.Context) (int, error) {
	f.promoted++
	return 3, nil
}

func (f *fakeController) Sweep(ctx context.Context) error {
	f.swept++
	return nil
}

type fakeSyncCreator struct {
	integration *db.AdminIntegration
	existing    *db.AdminSyncJob
	created     []*db.AdminSyncJob
}

func (f *fakeSyncCreator) GetIntegration(ctx context.Context, id string) (*db.AdminIntegration, error) {
	if f.integration == nil {
		return nil, db.ErrNotFound
	}
	return f.integration, nil
}

func (f *fakeSyncCreator) GetSyncJob(ctx context.Context, id string) (*db.AdminSyncJob, error) {
	if f.existing != nil && f.existing.ID == id {
		return f.existing, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeSyncCreator) CreateSyncJob(ctx context.Context, j *db.AdminSyncJob) error {
	f.created = append(f.created, j)
	return nil
}

func newApprovalHandlers(cfg *fakeConfigStore, mem *fakeMemberships, ctrl *fakeController, sync *fakeSyncCreator, q Enqueuer) *ApprovalHandlers {
	return NewApprovalHandlers(cfg, mem, map[string]QueueController{"syncs": ctrl}, sync, q)
}

func TestFeatureFlagHandler(t *testing.T) {
	cfg := &fakeConfigStore{}
	h := newApprovalHandlers(cfg, &fakeMemberships{}, &fakeController{}, &fakeSyncCreator{}, &fakeEnqueuer{})

	job := &queue.Job{
		ID:    "approval-ap_1",
		Type:  "feature_flag",
		RefID: "ap_1",
		Payload: map[string]interface{}{
			"tenant_id": "tnt_1",
			"flag":      "beta_dashboard",
			"enabled":   true,
		},
	}
	result, err := h.FeatureFlag(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, true, cfg.flags["tnt_1/beta_dashboard"])
	assert.Equal(t, "beta_dashboard", result["flag"])
}

func TestFeatureFlagHandlerRequiresFields(t *testing.T) {
	h := newApprovalHandlers(&fakeConfigStore{}, &fakeMemberships{}, &fakeController{}, &fakeSyncCreator{}, &fakeEnqueuer{})

	_, err := h.FeatureFlag(context.Background(), &queue.Job{Payload: map[string]interface{}{"flag": "x"}})
	require.Error(t, err)
}

func TestEnvironmentConfigHandler(t *testing.T) {
	cfg := &fakeConfigStore{}
	h := newApprovalHandlers(cfg, &fakeMemberships{}, &fakeController{}, &fakeSyncCreator{}, &fakeEnqueuer{})

	job := &queue.Job{
		Payload: map[string]interface{}{
			"environment": "production",
			"key":         "rate_limit",
			"value":       "500",
		},
	}
	result, err := h.EnvironmentConfig(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, cfg.configs, 1)
	assert.Equal(t, "production", cfg.configs[0].Environment)
	assert.Equal(t, "system:queue", cfg.configs[0].UpdatedBy)
	assert.Equal(t, "500", result["value"])
}

func TestIntegrationSyncHandlerSchedulesRun(t *testing.T) {
	sync := &fakeSyncCreator{integration: &db.AdminIntegration{ID: "int_1", Provider: "stripe", Enabled: true}}
	q := &fakeEnqueuer{}
	h := newApprovalHandlers(&fakeConfigStore{}, &fakeMemberships{}, &fakeController{}, sync, q)

	job := &queue.Job{
		RefID:   "ap_1",
		Payload: map[string]interface{}{"integration_id": "int_1"},
	}
	result, err := h.IntegrationSync(context.Background(), job)
	require.NoError(t, err)

	// A pending row exists before the queue entry referencing it, with
	// an id derived from the approval.
	require.Len(t, sync.created, 1)
	created := sync.created[0]
	assert.Equal(t, "sj_ap_1", created.ID)
	assert.Equal(t, db.SyncPending, created.Status)
	assert.Equal(t, "approval:ap_1", created.TriggeredBy)
	assert.Equal(t, "full", created.SyncType)

	require.Len(t, q.jobs, 1)
	assert.Equal(t, "sync:stripe", q.jobs[0].Type)
	assert.Equal(t, created.ID, q.jobs[0].RefID)
	assert.Equal(t, created.ID, result["sync_job_id"])
}

func TestIntegrationSyncHandlerReusesExistingRow(t *testing.T) {
	sync := &fakeSyncCreator{
		integration: &db.AdminIntegration{ID: "int_1", Provider: "stripe", Enabled: true},
		existing: &db.AdminSyncJob{
			ID:            "sj_ap_1",
			IntegrationID: "int_1",
			Status:        db.SyncPending,
			TriggeredBy:   "approval:ap_1",
		},
	}
	q := &fakeEnqueuer{}
	h := newApprovalHandlers(&fakeConfigStore{}, &fakeMemberships{}, &fakeController{}, sync, q)

	// A retry after the row was written but the enqueue was lost must not
	// mint a second row.
	result, err := h.IntegrationSync(context.Background(), &queue.Job{
		RefID:   "ap_1",
		Payload: map[string]interface{}{"integration_id": "int_1"},
	})
	require.NoError(t, err)

	assert.Empty(t, sync.created)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, "sj_ap_1", q.jobs[0].RefID)
	assert.Equal(t, "sj_ap_1", result["sync_job_id"])
}

func TestIntegrationSyncHandlerUnknownIntegration(t *testing.T) {
	h := newApprovalHandlers(&fakeConfigStore{}, &fakeMemberships{}, &fakeController{}, &fakeSyncCreator{}, &fakeEnqueuer{})

	_, err := h.IntegrationSync(context.Background(), &queue.Job{
		Payload: map[string]interface{}{"integration_id": "int_gone"},
	})
	require.Error(t, err)
}

func TestUserManagementHandler(t *testing.T) {
	mem := &fakeMemberships{}
	h := newApprovalHandlers(&fakeConfigStore{}, mem, &fakeController{}, &fakeSyncCreator{}, &fakeEnqueuer{})

	job := &queue.Job{
		Payload: map[string]interface{}{
			"org_id":  "org_1",
			"user_id": "user_1",
			"role":    "admin",
			"op":      "update",
		},
	}
	_, err := h.UserManagement(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"org_1/user_1/admin/update"}, mem.calls)
}

func TestQueueOperationHandler(t *testing.T) {
	ctrl := &fakeController{}
	h := newApprovalHandlers(&fakeConfigStore{}, &fakeMemberships{}, ctrl, &fakeSyncCreator{}, &fakeEnqueuer{})

	_, err := h.QueueOperation(context.Background(), &queue.Job{
		Payload: map[string]interface{}{"queue": "syncs", "op": "cancel", "job_id": "sync-sj_9"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sync-sj_9"}, ctrl.cancelled)

	result, err := h.QueueOperation(context.Background(), &queue.Job{
		Payload: map[string]interface{}{"queue": "syncs", "op": "promote"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result["promoted"])

	_, err = h.QueueOperation(context.Background(), &queue.Job{
		Payload: map[string]interface{}{"queue": "syncs", "op": "sweep"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ctrl.swept)

	_, err = h.QueueOperation(context.Background(), &queue.Job{
		Payload: map[string]interface{}{"queue": "unknown", "op": "sweep"},
	})
	require.Error(t, err)

	_, err = h.QueueOperation(context.Background(), &queue.Job{
		Payload: map[string]interface{}{"queue": "syncs", "op": "reverse"},
	})
	require.Error(t, err)
}

func TestRegisterCoversAllApprovalTypes(t *testing.T) {
	h := newApprovalHandlers(&fakeConfigStore{}, &fakeMemberships{}, &fakeController{}, &fakeSyncCreator{}, &fakeEnqueuer{})
	r := NewRouter()
	h.Register(r)

	assert.ElementsMatch(t, []string{
		"feature_flag", "environment_config", "integration_sync",
		"user_management", "queue_operation",
	}, r.Types())
}
