package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/queue"
	"github.com/opsforge/tenantcore/internal/tenant"
)

// TenantConfigStore is the repository slice the feature-flag and
// environment-config handlers write through.
type TenantConfigStore interface {
	SetTenantFeature(ctx context.Context, tenantID, flag string, enabled bool) error
	UpsertEnvironmentConfig(ctx context.Context, c *db.EnvironmentConfig) error
}

// MembershipManager applies user-management changes; *tenant.Manager
// satisfies it.
type MembershipManager interface {
	HandleMembershipChanged(ctx context.Context, orgID, userID string, role db.MemberRole, op tenant.MembershipOp) error
}

// QueueController is the admin surface of one queue.
type QueueController interface {
	Cancel(ctx context.Context, jobID string) error
	PromoteDelayed(ctx context.Context) (int, error)
	Sweep(ctx context.Context) error
}

// SyncJobCreator is the repository slice the integration-sync approval
// handler needs to schedule a sync run.
type SyncJobCreator interface {
	GetIntegration(ctx context.Context, id string) (*db.AdminIntegration, error)
	GetSyncJob(ctx context.Context, id string) (*db.AdminSyncJob, error)
	CreateSyncJob(ctx context.Context, j *db.AdminSyncJob) error
}

// ApprovalHandlers executes the fixed set of administrator-approved
// operation types. Handlers return a result or fail; they never write
// approval status.
type ApprovalHandlers struct {
	config      TenantConfigStore
	memberships MembershipManager
	queues      map[string]QueueController
	syncStore   SyncJobCreator
	syncQueue   Enqueuer
}

func NewApprovalHandlers(config TenantConfigStore, memberships MembershipManager, queues map[string]QueueController, syncStore SyncJobCreator, syncQueue Enqueuer) *ApprovalHandlers {
	return &ApprovalHandlers{
		config:      config,
		memberships: memberships,
		queues:      queues,
		syncStore:   syncStore,
		syncQueue:   syncQueue,
	}
}

// Register installs every approval operation type on the router.
func (h *ApprovalHandlers) Register(r *Router) {
	r.Register(string(db.ApprovalFeatureFlag), h.FeatureFlag)
	r.Register(string(db.ApprovalEnvConfig), h.EnvironmentConfig)
	r.Register(string(db.ApprovalIntegrationSync), h.IntegrationSync)
	r.Register(string(db.ApprovalUserManagement), h.UserManagement)
	r.Register(string(db.ApprovalQueueOperation), h.QueueOperation)
}

func (h *ApprovalHandlers) FeatureFlag(ctx context.Context, job *queue.Job) (map[string]interface{}, error) {
	tenantID := stringField(job.Payload, "tenant_id")
	flag := stringField(job.Payload, "flag")
	if tenantID == "" || flag == "" {
		return nil, fmt.Errorf("feature flag change requires tenant_id and flag")
	}
	enabled, _ := job.Payload["enabled"].(bool)

	if err := h.config.SetTenantFeature(ctx, tenantID, flag, enabled); err != nil {
		return nil, fmt.Errorf("failed to set feature %q on tenant %s: %w", flag, tenantID, err)
	}

	return map[string]interface{}{
		"tenant_id": tenantID,
		"flag":      flag,
		"enabled":   enabled,
	}, nil
}

func (h *ApprovalHandlers) EnvironmentConfig(ctx context.Context, job *queue.Job) (map[string]interface{}, error) {
	key := stringField(job.Payload, "key")
	env := stringField(job.Payload, "environment")
	if key == "" || env == "" {
		return nil, fmt.Errorf("environment config change requires key and environment")
	}

	cfg := &db.EnvironmentConfig{
		ID:          "env_" + uuid.NewString(),
		Environment: env,
		Key:         key,
		Value:       stringField(job.Payload, "value"),
		UpdatedBy:   systemActor,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := h.config.UpsertEnvironmentConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to upsert config %s/%s: %w", env, key, err)
	}

	return map[string]interface{}{
		"environment": env,
		"key":         key,
		"value":       cfg.Value,
	}, nil
}

// IntegrationSync schedules a sync run for the named integration: a
// pending AdminSyncJob row first, then the queue entry derived from it.
func (h *ApprovalHandlers) IntegrationSync(ctx context.Context, job *queue.Job) (map[string]interface{}, error) {
	integrationID := stringField(job.Payload, "integration_id")
	if integrationID == "" {
		return nil, fmt.Errorf("integration sync requires integration_id")
	}
	syncType := stringField(job.Payload, "sync_type")
	if syncType == "" {
		syncType = "full"
	}

	integ, err := h.syncStore.GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("integration %s not found: %w", integrationID, err)
	}

	// The row id is derived from the approval so a retry after a partial
	// failure (row written, enqueue lost) picks up the same row instead
	// of minting an orphan.
	syncJob, err := h.syncStore.GetSyncJob(ctx, "sj_"+job.RefID)
	if errors.Is(err, db.ErrNotFound) {
		syncJob = &db.AdminSyncJob{
			ID:            "sj_" + job.RefID,
			IntegrationID: integ.ID,
			SyncType:      syncType,
			Status:        db.SyncPending,
			TriggeredBy:   "approval:" + job.RefID,
			CreatedAt:     time.Now().UTC(),
		}
		if err := h.syncStore.CreateSyncJob(ctx, syncJob); err != nil {
			return nil, fmt.Errorf("failed to create sync job: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up sync job for approval %s: %w", job.RefID, err)
	}

	res, err := AddSyncJob(ctx, h.syncQueue, syncJob.ID, integ.Provider, integ.ID, syncType, job.Priority)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"sync_job_id":    syncJob.ID,
		"queue_job_id":   res.JobID,
		"integration_id": integ.ID,
		"provider":       integ.Provider,
	}, nil
}

func (h *ApprovalHandlers) UserManagement(ctx context.Context, job *queue.Job) (map[string]interface{}, error) {
	orgID := stringField(job.Payload, "org_id")
	userID := stringField(job.Payload, "user_id")
	op := tenant.MembershipOp(stringField(job.Payload, "op"))
	if orgID == "" || userID == "" || op == "" {
		return nil, fmt.Errorf("user management requires org_id, user_id and op")
	}
	role := db.MemberRole(stringField(job.Payload, "role"))

	if err := h.memberships.HandleMembershipChanged(ctx, orgID, userID, role, op); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"org_id":  orgID,
		"user_id": userID,
		"op":      string(op),
		"role":    string(role),
	}, nil
}

func (h *ApprovalHandlers) QueueOperation(ctx context.Context, job *queue.Job) (map[string]interface{}, error) {
	queueName := stringField(job.Payload, "queue")
	op := stringField(job.Payload, "op")

	q, ok := h.queues[queueName]
	if !ok {
		return nil, fmt.Errorf("unknown queue %q", queueName)
	}

	switch op {
	case "cancel":
		jobID := stringField(job.Payload, "job_id")
		if jobID == "" {
			return nil, fmt.Errorf("queue cancel requires job_id")
		}
		if err := q.Cancel(ctx, jobID); err != nil {
			return nil, fmt.Errorf("failed to cancel %s on %s: %w", jobID, queueName, err)
		}
		return map[string]interface{}{"queue": queueName, "op": op, "job_id": jobID}, nil
	case "promote":
		n, err := q.PromoteDelayed(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"queue": queueName, "op": op, "promoted": n}, nil
	case "sweep":
		if err := q.Sweep(ctx); err != nil {
			return nil, err
		}
		return map[string]interface{}{"queue": queueName, "op": op}, nil
	default:
		return nil, fmt.Errorf("unknown queue operation %q", op)
	}
}

func stringField(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}
