package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsforge/tenantcore/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// ApprovalJobID derives the queue job id from the approval's own persisted
// id. This derivation is the system's idempotency boundary.
func ApprovalJobID(approvalID string) string {
	return "approval-" + approvalID
}

func SyncJobID(syncJobID string) string {
	return "sync-" + syncJobID
}

// EnqueueResult reports whether the call enqueued new work or merged into
// an already-queued job for the same record.
type EnqueueResult struct {
	JobID     string `json:"job_id"`
	Duplicate bool   `json:"duplicate"`
}

// AddApprovalJob queues execution of an approved change request.
func AddApprovalJob(ctx context.Context, q Enqueuer, approvalID, approvalType string, requestedChanges map[string]interface{}, priority int) (*EnqueueResult, error) {
	job := &queue.Job{
		ID:         ApprovalJobID(approvalID),
		Type:       approvalType,
		RefID:      approvalID,
		Payload:    requestedChanges,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
	}
	return add(ctx, q, job)
}

// AddSyncJob queues one sync run against an integration. The AdminSyncJob
// row must exist (status pending) before the job is queued.
func AddSyncJob(ctx context.Context, q Enqueuer, syncJobID, provider, integrationID, syncType string, priority int) (*EnqueueResult, error) {
	job := &queue.Job{
		ID:    SyncJobID(syncJobID),
		Type:  "sync:" + provider,
		RefID: syncJobID,
		Payload: map[string]interface{}{
			"integration_id": integrationID,
			"sync_type":      syncType,
		},
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
	}
	return add(ctx, q, job)
}

func add(ctx context.Context, q Enqueuer, job *queue.Job) (*EnqueueResult, error) {
	err := q.Enqueue(ctx, job)
	if errors.Is(err, queue.ErrDuplicateJob) {
		return &EnqueueResult{JobID: job.ID, Duplicate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", job.ID, err)
	}
	return &EnqueueResult{JobID: job.ID}, nil
}
