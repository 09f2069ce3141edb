package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsforge/tenantcore/internal/audit"
	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/queue"
)

// ErrPrecondition marks a job whose status record is not in the expected
// state at dequeue time. Fatal and non-retryable: the precondition having
// changed means someone else already decided this job's fate.
var ErrPrecondition = errors.New("status precondition mismatch")

const systemActor = "system:queue"

// Executor binds the queue engine to one kind of status record. The worker
// that owns a job is the only writer of that record for the duration of
// the attempt.
type Executor interface {
	// CheckPrecondition verifies the record is in the expected state.
	// firstAttempt distinguishes the initial expected state from the
	// in-progress state a retry legitimately observes.
	CheckPrecondition(ctx context.Context, job *queue.Job, firstAttempt bool) error
	MarkStarted(ctx context.Context, job *queue.Job) error
	MarkSucceeded(ctx context.Context, job *queue.Job, result map[string]interface{}) error
	MarkFailed(ctx context.Context, job *queue.Job, execErr string) error
}

type Recorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// ApprovalStore is the repository slice the approval executor writes through.
type ApprovalStore interface {
	GetApproval(ctx context.Context, id string) (*db.AdminApproval, error)
	MarkApprovalExecuting(ctx context.Context, id string) error
	MarkApprovalExecuted(ctx context.Context, id string, result db.JSONB) error
	MarkApprovalFailed(ctx context.Context, id string, execErr string) error
	AppendApprovalHistory(ctx context.Context, h *db.AdminApprovalHistory) error
}

type ApprovalExecutor struct {
	store    ApprovalStore
	recorder Recorder
}

func NewApprovalExecutor(store ApprovalStore, recorder Recorder) *ApprovalExecutor {
	return &ApprovalExecutor{store: store, recorder: recorder}
}

func (e *ApprovalExecutor) CheckPrecondition(ctx context.Context, job *queue.Job, firstAttempt bool) error {
	a, err := e.store.GetApproval(ctx, job.RefID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: approval %s: %v", ErrPrecondition, job.RefID, err)
		}
		// A read failure says nothing about the record's state; let the
		// retry cycle take another look.
		return fmt.Errorf("failed to load approval %s: %w", job.RefID, err)
	}

	expected := db.ApprovalApproved
	if !firstAttempt {
		expected = db.ApprovalExecuting
	}
	if a.Status != expected {
		return fmt.Errorf("%w: approval %s is %q, expected %q", ErrPrecondition, a.ID, a.Status, expected)
	}
	return nil
}

func (e *ApprovalExecutor) MarkStarted(ctx context.Context, job *queue.Job) error {
	if err := e.store.MarkApprovalExecuting(ctx, job.RefID); err != nil {
		return fmt.Errorf("failed to mark approval %s executing: %w", job.RefID, err)
	}
	return e.appendHistory(ctx, job.RefID, db.ApprovalApproved, db.ApprovalExecuting, "execution started")
}

func (e *ApprovalExecutor) MarkSucceeded(ctx context.Context, job *queue.Job, result map[string]interface{}) error {
	if err := e.store.MarkApprovalExecuted(ctx, job.RefID, db.JSONB(result)); err != nil {
		return fmt.Errorf("failed to mark approval %s executed: %w", job.RefID, err)
	}
	if err := e.appendHistory(ctx, job.RefID, db.ApprovalExecuting, db.ApprovalExecuted, "execution succeeded"); err != nil {
		return err
	}

	e.recorder.Record(ctx, audit.Entry{
		Action:       "approval.executed",
		ResourceType: "admin_approval",
		ResourceID:   job.RefID,
		Metadata:     map[string]interface{}{"type": job.Type, "attempts": job.Attempts},
	})
	return nil
}

func (e *ApprovalExecutor) MarkFailed(ctx context.Context, job *queue.Job, execErr string) error {
	if err := e.store.MarkApprovalFailed(ctx, job.RefID, execErr); err != nil {
		return fmt.Errorf("failed to mark approval %s failed: %w", job.RefID, err)
	}
	if err := e.appendHistory(ctx, job.RefID, db.ApprovalExecuting, db.ApprovalFailed, execErr); err != nil {
		return err
	}

	e.recorder.Record(ctx, audit.Entry{
		Action:       "approval.failed",
		ResourceType: "admin_approval",
		ResourceID:   job.RefID,
		Metadata:     map[string]interface{}{"type": job.Type, "attempts": job.Attempts, "error": execErr},
	})
	return nil
}

func (e *ApprovalExecutor) appendHistory(ctx context.Context, approvalID string, from, to db.ApprovalStatus, comment string) error {
	h := &db.AdminApprovalHistory{
		ID:         "aph_" + uuid.NewString(),
		ApprovalID: approvalID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  systemActor,
		Comment:    comment,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.AppendApprovalHistory(ctx, h); err != nil {
		return fmt.Errorf("failed to append approval history: %w", err)
	}
	return nil
}

// SyncStore is the repository slice the sync executor writes through.
type SyncStore interface {
	GetSyncJob(ctx context.Context, id string) (*db.AdminSyncJob, error)
	MarkSyncJobRunning(ctx context.Context, id string) error
	MarkSyncJobCompleted(ctx context.Context, id string, out db.SyncJobOutcome) error
	MarkSyncJobFailed(ctx context.Context, id string, errs db.JSONB) error
	RecordIntegrationSyncSuccess(ctx context.Context, id string) error
	RecordIntegrationSyncFailure(ctx context.Context, id, lastError string) error
}

type SyncExecutor struct {
	store    SyncStore
	recorder Recorder
}

func NewSyncExecutor(store SyncStore, recorder Recorder) *SyncExecutor {
	return &SyncExecutor{store: store, recorder: recorder}
}

func (e *SyncExecutor) CheckPrecondition(ctx context.Context, job *queue.Job, firstAttempt bool) error {
	j, err := e.store.GetSyncJob(ctx, job.RefID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: sync job %s: %v", ErrPrecondition, job.RefID, err)
		}
		return fmt.Errorf("failed to load sync job %s: %w", job.RefID, err)
	}

	expected := db.SyncPending
	if !firstAttempt {
		expected = db.SyncRunning
	}
	if j.Status != expected {
		return fmt.Errorf("%w: sync job %s is %q, expected %q", ErrPrecondition, j.ID, j.Status, expected)
	}
	return nil
}

func (e *SyncExecutor) MarkStarted(ctx context.Context, job *queue.Job) error {
	if err := e.store.MarkSyncJobRunning(ctx, job.RefID); err != nil {
		return fmt.Errorf("failed to mark sync job %s running: %w", job.RefID, err)
	}
	return nil
}

func (e *SyncExecutor) MarkSucceeded(ctx context.Context, job *queue.Job, result map[string]interface{}) error {
	out := db.SyncJobOutcome{
		ProcessedRecords: intFromResult(result, "processed_records"),
		SuccessCount:     intFromResult(result, "success_count"),
		ErrorCount:       intFromResult(result, "error_count"),
		Result:           db.JSONB(result),
	}
	if err := e.store.MarkSyncJobCompleted(ctx, job.RefID, out); err != nil {
		return fmt.Errorf("failed to mark sync job %s completed: %w", job.RefID, err)
	}

	j, err := e.store.GetSyncJob(ctx, job.RefID)
	if err != nil {
		return fmt.Errorf("failed to reload sync job %s: %w", job.RefID, err)
	}
	if err := e.store.RecordIntegrationSyncSuccess(ctx, j.IntegrationID); err != nil {
		return fmt.Errorf("failed to reset integration failure count: %w", err)
	}

	e.recorder.Record(ctx, audit.Entry{
		Action:       "sync.completed",
		ResourceType: "admin_sync_job",
		ResourceID:   job.RefID,
		Metadata: map[string]interface{}{
			"integration_id": j.IntegrationID,
			"attempts":       job.Attempts,
			"processed":      out.ProcessedRecords,
		},
	})
	return nil
}

func (e *SyncExecutor) MarkFailed(ctx context.Context, job *queue.Job, execErr string) error {
	if err := e.store.MarkSyncJobFailed(ctx, job.RefID, db.JSONB{"message": execErr, "attempts": job.Attempts}); err != nil {
		return fmt.Errorf("failed to mark sync job %s failed: %w", job.RefID, err)
	}

	j, err := e.store.GetSyncJob(ctx, job.RefID)
	if err != nil {
		return fmt.Errorf("failed to reload sync job %s: %w", job.RefID, err)
	}
	if err := e.store.RecordIntegrationSyncFailure(ctx, j.IntegrationID, execErr); err != nil {
		return fmt.Errorf("failed to record integration failure: %w", err)
	}

	e.recorder.Record(ctx, audit.Entry{
		Action:       "sync.failed",
		ResourceType: "admin_sync_job",
		ResourceID:   job.RefID,
		Metadata: map[string]interface{}{
			"integration_id": j.IntegrationID,
			"attempts":       job.Attempts,
			"error":          execErr,
		},
	})
	return nil
}

func intFromResult(result map[string]interface{}, key string) int {
	switch v := result[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
