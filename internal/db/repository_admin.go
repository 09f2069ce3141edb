package db

import (
	"context"
	"database/sql"
	"time"
)

// AdminApproval operations. Status transitions are only written by the
// queue worker that owns the job; handlers never call these.

func (r *Repository) GetApproval(ctx context.Context, id string) (*AdminApproval, error) {
	var a AdminApproval
	query := `SELECT * FROM admin_approvals WHERE id = $1`
	err := r.db.GetContext(ctx, &a, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) MarkApprovalExecuting(ctx context.Context, id string) error {
	query := `UPDATE admin_approvals SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, ApprovalExecuting, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *Repository) MarkApprovalExecuted(ctx context.Context, id string, result JSONB) error {
	query := `
        UPDATE admin_approvals SET
            status = $2,
            execution_result = $3,
            execution_error = NULL,
            updated_at = $4
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, ApprovalExecuted, result, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *Repository) MarkApprovalFailed(ctx context.Context, id string, execErr string) error {
	query := `
        UPDATE admin_approvals SET
            status = $2,
            execution_error = $3,
            updated_at = $4
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, ApprovalFailed, execErr, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *Repository) AppendApprovalHistory(ctx context.Context, h *AdminApprovalHistory) error {
	query := `
        INSERT INTO admin_approval_history (
            id, approval_id, from_status, to_status, changed_by, comment, created_at
        ) VALUES (
            :id, :approval_id, :from_status, :to_status, :changed_by, :comment, :created_at
        )`
	_, err := r.db.NamedExecContext(ctx, query, h)
	return err
}

func (r *Repository) GetApprovalHistory(ctx context.Context, approvalID string) ([]*AdminApprovalHistory, error) {
	rows := []*AdminApprovalHistory{}
	query := `SELECT * FROM admin_approval_history WHERE approval_id = $1 ORDER BY created_at`
	err := r.db.SelectContext(ctx, &rows, query, approvalID)
	return rows, err
}

// AdminIntegration operations

func (r *Repository) GetIntegration(ctx context.Context, id string) (*AdminIntegration, error) {
	var i AdminIntegration
	query := `SELECT * FROM admin_integrations WHERE id = $1`
	err := r.db.GetContext(ctx, &i, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *Repository) RecordIntegrationSyncSuccess(ctx context.Context, id string) error {
	query := `
        UPDATE admin_integrations SET
            last_sync_status = 'success',
            last_sync_at = $2,
            last_error = NULL,
            consecutive_failures = 0,
            updated_at = $2
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *Repository) RecordIntegrationSyncFailure(ctx context.Context, id, lastError string) error {
	query := `
        UPDATE admin_integrations SET
            last_sync_status = 'failed',
            last_sync_at = $2,
            last_error = $3,
            consecutive_failures = consecutive_failures + 1,
            updated_at = $2
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), lastError)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

// AdminSyncJob operations

func (r *Repository) CreateSyncJob(ctx context.Context, j *AdminSyncJob) error {
	query := `
        INSERT INTO admin_sync_jobs (
            id, integration_id, sync_type, status, triggered_by,
            processed_records, success_count, error_count, created_at
        ) VALUES (
            :id, :integration_id, :sync_type, :status, :triggered_by,
            :processed_records, :success_count, :error_count, :created_at
        )`
	_, err := r.db.NamedExecContext(ctx, query, j)
	return err
}

func (r *Repository) GetSyncJob(ctx context.Context, id string) (*AdminSyncJob, error) {
	var j AdminSyncJob
	query := `SELECT * FROM admin_sync_jobs WHERE id = $1`
	err := r.db.GetContext(ctx, &j, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repository) MarkSyncJobRunning(ctx context.Context, id string) error {
	query := `UPDATE admin_sync_jobs SET status = $2, started_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, SyncRunning, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

type SyncJobOutcome struct {
	ProcessedRecords int
	SuccessCount     int
	ErrorCount       int
	Result           JSONB
	Errors           JSONB
}

func (r *Repository) MarkSyncJobCompleted(ctx context.Context, id string, out SyncJobOutcome) error {
	query := `
        UPDATE admin_sync_jobs SET
            status = $2,
            completed_at = $3,
            duration_ms = (EXTRACT(EPOCH FROM ($3::timestamptz - started_at)) * 1000)::bigint,
            processed_records = $4,
            success_count = $5,
            error_count = $6,
            result = $7
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, SyncCompleted, time.Now().UTC(),
		out.ProcessedRecords, out.SuccessCount, out.ErrorCount, out.Result)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *Repository) MarkSyncJobFailed(ctx context.Context, id string, errs JSONB) error {
	query := `
        UPDATE admin_sync_jobs SET
            status = $2,
            completed_at = $3,
            duration_ms = (EXTRACT(EPOCH FROM ($3::timestamptz - started_at)) * 1000)::bigint,
            errors = $4
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, SyncFailed, time.Now().UTC(), errs)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}
