package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/db"
)

// Entry is one immutable audit fact. Entries are write-once: nothing in
// this package updates or deletes audit_logs rows.
type Entry struct {
	TenantID     string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]interface{}
}

type Recorder struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewRecorder(dbx *sqlx.DB, logger *zap.Logger) *Recorder {
	return &Recorder{db: dbx, logger: logger}
}

// Record appends an audit entry. A write failure is logged and swallowed:
// audit writes must never block or fail the operation they describe.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	row := &db.AuditLog{
		ID:           "audit_" + uuid.NewString(),
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Metadata:     db.JSONB(e.Metadata),
		CreatedAt:    time.Now().UTC(),
	}
	if e.TenantID != "" {
		row.TenantID = &e.TenantID
	}
	if e.UserID != "" {
		row.UserID = &e.UserID
	}

	query := `
        INSERT INTO audit_logs (
            id, tenant_id, user_id, action, resource_type, resource_id, metadata, created_at
        ) VALUES (
            :id, :tenant_id, :user_id, :action, :resource_type, :resource_id, :metadata, :created_at
        )`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		r.logger.Warn("Failed to write audit entry",
			zap.Error(err),
			zap.String("action", e.Action),
			zap.String("resource_id", e.ResourceID),
		)
	}
}
