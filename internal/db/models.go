package db

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type SubscriptionTier string

const (
	TierStarter      SubscriptionTier = "starter"
	TierProfessional SubscriptionTier = "professional"
	TierEnterprise   SubscriptionTier = "enterprise"
)

type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
	RoleViewer MemberRole = "viewer"
)

type ApprovalType string

const (
	ApprovalFeatureFlag     ApprovalType = "feature_flag"
	ApprovalEnvConfig       ApprovalType = "environment_config"
	ApprovalIntegrationSync ApprovalType = "integration_sync"
	ApprovalUserManagement  ApprovalType = "user_management"
	ApprovalQueueOperation  ApprovalType = "queue_operation"
)

type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalExecuting ApprovalStatus = "executing"
	ApprovalExecuted  ApprovalStatus = "executed"
	ApprovalFailed    ApprovalStatus = "failed"
)

type SyncJobStatus string

const (
	SyncPending   SyncJobStatus = "pending"
	SyncRunning   SyncJobStatus = "running"
	SyncCompleted SyncJobStatus = "completed"
	SyncFailed    SyncJobStatus = "failed"
)

type Tenant struct {
	ID                 string             `json:"id" db:"id"`
	Name               string             `json:"name" db:"name"`
	Slug               string             `json:"slug" db:"slug"`
	SchemaName         string             `json:"schema_name" db:"schema_name"`
	ClerkOrgID         string             `json:"clerk_org_id" db:"clerk_org_id"`
	SubscriptionTier   SubscriptionTier   `json:"subscription_tier" db:"subscription_tier"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty" db:"trial_ends_at"`
	MaxUsers           int                `json:"max_users" db:"max_users"`
	MaxEntities        int                `json:"max_entities" db:"max_entities"`
	Features           FeatureMap         `json:"features" db:"features"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
	DeletedAt          *time.Time         `json:"deleted_at,omitempty" db:"deleted_at"`
}

type TenantUser struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	ClerkUserID string     `json:"clerk_user_id" db:"clerk_user_id"`
	Role        MemberRole `json:"role" db:"role"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type AdminApproval struct {
	ID               string         `json:"id" db:"id"`
	Type             ApprovalType   `json:"type" db:"type"`
	Status           ApprovalStatus `json:"status" db:"status"`
	Priority         int            `json:"priority" db:"priority"`
	RequestedBy      string         `json:"requested_by" db:"requested_by"`
	ApprovedBy       *string        `json:"approved_by,omitempty" db:"approved_by"`
	RequestedChanges JSONB          `json:"requested_changes" db:"requested_changes"`
	ExecutionResult  JSONB          `json:"execution_result,omitempty" db:"execution_result"`
	ExecutionError   *string        `json:"execution_error,omitempty" db:"execution_error"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

type AdminApprovalHistory struct {
	ID         string         `json:"id" db:"id"`
	ApprovalID string         `json:"approval_id" db:"approval_id"`
	FromStatus ApprovalStatus `json:"from_status" db:"from_status"`
	ToStatus   ApprovalStatus `json:"to_status" db:"to_status"`
	ChangedBy  string         `json:"changed_by" db:"changed_by"`
	Comment    string         `json:"comment" db:"comment"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

type AdminIntegration struct {
	ID                  string     `json:"id" db:"id"`
	TenantID            string     `json:"tenant_id" db:"tenant_id"`
	Provider            string     `json:"provider" db:"provider"`
	Name                string     `json:"name" db:"name"`
	Enabled             bool       `json:"enabled" db:"enabled"`
	Config              JSONB      `json:"config" db:"config"`
	LastSyncStatus      *string    `json:"last_sync_status,omitempty" db:"last_sync_status"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
	LastError           *string    `json:"last_error,omitempty" db:"last_error"`
	ConsecutiveFailures int        `json:"consecutive_failures" db:"consecutive_failures"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

type AdminSyncJob struct {
	ID               string        `json:"id" db:"id"`
	IntegrationID    string        `json:"integration_id" db:"integration_id"`
	SyncType         string        `json:"sync_type" db:"sync_type"`
	Status           SyncJobStatus `json:"status" db:"status"`
	TriggeredBy      string        `json:"triggered_by" db:"triggered_by"`
	StartedAt        *time.Time    `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs       *int64        `json:"duration_ms,omitempty" db:"duration_ms"`
	ProcessedRecords int           `json:"processed_records" db:"processed_records"`
	SuccessCount     int           `json:"success_count" db:"success_count"`
	ErrorCount       int           `json:"error_count" db:"error_count"`
	Result           JSONB         `json:"result,omitempty" db:"result"`
	Errors           JSONB         `json:"errors,omitempty" db:"errors"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

type AuditLog struct {
	ID           string    `json:"id" db:"id"`
	TenantID     *string   `json:"tenant_id,omitempty" db:"tenant_id"`
	UserID       *string   `json:"user_id,omitempty" db:"user_id"`
	Action       string    `json:"action" db:"action"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	ResourceID   string    `json:"resource_id" db:"resource_id"`
	Metadata     JSONB     `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Custom types for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	return json.Unmarshal(value.([]byte), j)
}

type FeatureMap map[string]bool

func (f FeatureMap) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

func (f *FeatureMap) Scan(value interface{}) error {
	if value == nil {
		*f = make(map[string]bool)
		return nil
	}
	return json.Unmarshal(value.([]byte), f)
}

type EnvironmentConfig struct {
	ID          string    `json:"id" db:"id"`
	Environment string    `json:"environment" db:"environment"`
	Key         string    `json:"key" db:"key"`
	Value       string    `json:"value" db:"value"`
	UpdatedBy   string    `json:"updated_by" db:"updated_by"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
