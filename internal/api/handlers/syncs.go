package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/jobs"
)

type triggerSyncRequest struct {
	SyncType string `json:"sync_type"`
	Priority int    `json:"priority"`
}

// TriggerSync creates a pending sync run for an integration and queues it.
func (h *Handler) TriggerSync(c *gin.Context) {
	integrationID := c.Param("id")

	var req triggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.SyncType == "" {
		req.SyncType = "full"
	}

	ctx := c.Request.Context()

	integ, err := h.repo.GetIntegration(ctx, integrationID)
	if err == db.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Integration not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load integration", zap.Error(err), zap.String("integration_id", integrationID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !integ.Enabled {
		c.JSON(http.StatusConflict, gin.H{"error": "Integration is disabled"})
		return
	}

	syncJob := &db.AdminSyncJob{
		ID:            "sj_" + uuid.NewString(),
		IntegrationID: integ.ID,
		SyncType:      req.SyncType,
		Status:        db.SyncPending,
		TriggeredBy:   c.GetString("actor_id"),
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.repo.CreateSyncJob(ctx, syncJob); err != nil {
		h.logger.Error("Failed to create sync job", zap.Error(err), zap.String("integration_id", integrationID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create sync job"})
		return
	}

	result, err := jobs.AddSyncJob(ctx, h.syncQueue, syncJob.ID, integ.Provider, integ.ID, req.SyncType, req.Priority)
	if err != nil {
		h.logger.Error("Failed to enqueue sync job", zap.Error(err), zap.String("sync_job_id", syncJob.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"sync_job_id": syncJob.ID,
		"job_id":      result.JobID,
		"duplicate":   result.Duplicate,
	})
}

// GetSyncJob returns one sync run's status record.
func (h *Handler) GetSyncJob(c *gin.Context) {
	job, err := h.repo.GetSyncJob(c.Request.Context(), c.Param("id"))
	if err == db.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sync job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, job)
}
