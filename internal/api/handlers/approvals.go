package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/jobs"
)

// EnqueueApproval queues execution of an already-approved change request.
// The job id derives from the approval id, so repeated calls merge into
// one queued execution.
func (h *Handler) EnqueueApproval(c *gin.Context) {
	approvalID := c.Param("id")

	approval, err := h.repo.GetApproval(c.Request.Context(), approvalID)
	if err == db.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Approval not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load approval", zap.Error(err), zap.String("approval_id", approvalID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if approval.Status != db.ApprovalApproved {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "Approval is not in an executable state",
			"status": approval.Status,
		})
		return
	}

	result, err := jobs.AddApprovalJob(c.Request.Context(), h.approvalQueue,
		approval.ID, string(approval.Type), approval.RequestedChanges, approval.Priority)
	if err != nil {
		h.logger.Error("Failed to enqueue approval", zap.Error(err), zap.String("approval_id", approvalID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue"})
		return
	}

	status := http.StatusAccepted
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// GetApprovalHistory returns the append-only transition ledger.
func (h *Handler) GetApprovalHistory(c *gin.Context) {
	approvalID := c.Param("id")

	history, err := h.repo.GetApprovalHistory(c.Request.Context(), approvalID)
	if err != nil {
		h.logger.Error("Failed to load approval history", zap.Error(err), zap.String("approval_id", approvalID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}
