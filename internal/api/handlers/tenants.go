package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/db"
)

func (h *Handler) ListTenants(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	tenants, err := h.repo.ListTenants(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list tenants", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tenants": tenants})
}

func (h *Handler) GetTenant(c *gin.Context) {
	t, err := h.repo.GetTenant(c.Request.Context(), c.Param("id"))
	if err == db.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, t)
}

// HardDeleteTenant irreversibly destroys a tenant partition. Deliberately
// a separate endpoint from the soft-delete event path.
func (h *Handler) HardDeleteTenant(c *gin.Context) {
	tenantID := c.Param("id")

	if err := h.manager.HardDelete(c.Request.Context(), tenantID, c.GetString("actor_id")); err != nil {
		h.logger.Error("Hard delete failed", zap.Error(err), zap.String("tenant_id", tenantID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Hard delete failed"})
		return
	}

	h.metrics.RecordTenantDeleted("hard")
	c.JSON(http.StatusOK, gin.H{"deleted": tenantID})
}
