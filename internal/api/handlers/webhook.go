package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/tenant"
)

// OrganizationEvent is the signature-verified webhook payload for
// organization and membership lifecycle changes.
type OrganizationEvent struct {
	Type      string `json:"type" binding:"required"`
	ID        string `json:"id" binding:"required"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedBy string `json:"created_by"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

// OrganizationWebhook routes a verified lifecycle event. The event source
// offers no redelivery, so only fatal provisioning failures surface as
// errors; everything else answers 200.
func (h *Handler) OrganizationWebhook(c *gin.Context) {
	var event OrganizationEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		h.metrics.RecordWebhookEvent("invalid", "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
		return
	}

	ctx := c.Request.Context()

	switch event.Type {
	case "organization.created":
		result, err := h.manager.HandleOrganizationCreated(ctx, event.ID, event.Name, event.Slug, event.CreatedBy)
		if err != nil {
			h.logger.Error("Organization provisioning failed",
				zap.Error(err),
				zap.String("clerk_org_id", event.ID),
			)
			h.metrics.RecordWebhookEvent(event.Type, "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Provisioning failed"})
			return
		}
		if !result.AlreadyExists {
			h.metrics.RecordTenantProvisioned()
		}
		h.metrics.RecordWebhookEvent(event.Type, "ok")
		c.JSON(http.StatusOK, gin.H{
			"tenant_id":      result.Tenant.ID,
			"already_exists": result.AlreadyExists,
		})
		return

	case "organization.updated":
		if err := h.manager.HandleOrganizationUpdated(ctx, event.ID, event.Name, event.Slug); err != nil {
			h.logger.Warn("Organization update skipped", zap.Error(err), zap.String("clerk_org_id", event.ID))
			h.metrics.RecordWebhookEvent(event.Type, "skipped")
		} else {
			h.metrics.RecordWebhookEvent(event.Type, "ok")
		}

	case "organization.deleted":
		if err := h.manager.HandleOrganizationDeleted(ctx, event.ID); err != nil {
			h.logger.Warn("Organization delete skipped", zap.Error(err), zap.String("clerk_org_id", event.ID))
			h.metrics.RecordWebhookEvent(event.Type, "skipped")
		} else {
			h.metrics.RecordTenantDeleted("soft")
			h.metrics.RecordWebhookEvent(event.Type, "ok")
		}

	case "membership.created", "membership.updated", "membership.deleted":
		op := membershipOp(event.Type)
		err := h.manager.HandleMembershipChanged(ctx, event.ID, event.UserID, db.MemberRole(event.Role), op)
		if err != nil {
			h.logger.Warn("Membership change skipped",
				zap.Error(err),
				zap.String("clerk_org_id", event.ID),
				zap.String("user_id", event.UserID),
			)
			h.metrics.RecordWebhookEvent(event.Type, "skipped")
		} else {
			h.metrics.RecordWebhookEvent(event.Type, "ok")
		}

	default:
		h.metrics.RecordWebhookEvent(event.Type, "ignored")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func membershipOp(eventType string) tenant.MembershipOp {
	switch eventType {
	case "membership.created":
		return tenant.MembershipAdd
	case "membership.updated":
		return tenant.MembershipUpdate
	default:
		return tenant.MembershipRemove
	}
}
