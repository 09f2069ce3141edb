package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QueueStats exposes per-queue counters for monitoring and CLI use.
func (h *Handler) QueueStats(c *gin.Context) {
	name := c.Param("name")

	q, ok := h.queues[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown queue"})
		return
	}

	stats, err := q.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read queue stats", zap.Error(err), zap.String("queue", name))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read stats"})
		return
	}

	h.metrics.SetQueueDepth(name, stats)
	c.JSON(http.StatusOK, stats)
}

// CancelQueuedJob removes a still-waiting job. Claimed jobs run to
// completion; they cannot be cancelled mid-flight.
func (h *Handler) CancelQueuedJob(c *gin.Context) {
	name := c.Param("name")
	jobID := c.Param("jobId")

	q, ok := h.queues[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown queue"})
		return
	}

	if err := q.Cancel(c.Request.Context(), jobID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": jobID})
}
