package handlers

import (
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/jobs"
	"github.com/opsforge/tenantcore/internal/metrics"
	"github.com/opsforge/tenantcore/internal/queue"
	"github.com/opsforge/tenantcore/internal/tenant"
)

type Handler struct {
	repo          *db.Repository
	manager       *tenant.Manager
	metrics       *metrics.Collector
	approvalQueue jobs.Enqueuer
	syncQueue     jobs.Enqueuer
	queues        map[string]*queue.RedisQueue
	logger        *zap.Logger
}

func NewHandler(repo *db.Repository, manager *tenant.Manager, m *metrics.Collector, approvalQueue, syncQueue jobs.Enqueuer, queues map[string]*queue.RedisQueue, logger *zap.Logger) *Handler {
	return &Handler{
		repo:          repo,
		manager:       manager,
		metrics:       m,
		approvalQueue: approvalQueue,
		syncQueue:     syncQueue,
		queues:        queues,
		logger:        logger,
	}
}
