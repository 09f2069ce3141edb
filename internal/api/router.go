package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/api/handlers"
	"github.com/opsforge/tenantcore/internal/api/middleware"
	"github.com/opsforge/tenantcore/internal/config"
	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/jobs"
	"github.com/opsforge/tenantcore/internal/metrics"
	"github.com/opsforge/tenantcore/internal/queue"
	"github.com/opsforge/tenantcore/internal/tenant"
)

type Server struct {
	Config *config.Config
	Router *gin.Engine
}

func NewServer(cfg *config.Config, repo *db.Repository, manager *tenant.Manager, m *metrics.Collector, approvalQueue, syncQueue *queue.RedisQueue, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	queues := map[string]*queue.RedisQueue{
		approvalQueue.Name(): approvalQueue,
		syncQueue.Name():     syncQueue,
	}

	var approvalEnq jobs.Enqueuer = approvalQueue
	var syncEnq jobs.Enqueuer = syncQueue
	h := handlers.NewHandler(repo, manager, m, approvalEnq, syncEnq, queues, logger)

	server := &Server{Config: cfg, Router: router}
	server.setupRoutes(h, cfg)
	return server
}

func (s *Server) setupRoutes(h *handlers.Handler, cfg *config.Config) {
	s.Router.GET("/health", h.Health)
	s.Router.GET("/ready", h.Ready)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Signature-verified event ingest; no session auth on this path.
	webhooks := s.Router.Group("/webhooks")
	webhooks.Use(middleware.VerifySignature(cfg.Webhook.SigningSecret))
	{
		webhooks.POST("/clerk", h.OrganizationWebhook)
	}

	api := s.Router.Group("/api/v1")
	api.Use(middleware.AuthRequired(cfg.JWT.Secret))
	{
		api.GET("/tenants", h.ListTenants)
		api.GET("/tenants/:id", h.GetTenant)
		api.DELETE("/tenants/:id/hard", h.HardDeleteTenant)

		api.POST("/approvals/:id/enqueue", h.EnqueueApproval)
		api.GET("/approvals/:id/history", h.GetApprovalHistory)

		api.POST("/integrations/:id/sync", h.TriggerSync)
		api.GET("/sync-jobs/:id", h.GetSyncJob)

		api.GET("/queues/:name/stats", h.QueueStats)
		api.DELETE("/queues/:name/jobs/:jobId", h.CancelQueuedJob)
	}
}
