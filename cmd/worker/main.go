package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/audit"
	"github.com/opsforge/tenantcore/internal/config"
	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/integrations"
	"github.com/opsforge/tenantcore/internal/jobs"
	"github.com/opsforge/tenantcore/internal/metrics"
	"github.com/opsforge/tenantcore/internal/provisioner"
	"github.com/opsforge/tenantcore/internal/queue"
	"github.com/opsforge/tenantcore/internal/tenant"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	database, err := db.NewConnection(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	redisClient := queue.NewRedisClient(cfg.Redis.URL)
	defer redisClient.Close()

	retention := queue.RetentionPolicy{
		CompletedAge:   cfg.Queues.Retention.CompletedAge,
		CompletedCount: int64(cfg.Queues.Retention.CompletedCount),
		FailedAge:      cfg.Queues.Retention.FailedAge,
		FailedCount:    int64(cfg.Queues.Retention.FailedCount),
	}
	approvalQueue := queue.NewRedisQueue(redisClient, "approvals", retention)
	syncQueue := queue.NewRedisQueue(redisClient, "syncs", retention)

	repo := db.NewRepository(database)
	recorder := audit.NewRecorder(database, logger)
	prov := provisioner.New(database, logger)
	manager := tenant.NewManager(repo, prov, recorder, logger,
		cfg.Trial.Days, db.SubscriptionTier(cfg.Trial.DefaultTier))
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Approval queue routing
	approvalRouter := jobs.NewRouter()
	approvalHandlers := jobs.NewApprovalHandlers(repo, manager,
		map[string]jobs.QueueController{
			approvalQueue.Name(): approvalQueue,
			syncQueue.Name():     syncQueue,
		},
		repo, syncQueue)
	approvalHandlers.Register(approvalRouter)

	// Sync queue routing
	syncRouter := jobs.NewRouter()
	syncHandlers := jobs.NewSyncHandlers(repo, integrations.NewClient(logger))
	syncHandlers.Register(syncRouter)

	approvalPool := jobs.NewPool(approvalQueue, approvalRouter,
		jobs.NewApprovalExecutor(repo, recorder), collector, logger, cfg.Queues.Approval)
	syncPool := jobs.NewPool(syncQueue, syncRouter,
		jobs.NewSyncExecutor(repo, recorder), collector, logger, cfg.Queues.Sync)

	maintainer := jobs.NewMaintainer(
		[]*queue.RedisQueue{approvalQueue, syncQueue}, collector, logger)

	ctx, cancel := context.WithCancel(context.Background())

	go approvalPool.Start(ctx)
	go syncPool.Start(ctx)
	go maintainer.Run(ctx, time.Second, cfg.Queues.Retention.SweepInterval)

	logger.Info("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	logger.Info("Worker exited")
}
