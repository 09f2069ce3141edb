package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/api"
	"github.com/opsforge/tenantcore/internal/audit"
	"github.com/opsforge/tenantcore/internal/config"
	"github.com/opsforge/tenantcore/internal/db"
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

	if err := runMigrations(cfg); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

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

	server := api.NewServer(cfg, repo, manager, collector, approvalQueue, syncQueue, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func runMigrations(cfg *config.Config) error {
	m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
