package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slackmod/internal/analytics"
	"slackmod/internal/audit"
	"slackmod/internal/config"
	"slackmod/internal/moderator"
	"slackmod/internal/platform"
	"slackmod/internal/server"
	"slackmod/internal/storage"
	"slackmod/internal/tracker"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	if err := store.CleanupAuditLogs(context.Background(), cfg.RetentionDays); err != nil {
		logger.Warn("audit cleanup failed", zap.Error(err))
	}

	auditLogger := audit.NewLogger(store, logger)
	analyticsSvc := analytics.New(store)
	rateTracker := tracker.New(store, cfg.Tracker, logger)
	slackClient := platform.New(&cfg, logger)
	mod := moderator.New(rateTracker, slackClient, auditLogger, logger, cfg.AdminUserID)
	srv := server.New(mod, analyticsSvc, logger, cfg.Health.Enabled)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}
