package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/finbridge/banklink/internal/alert"
	"github.com/finbridge/banklink/internal/config"
	"github.com/finbridge/banklink/internal/persistence/postgres"
	"github.com/finbridge/banklink/internal/provider"
	"github.com/finbridge/banklink/internal/provider/nordigen"
	"github.com/finbridge/banklink/internal/provider/saltedge"
	"github.com/finbridge/banklink/internal/quota"
	"github.com/finbridge/banklink/internal/sync"
	"github.com/finbridge/banklink/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting banklink sync daemon",
		"env", cfg.Primary.Env,
		"default_provider", cfg.Providers.Default,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	store, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	saltEdge := provider.NewRetryProvider(saltedge.NewClient(cfg.Providers.SaltEdge), cfg.Retry)
	nordigenClient := provider.NewRetryProvider(nordigen.NewClient(cfg.Providers.Nordigen), cfg.Retry)
	registry := provider.NewRegistry(cfg.Providers.Default, saltEdge, nordigenClient)

	for _, name := range registry.Names() {
		p, _ := registry.Get(name)
		if err := p.Authenticate(ctx); err != nil {
			logger.Error("provider health probe failed", "provider", name, "error", err)
			os.Exit(1)
		}
		logger.Info("provider authenticated", "provider", name)
	}

	notifier := alert.NewEmailNotifier(cfg.Alert, logger)
	quotas := quota.NewMonitor(cfg.Quota.Limits, cfg.Quota.AlertThreshold, notifier, logger)

	counters, err := store.ReadQuotaCounters(ctx)
	if err != nil {
		logger.Error("failed to read quota counters", "error", err)
		os.Exit(1)
	}
	quotas.Seed(counters)
	for providerName, count := range counters {
		logger.Info("seeded quota counter", "provider", providerName, "count", count)
	}

	orchestrator := sync.NewOrchestrator(registry, store, quotas, cfg.Sync, logger)

	syncWorker := worker.NewSyncWorker(orchestrator, store, cfg.Sync.Schedule, cfg.Sync.BatchSize, logger)
	expiryWorker := worker.NewExpiryWorker(orchestrator, store, cfg.Sync.ExpiryInterval, cfg.Sync.BatchSize, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go func() {
		if err := syncWorker.Start(workerCtx); err != nil {
			logger.Error("sync worker failed to start", "error", err)
			os.Exit(1)
		}
	}()
	go expiryWorker.Start(workerCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	cancelWorkers()

	logger.Info("sync daemon exited")
}
