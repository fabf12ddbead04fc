package main

import (
	"context"
	"errors"
	"time"

	"spendsync/internal/backend"
	"spendsync/internal/cli"
	applog "spendsync/internal/log"
	"spendsync/internal/services"
	"spendsync/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting spendsync-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	be, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(startCtx, backendCfg)
	cancelStart()
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}

	recurring := services.NewRecurringProcessor(be.Store, be.Reconciler)
	syncWorker := worker.NewSyncWorker(be.Reconciler, recurring, cfg.SyncBatchSize).WithBudgets(be.Budgets)

	procCfg := services.DefaultSyncProcessorConfig()
	procCfg.PollInterval = cfg.SyncInterval
	procCfg.BatchSize = cfg.SyncBatchSize
	procCfg.Concurrency = cfg.SyncConcurrency
	processor := services.NewSyncProcessor(be.Reconciler, procCfg)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Sync processor stop error", "error", err)
		}
		if err := be.Cleanup(ctx); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	// Push anything left behind by a previous run before serving messages.
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	if err := processor.Start(ctx); err != nil {
		cli.Fatal(logger, "Failed to start sync processor", err)
	}

	go syncWorker.RunRecurring(ctx, cfg.RecurringInterval)
	go syncWorker.RunBudgetRetries(ctx, cfg.SyncInterval)

	if be.Publisher != nil {
		go func() {
			err := be.Publisher.ConsumeRetries(ctx, syncWorker.HandleRetryMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
		logger.Info("Consuming retry messages", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP unavailable - relying on periodic sync only")
	}

	logger.Info("Worker running",
		"sync_interval", cfg.SyncInterval,
		"recurring_interval", cfg.RecurringInterval,
		"ledger", backendCfg.Ledger)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
