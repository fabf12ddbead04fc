package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"spendsync/internal/backend"
	"spendsync/internal/cli"
	apphttp "spendsync/internal/http"
	"spendsync/internal/insights"
	applog "spendsync/internal/log"
	"spendsync/internal/summary"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
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

	var advisor apphttp.Advisor
	if cfg.GeminiAPIKey != "" {
		client, err := insights.NewFromAPIKey(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize insights client", err)
		}
		advisor = client
		logger.Info("Insights enabled", "model", cfg.GeminiModel)
	} else {
		logger.Info("Insights disabled - no GEMINI_API_KEY provided")
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Reconciler: be.Reconciler,
		Store:      be.Store,
		Summary:    summary.NewEngine(be.Store, cfg.TimeLocation()),
		Budgets:    be.Budgets,
		Advisor:    advisor,
		Logger:     logger.WithComponent(applog.ComponentHTTP),
		Location:   cfg.TimeLocation(),
	})
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := be.Cleanup(ctx); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting spendsync server",
		"port", cfg.Port,
		"ledger", backendCfg.Ledger,
		"amqp", be.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
