package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"costwatch/internal/cache"
	"costwatch/internal/cli"
	apphttp "costwatch/internal/http"
	applog "costwatch/internal/log"
	"costwatch/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	logger.Info("Starting costwatch", "port", cfg.Port, "backend", cfg.DataBackend)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), time.Minute)
	store := cli.InitBackend(bootCtx, logger.Logger, cfg)

	reg, m := cli.NewRegistry()

	notifier, closeNotifier, err := cli.NewNotifier(bootCtx, logger.Logger, cfg, m)
	bootCancel()
	if err != nil {
		logger.Error("Failed to initialize notifier", "error", err)
		_ = store.Close()
		os.Exit(1)
	}

	summaries := services.NewSummaryService(store.Store,
		services.WithHorizonDays(cfg.SummaryHorizonDays),
		services.WithSummaryMetrics(m))

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Summaries:    summaries,
		Reminders:    cli.NewDispatcher(store.Store, notifier, cfg, m),
		Ready:        store.Store,
		Logger:       logger,
		Metrics:      m,
		Gatherer:     reg,
		TriggerToken: cfg.ReminderTriggerToken,
	})

	caches := cache.NewManager()
	caches.Register(srv.Limiter().Clients())

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", "error", err)
		}
		caches.Stop()
		if err := closeNotifier(); err != nil {
			logger.Error("Failed to close notifier", "error", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("Failed to close backend", "error", err)
		}
	})
	caches.Start(ctx, 5*time.Minute)

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
