package main

import (
	"context"
	"os"
	"time"

	"costwatch/internal/cli"
	"costwatch/internal/core"
	applog "costwatch/internal/log"
	"costwatch/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentReminder)

	logger.Info("Starting reminder-worker",
		"backend", cfg.DataBackend,
		"interval", cfg.ReminderInterval,
		"run_once", cfg.ReminderRunOnce)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), time.Minute)
	store := cli.InitBackend(bootCtx, logger.Logger, cfg)

	reg, m := cli.NewRegistry()
	stopMetrics := cli.StartMetricsServer(logger.Logger, cfg.MetricsPort, reg)

	notifier, closeNotifier, err := cli.NewNotifier(bootCtx, logger.Logger, cfg, m)
	bootCancel()
	if err != nil {
		logger.Error("Failed to initialize notifier", "error", err)
		_ = stopMetrics(context.Background())
		_ = store.Close()
		os.Exit(1)
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopMetrics(shutdownCtx); err != nil {
			logger.Error("Failed to stop metrics listener", "error", err)
		}
		if err := closeNotifier(); err != nil {
			logger.Error("Failed to close notifier", "error", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("Failed to close backend", "error", err)
		}
	}

	structured := applog.NewStructuredLogger(logger)
	scheduler := worker.NewScheduler(cli.NewDispatcher(store.Store, notifier, cfg, m), cfg.ReminderInterval)
	scheduler.OnResult(func(res core.ReminderRunResult) {
		structured.LogReminderRun(context.Background(), "scheduled", res.Success, res.RemindersSent, res.OrganizationsProcessed, res.OrganizationsFailed)
	})

	if cfg.ReminderRunOnce {
		res := scheduler.RunOnce(context.Background())
		cleanup()
		if !res.Success {
			os.Exit(1)
		}
		return
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, nil)
	scheduler.Start(ctx)
	cli.WaitForShutdown(ctx, done)
	cleanup()
}
