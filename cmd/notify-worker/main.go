package main

import (
	"context"
	"errors"
	"os"
	"time"

	"costwatch/internal/amqp"
	"costwatch/internal/cache"
	"costwatch/internal/cli"
	applog "costwatch/internal/log"
	"costwatch/internal/worker"
)

// seenMessages bounds the delivered-message memory used to drop redeliveries.
const seenMessages = 10000

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	if cfg.AMQPURL == "" {
		logger.Error("notify-worker requires AMQP_URL")
		os.Exit(1)
	}

	logger.Info("Starting notify-worker", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), time.Minute)
	client, err := amqp.NewClientWithRetry(bootCtx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 5)
	bootCancel()
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	reg, m := cli.NewRegistry()
	stopMetrics := cli.StartMetricsServer(logger.Logger, cfg.MetricsPort, reg)
	notifyWorker := worker.NewNotifyWorker(worker.NewWriterSender(os.Stdout), seenMessages, m)

	caches := cache.NewManager()
	caches.Register(notifyWorker.Seen())

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func() {
		caches.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopMetrics(shutdownCtx); err != nil {
			logger.Error("Failed to stop metrics listener", "error", err)
		}
		if err := client.Close(); err != nil {
			logger.Error("Failed to close AMQP client", "error", err)
		}
	})
	caches.Start(ctx, time.Hour)

	go func() {
		if err := client.ConsumeReminderBatches(ctx, notifyWorker.HandleReminderBatch); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
