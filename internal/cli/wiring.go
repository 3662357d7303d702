package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"costwatch/internal/amqp"
	"costwatch/internal/backend"
	"costwatch/internal/config"
	"costwatch/internal/metrics"
	"costwatch/internal/ports"
	"costwatch/internal/services"
	"costwatch/internal/worker"
)

// amqpConnectAttempts bounds startup retries against the broker.
const amqpConnectAttempts = 5

// NewRegistry returns a registry carrying the application and runtime collectors.
func NewRegistry() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.New(reg)
}

// MetricsHandler serves the gatherer on GET /metrics.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// StartMetricsServer exposes /metrics on port in the background and returns a
// shutdown function. An empty port disables the listener.
func StartMetricsServer(logger *slog.Logger, port string, g prometheus.Gatherer) func(context.Context) error {
	if port == "" {
		return func(context.Context) error { return nil }
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           MetricsHandler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Metrics listener started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics listener failed", "error", err)
		}
	}()
	return srv.Shutdown
}

// NewNotifier publishes to AMQP when a broker is configured and otherwise
// delivers in process to stdout. The returned close function is never nil.
func NewNotifier(ctx context.Context, logger *slog.Logger, cfg *config.Config, m *metrics.Metrics) (ports.Notifier, func() error, error) {
	if cfg.AMQPURL == "" {
		logger.Info("No AMQP_URL configured, delivering reminders in process")
		w := worker.NewNotifyWorker(worker.NewWriterSender(os.Stdout), cfg.ContactCacheSize, m)
		return w, func() error { return nil }, nil
	}

	client, err := amqp.NewClientWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqpConnectAttempts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect AMQP: %w", err)
	}
	logger.Info("Publishing reminders to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, client.Close, nil
}

// NewDispatcher assembles a reminder dispatcher over store.
func NewDispatcher(store backend.Store, notifier ports.Notifier, cfg *config.Config, m *metrics.Metrics) *services.ReminderDispatcher {
	return services.NewReminderDispatcher(services.DispatcherDeps{
		Source:   store,
		Members:  store,
		Contacts: NewContactResolver(store, cfg),
		Audit:    store,
		Notifier: notifier,
		Metrics:  m,
	}, services.DispatcherConfig{
		Subject:     cfg.ReminderSubject,
		Concurrency: cfg.ReminderConcurrency,
	})
}
