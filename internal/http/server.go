// Package http exposes organization summaries, the reminder trigger and the
// operational endpoints over a JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"costwatch/internal/core"
	applog "costwatch/internal/log"
	"costwatch/internal/metrics"
	"costwatch/internal/middleware/ratelimit"
	"costwatch/internal/middleware/security"
	"costwatch/internal/middleware/trace"
)

// HeaderReminderToken authenticates manual reminder runs.
const HeaderReminderToken = "X-Reminder-Token"

// Summarizer computes the month summary of one organization.
type Summarizer interface {
	Summary(ctx context.Context, orgID uuid.UUID) core.MonthSummary
}

// ReminderRunner performs one reminder run.
type ReminderRunner interface {
	Run(ctx context.Context) core.ReminderRunResult
}

// Pinger reports backend readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the server to the application services. Reminders, Ready,
// Metrics and Gatherer are optional.
type Deps struct {
	Summaries    Summarizer
	Reminders    ReminderRunner
	Ready        Pinger
	Logger       *applog.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	TriggerToken string
	RateLimit    ratelimit.Config
}

type Server struct {
	http.Server
	summaries    Summarizer
	reminders    ReminderRunner
	ready        Pinger
	triggerToken string
	limiter      *ratelimit.Limiter
	log          *applog.StructuredLogger

	// A manual trigger is refused while another is in flight.
	runMu sync.Mutex

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		summaries:    deps.Summaries,
		reminders:    deps.Reminders,
		ready:        deps.Ready,
		triggerToken: deps.TriggerToken,
		limiter:      ratelimit.NewLimiter(deps.RateLimit, deps.Metrics),
		log:          applog.NewStructuredLogger(logger),
	}

	clientIP := security.NewClientIP()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/organizations/{id}/summary", s.handleSummary)
	mux.Handle("POST /api/reminders/run", s.limiter.Middleware(clientIP.Extract)(http.HandlerFunc(s.handleRunReminders)))
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(logger, clientIP.Extract, deps.Metrics).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Limiter exposes the trigger rate limiter so its windows can be swept.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		slog.InfoContext(ctx, "Shutting down HTTP server")
		err = s.Server.Shutdown(ctx)
	})
	return err
}
