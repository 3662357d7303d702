package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"costwatch/internal/core"
	"costwatch/internal/metrics"
	"costwatch/internal/ports"
)

// CashOutHorizonDays is the fixed look-ahead of MonthSummary.Next30DaysCashOut.
const CashOutHorizonDays = 30

// Summarizer produces the month summary of one organization. Implementations
// never fail: an unreadable organization yields core.EmptySummary().
type Summarizer interface {
	Summary(ctx context.Context, orgID uuid.UUID) core.MonthSummary
}

// SummaryService computes organization summaries from an ObligationReader.
type SummaryService struct {
	reader      ports.ObligationReader
	horizonDays int
	now         func() time.Time
	metrics     *metrics.Metrics
}

// SummaryOption configures a SummaryService.
type SummaryOption func(*SummaryService)

// WithHorizonDays sets the look-ahead used for upcoming bindings.
func WithHorizonDays(days int) SummaryOption {
	return func(s *SummaryService) { s.horizonDays = days }
}

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) SummaryOption {
	return func(s *SummaryService) { s.now = now }
}

// WithSummaryMetrics records outcomes on m.
func WithSummaryMetrics(m *metrics.Metrics) SummaryOption {
	return func(s *SummaryService) { s.metrics = m }
}

func NewSummaryService(reader ports.ObligationReader, opts ...SummaryOption) *SummaryService {
	s := &SummaryService{
		reader:      reader,
		horizonDays: DefaultHorizonDays,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary reads the organization's cost items and invoices and aggregates them.
// Any read failure is logged and degrades to the empty summary.
func (s *SummaryService) Summary(ctx context.Context, orgID uuid.UUID) core.MonthSummary {
	start := time.Now()
	today := core.DateOf(s.now())

	items, invoices, err := s.load(ctx, orgID)
	if err != nil {
		slog.ErrorContext(ctx, "Summary degraded to empty",
			"organization_id", orgID,
			"today", today,
			"error", err)
		s.metrics.ObserveSummary(metrics.OutcomeDegraded, time.Since(start))
		return core.EmptySummary()
	}

	summary := SummarizeWithHorizon(today, items, invoices, s.horizonDays)
	s.metrics.ObserveSummary(metrics.OutcomeOK, time.Since(start))

	slog.DebugContext(ctx, "Summary computed",
		"organization_id", orgID,
		"cost_items", len(items),
		"invoices", len(invoices),
		"upcoming_bindings", len(summary.UpcomingBindings))
	return summary
}

func (s *SummaryService) load(ctx context.Context, orgID uuid.UUID) ([]core.CostItem, []core.Invoice, error) {
	if s.reader == nil {
		return nil, nil, fmt.Errorf("summary service not properly initialized")
	}
	items, err := s.reader.ListCostItems(ctx, orgID)
	if err != nil {
		return nil, nil, fmt.Errorf("list cost items: %w", err)
	}
	invoices, err := s.reader.ListInvoices(ctx, orgID)
	if err != nil {
		return nil, nil, fmt.Errorf("list invoices: %w", err)
	}
	return items, invoices, nil
}

// Summarize aggregates one organization's rows as of today with the default horizon.
func Summarize(today core.Date, items []core.CostItem, invoices []core.Invoice) core.MonthSummary {
	return SummarizeWithHorizon(today, items, invoices, DefaultHorizonDays)
}

// SummarizeWithHorizon is Summarize with an explicit binding horizon. The
// cash-out window is always CashOutHorizonDays.
func SummarizeWithHorizon(today core.Date, items []core.CostItem, invoices []core.Invoice, horizonDays int) core.MonthSummary {
	today = core.DateOf(today.Time)

	cashOut := decimal.Zero
	for _, inv := range SelectInvoices(NewRangeWindow(CashOutHorizonDays), today, invoices) {
		cashOut = cashOut.Add(inv.Amount)
	}

	bound := SelectBindings(NewRangeWindow(horizonDays), today, items)
	upcoming := make([]core.UpcomingBinding, 0, len(bound))
	for _, item := range bound {
		upcoming = append(upcoming, core.UpcomingBinding{
			CostItemID:    item.ID,
			Name:          item.Name,
			BindingEndsAt: item.BindingEndsAt,
			DaysUntilEnd:  today.DaysUntil(item.BindingEndsAt),
		})
	}

	return core.MonthSummary{
		TotalMonthly:      core.TotalMonthly(items),
		OpenInvoices:      core.OpenInvoicesTotal(invoices),
		Next30DaysCashOut: cashOut,
		UpcomingBindings:  upcoming,
	}
}
