package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"costwatch/internal/core"
	"costwatch/internal/metrics"
	"costwatch/internal/ports"
)

const (
	// DefaultReminderSubject is used when no subject is configured.
	DefaultReminderSubject = "Upcoming payments and contract renewals"
	// DefaultReminderConcurrency bounds how many organizations are processed at once.
	DefaultReminderConcurrency = 4
)

// DispatcherConfig tunes a ReminderDispatcher.
type DispatcherConfig struct {
	Subject     string
	Concurrency int
}

// DispatcherDeps groups the collaborators of a ReminderDispatcher.
type DispatcherDeps struct {
	Source   ports.ReminderSource
	Members  ports.MembershipReader
	Contacts ports.ContactReader
	Audit    ports.AuditWriter
	Notifier ports.Notifier
	Metrics  *metrics.Metrics
}

// ReminderDispatcher runs the daily reminder check across all organizations.
// Each run emits one notification batch per member of every organization with
// matching obligations and writes one audit row per organization.
type ReminderDispatcher struct {
	deps        DispatcherDeps
	subject     string
	concurrency int
	invoiceWin  ExactWindow
	bindingWin  ExactWindow
}

func NewReminderDispatcher(deps DispatcherDeps, cfg DispatcherConfig) *ReminderDispatcher {
	if cfg.Subject == "" {
		cfg.Subject = DefaultReminderSubject
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultReminderConcurrency
	}
	return &ReminderDispatcher{
		deps:        deps,
		subject:     cfg.Subject,
		concurrency: cfg.Concurrency,
		invoiceWin:  NewExactWindow(InvoiceReminderDistances...),
		bindingWin:  NewExactWindow(BindingReminderDistances...),
	}
}

// orgWork is the slice of a run's matches that belongs to one organization.
type orgWork struct {
	orgID    uuid.UUID
	invoices []core.Invoice
	bindings []core.CostItem
}

// orgOutcome is what processing one organization contributes to the run result.
type orgOutcome struct {
	sent    int
	audited bool
}

// Run performs one reminder run as of the current time.
func (d *ReminderDispatcher) Run(ctx context.Context) core.ReminderRunResult {
	return d.RunAt(ctx, time.Now())
}

// RunAt performs one reminder run for the UTC calendar date of now. It never
// returns an error: failures are logged and reflected in the result.
func (d *ReminderDispatcher) RunAt(ctx context.Context, now time.Time) core.ReminderRunResult {
	start := time.Now()
	runID := uuid.NewString()
	today := core.DateOf(now)
	result := core.ReminderRunResult{Timestamp: now.UTC()}

	slog.InfoContext(ctx, "Starting reminder run",
		"run_id", runID,
		"today", today)

	invoices, bindings, complete := d.collect(ctx, runID, today)
	result.InvoicesChecked = len(invoices)
	result.BindingsChecked = len(bindings)

	work := groupByOrganization(invoices, bindings)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.concurrency)

	for _, w := range work {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out := d.processOrganization(ctx, runID, now, w)

			mu.Lock()
			defer mu.Unlock()
			result.RemindersSent += out.sent
			if out.audited {
				result.OrganizationsProcessed++
			} else {
				result.OrganizationsFailed++
			}
			// Organization failures never cancel siblings.
			return nil
		})
	}
	_ = g.Wait()

	result.Success = complete && ctx.Err() == nil

	outcome := metrics.OutcomeOK
	if !result.Success {
		outcome = metrics.OutcomeFailed
	}
	d.deps.Metrics.ObserveRun(outcome, time.Since(start), result.InvoicesChecked, result.BindingsChecked)

	slog.InfoContext(ctx, "Reminder run complete",
		"run_id", runID,
		"success", result.Success,
		"organizations", len(work),
		"organizations_processed", result.OrganizationsProcessed,
		"organizations_failed", result.OrganizationsFailed,
		"reminders_sent", result.RemindersSent,
		"invoices_checked", result.InvoicesChecked,
		"bindings_checked", result.BindingsChecked)

	return result
}

// collect reads the global candidate sets and applies the exact windows.
// The two reads are independent: a failed read is logged and contributes an
// empty set, and complete is false.
func (d *ReminderDispatcher) collect(ctx context.Context, runID string, today core.Date) (invoices []core.Invoice, bindings []core.CostItem, complete bool) {
	if d.deps.Source == nil {
		slog.ErrorContext(ctx, "Reminder source not configured",
			"run_id", runID)
		return nil, nil, false
	}
	complete = true

	rawInvoices, err := d.deps.Source.ListInvoicesDueOn(ctx, d.invoiceWin.Dates(today))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list invoices due, continuing with bindings",
			"run_id", runID,
			"error", err)
		complete = false
	} else {
		invoices = SelectInvoices(d.invoiceWin, today, rawInvoices)
	}

	rawBindings, err := d.deps.Source.ListBindingsEndingOn(ctx, d.bindingWin.Dates(today))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list bindings ending, continuing with invoices",
			"run_id", runID,
			"error", err)
		complete = false
	} else {
		bindings = SelectBindings(d.bindingWin, today, rawBindings)
	}

	return invoices, bindings, complete
}

// groupByOrganization partitions matches per organization. Organizations are
// returned in first-appearance order, invoices before bindings.
func groupByOrganization(invoices []core.Invoice, bindings []core.CostItem) []*orgWork {
	index := make(map[uuid.UUID]*orgWork)
	var order []*orgWork
	get := func(id uuid.UUID) *orgWork {
		w, ok := index[id]
		if !ok {
			w = &orgWork{orgID: id}
			index[id] = w
			order = append(order, w)
		}
		return w
	}
	for _, inv := range invoices {
		w := get(inv.OrganizationID)
		w.invoices = append(w.invoices, inv)
	}
	for _, item := range bindings {
		w := get(item.OrganizationID)
		w.bindings = append(w.bindings, item)
	}
	return order
}

// processOrganization resolves members, delivers one batch each and writes the
// audit row. Steps run in that order for a single organization.
func (d *ReminderDispatcher) processOrganization(ctx context.Context, runID string, now time.Time, w *orgWork) orgOutcome {
	var out orgOutcome

	memberships, err := d.deps.Members.ListMemberships(ctx, w.orgID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list memberships, skipping organization",
			"run_id", runID,
			"organization_id", w.orgID,
			"error", err)
		d.deps.Metrics.Organization(metrics.OutcomeFailed)
		return out
	}

	invoices := make([]core.InvoiceReminder, 0, len(w.invoices))
	for _, inv := range w.invoices {
		invoices = append(invoices, core.NewInvoiceReminder(inv))
	}
	bindings := make([]core.BindingReminder, 0, len(w.bindings))
	for _, item := range w.bindings {
		bindings = append(bindings, core.NewBindingReminder(item))
	}

	for _, m := range memberships {
		if ctx.Err() != nil {
			break
		}
		contact, err := d.deps.Contacts.GetContact(ctx, m.UserID)
		if err != nil {
			slog.WarnContext(ctx, "Failed to resolve member contact, skipping member",
				"run_id", runID,
				"organization_id", w.orgID,
				"user_id", m.UserID,
				"not_found", errors.Is(err, ports.ErrNotFound),
				"error", err)
			d.deps.Metrics.DeliveryFailed()
			continue
		}
		if contact.Email == "" {
			slog.WarnContext(ctx, "Member has no contact address, skipping member",
				"run_id", runID,
				"organization_id", w.orgID,
				"user_id", m.UserID)
			continue
		}

		batch := core.NotificationBatch{
			OrganizationID: w.orgID,
			Recipient:      contact.Email,
			Subject:        d.subject,
			Invoices:       invoices,
			Bindings:       bindings,
		}
		if err := d.deps.Notifier.Notify(ctx, batch); err != nil {
			slog.ErrorContext(ctx, "Failed to deliver reminder batch",
				"run_id", runID,
				"organization_id", w.orgID,
				"recipient", contact.Email,
				"error", err)
			d.deps.Metrics.DeliveryFailed()
			continue
		}
		out.sent++
		d.deps.Metrics.BatchSent()
	}

	// A cancelled run never writes an audit row.
	if err := ctx.Err(); err != nil {
		slog.WarnContext(ctx, "Run cancelled before audit write",
			"run_id", runID,
			"organization_id", w.orgID,
			"reminders_sent", out.sent)
		d.deps.Metrics.Organization(metrics.OutcomeFailed)
		return out
	}

	entry := core.ReminderLog{
		OrganizationID: w.orgID,
		ReminderType:   core.ReminderTypeDailyCheck,
		InvoicesCount:  len(w.invoices),
		BindingsCount:  len(w.bindings),
		SentAt:         now.UTC(),
	}
	if err := d.deps.Audit.WriteReminderLog(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "Failed to write reminder audit",
			"run_id", runID,
			"organization_id", w.orgID,
			"error", err)
		d.deps.Metrics.Organization(metrics.OutcomeFailed)
		return out
	}

	out.audited = true
	d.deps.Metrics.Organization(metrics.OutcomeOK)
	slog.InfoContext(ctx, "Organization reminders dispatched",
		"run_id", runID,
		"organization_id", w.orgID,
		"members", len(memberships),
		"reminders_sent", out.sent,
		"invoices_count", entry.InvoicesCount,
		"bindings_count", entry.BindingsCount)
	return out
}
