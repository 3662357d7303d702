package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReminderTypeDailyCheck tags audit rows written by the daily reminder run.
const ReminderTypeDailyCheck = "daily_check"

// UpcomingBinding is a cost item whose binding ends inside the summary horizon.
type UpcomingBinding struct {
	CostItemID    uuid.UUID `json:"cost_item_id"`
	Name          string    `json:"name"`
	BindingEndsAt Date      `json:"binding_ends_at"`
	DaysUntilEnd  int       `json:"days_until_end"`
}

// MonthSummary is the point-in-time financial view of one organization.
// It is computed fresh for each request.
type MonthSummary struct {
	TotalMonthly      decimal.Decimal   `json:"total_monthly"`
	OpenInvoices      decimal.Decimal   `json:"open_invoices"`
	Next30DaysCashOut decimal.Decimal   `json:"next_30_days_cash_out"`
	UpcomingBindings  []UpcomingBinding `json:"upcoming_bindings"`
}

// EmptySummary is the all-zero summary returned when inputs are unavailable.
func EmptySummary() MonthSummary {
	return MonthSummary{
		TotalMonthly:      decimal.Zero,
		OpenInvoices:      decimal.Zero,
		Next30DaysCashOut: decimal.Zero,
		UpcomingBindings:  []UpcomingBinding{},
	}
}

// ReminderLog is the audit row written once per organization per run.
type ReminderLog struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ReminderType   string    `json:"reminder_type"`
	InvoicesCount  int       `json:"invoices_count"`
	BindingsCount  int       `json:"bindings_count"`
	SentAt         time.Time `json:"sent_at"`
}

// InvoiceReminder is the invoice projection carried by a notification batch.
type InvoiceReminder struct {
	ID       uuid.UUID       `json:"id"`
	Vendor   string          `json:"vendor"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	DueAt    Date            `json:"due_at"`
}

// BindingReminder is the cost item projection carried by a notification batch.
type BindingReminder struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	BindingEndsAt Date      `json:"binding_ends_at"`
}

// NotificationBatch holds every reminder for one member of one organization.
type NotificationBatch struct {
	OrganizationID uuid.UUID         `json:"organization_id"`
	Recipient      string            `json:"recipient"`
	Subject        string            `json:"subject"`
	Invoices       []InvoiceReminder `json:"invoices"`
	Bindings       []BindingReminder `json:"bindings"`
}

// ReminderRunResult summarizes one dispatcher invocation.
type ReminderRunResult struct {
	Success                bool      `json:"success"`
	RemindersSent          int       `json:"reminders_sent"`
	OrganizationsProcessed int       `json:"organizations_processed"`
	OrganizationsFailed    int       `json:"organizations_failed"`
	InvoicesChecked        int       `json:"invoices_checked"`
	BindingsChecked        int       `json:"bindings_checked"`
	Timestamp              time.Time `json:"timestamp"`
}

func NewInvoiceReminder(inv Invoice) InvoiceReminder {
	return InvoiceReminder{
		ID:       inv.ID,
		Vendor:   inv.Vendor,
		Amount:   inv.Amount,
		Currency: inv.Currency,
		DueAt:    inv.DueAt,
	}
}

func NewBindingReminder(item CostItem) BindingReminder {
	return BindingReminder{
		ID:            item.ID,
		Name:          item.Name,
		BindingEndsAt: item.BindingEndsAt,
	}
}
