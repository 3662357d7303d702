// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for obligation date windows.
// A Window decides whether a due date or binding end falls inside a selection
// anchored at a reference day; the selectors apply a window to raw entities
// and return them in ascending date order.

package services

import (
	"slices"

	"costwatch/internal/core"
)

// DefaultHorizonDays is the range horizon used by summaries.
const DefaultHorizonDays = 30

var (
	// InvoiceReminderDistances are the day offsets at which open invoices are reminded.
	InvoiceReminderDistances = []int{7, 3, 1}
	// BindingReminderDistances are the day offsets at which binding ends are reminded.
	BindingReminderDistances = []int{30, 7}
)

// Window is the strategy interface for date-windowed selection.
type Window interface {
	// Contains reports whether date falls inside the window anchored at today.
	// Both arguments are compared as UTC calendar dates.
	Contains(today, date core.Date) bool
}

// RangeWindow matches dates in [today, today+HorizonDays], both bounds inclusive.
type RangeWindow struct {
	HorizonDays int
}

// NewRangeWindow returns a range window; a negative horizon selects the default.
func NewRangeWindow(horizonDays int) RangeWindow {
	if horizonDays < 0 {
		horizonDays = DefaultHorizonDays
	}
	return RangeWindow{HorizonDays: horizonDays}
}

// Contains returns true if today <= date <= today+HorizonDays.
func (w RangeWindow) Contains(today, date core.Date) bool {
	if date.IsEmpty() {
		return false
	}
	today = core.DateOf(today.Time)
	target := today.AddDays(w.HorizonDays)
	return date.Compare(today) >= 0 && date.Compare(target) <= 0
}

// ExactWindow matches dates that are exactly today+d for some d in Distances.
// A date between two distances never matches: if no run happens on the day an
// obligation reaches a distance, that reminder is missed for good.
type ExactWindow struct {
	Distances []int
}

func NewExactWindow(distances ...int) ExactWindow {
	return ExactWindow{Distances: distances}
}

// Contains returns true if date equals today plus one of the distances.
func (w ExactWindow) Contains(today, date core.Date) bool {
	if date.IsEmpty() {
		return false
	}
	today = core.DateOf(today.Time)
	for _, d := range w.Distances {
		if date.Compare(today.AddDays(d)) == 0 {
			return true
		}
	}
	return false
}

// Dates returns the concrete calendar dates the window matches, in distance order.
func (w ExactWindow) Dates(today core.Date) []core.Date {
	today = core.DateOf(today.Time)
	dates := make([]core.Date, 0, len(w.Distances))
	for _, d := range w.Distances {
		dates = append(dates, today.AddDays(d))
	}
	return dates
}

// SelectBindings returns the cost items with a binding whose end date falls in
// the window, ascending by end date. Items with equal dates keep input order.
func SelectBindings(w Window, today core.Date, items []core.CostItem) []core.CostItem {
	out := make([]core.CostItem, 0)
	for _, item := range items {
		if !item.HasBinding || item.BindingEndsAt.IsEmpty() {
			continue
		}
		if w.Contains(today, item.BindingEndsAt) {
			out = append(out, item)
		}
	}
	slices.SortStableFunc(out, func(a, b core.CostItem) int {
		return a.BindingEndsAt.Compare(b.BindingEndsAt)
	})
	return out
}

// SelectInvoices returns the open invoices whose due date falls in the window,
// ascending by due date. Invoices with equal dates keep input order.
func SelectInvoices(w Window, today core.Date, invoices []core.Invoice) []core.Invoice {
	out := make([]core.Invoice, 0)
	for _, inv := range invoices {
		if inv.Status != core.InvoiceOpen {
			continue
		}
		if w.Contains(today, inv.DueAt) {
			out = append(out, inv)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Invoice) int {
		return a.DueAt.Compare(b.DueAt)
	})
	return out
}
