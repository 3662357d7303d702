package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MonthlyScale is the number of fractional digits kept when a yearly amount
// is spread over twelve months.
const MonthlyScale = 16

var (
	twelve = decimal.NewFromInt(12)
)

// MonthlyAmount returns the item's cost on a monthly basis.
// It panics on a billing cycle outside {Monthly, Yearly}: such a value can only
// come from a bypassed ParseBillingCycle and signals a contract bug upstream.
func MonthlyAmount(item CostItem) decimal.Decimal {
	switch item.Cycle {
	case Monthly:
		return item.Amount
	case Yearly:
		return item.Amount.DivRound(twelve, MonthlyScale)
	default:
		panic(fmt.Sprintf("core: unknown billing cycle %v on cost item %s", item.Cycle, item.ID))
	}
}

// YearlyAmount returns the item's cost on a yearly basis.
func YearlyAmount(item CostItem) decimal.Decimal {
	switch item.Cycle {
	case Monthly:
		return item.Amount.Mul(twelve)
	case Yearly:
		return item.Amount
	default:
		panic(fmt.Sprintf("core: unknown billing cycle %v on cost item %s", item.Cycle, item.ID))
	}
}

// TotalMonthly sums MonthlyAmount over items. Decimal addition is exact, so
// the result does not depend on the order of items.
func TotalMonthly(items []CostItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(MonthlyAmount(item))
	}
	return total
}

// TotalYearly sums YearlyAmount over items.
func TotalYearly(items []CostItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(YearlyAmount(item))
	}
	return total
}

// SumInvoices sums the amount of every invoice given, regardless of status.
func SumInvoices(invoices []Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(inv.Amount)
	}
	return total
}

// OpenInvoicesTotal sums the amount of invoices whose status is Open.
func OpenInvoicesTotal(invoices []Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		if inv.Status == InvoiceOpen {
			total = total.Add(inv.Amount)
		}
	}
	return total
}
