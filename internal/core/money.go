// Package core provides the domain model and the pure money arithmetic.
//
// This file contains amount parsing and formatting helpers built on
// shopspring/decimal so that no amount ever passes through a float.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits kept for stored amounts.
const AmountScale = 2

// ParseAmount converts a decimal string to an amount with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// on the third decimal place. Negative, zero and malformed values are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil (half-up)
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(AmountScale)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals and its currency code,
// e.g. "12.50 EUR".
func FormatAmount(d decimal.Decimal, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return d.StringFixed(AmountScale) + " " + currency
}
