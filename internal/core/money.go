// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from receipt,
// chat or spreadsheet text and converting between cents and decimal
// representations.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// currencyMarkers are stripped before parsing. Longer codes come first so
// that "PHP" is not left behind as "HP" once "P" is removed.
var currencyMarkers = []string{"PHP", "EUR", "USD", "GBP", "₱", "€", "$", "£", "P"}

// maxAmount keeps amount*100 well inside int64.
var maxAmount = decimal.New(1, 15)

// ParseAmount converts an amount string to Money with half-up rounding to
// two fractional digits.
//
// It accepts dot (12.34) and comma (12,34) decimal separators, thousands
// separators (1,234.50 or 1.234,50) and leading or trailing currency
// markers (₱, $, €, PHP, EUR...). Negative values, including accounting
// style "(5.00)", are rejected; zero is a valid amount.
//
// Examples:
//
//	ParseAmount("12.34")     -> 1234 cents
//	ParseAmount("₱1,234.50") -> 123450 cents
//	ParseAmount("12.345")    -> 1235 cents (half-up)
//	ParseAmount("-5.00")     -> ValidationError("amount")
func ParseAmount(s string) (Money, error) {
	fail := func() (Money, error) {
		return Money{}, &ValidationError{Field: "amount", Value: s, Err: ErrInvalidAmount}
	}

	v := strings.TrimSpace(s)
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		return fail()
	}
	upper := strings.ToUpper(v)
	for _, marker := range currencyMarkers {
		upper = strings.ReplaceAll(upper, marker, "")
	}
	v = strings.Join(strings.Fields(upper), "")
	if v == "" || strings.HasPrefix(v, "-") || strings.HasSuffix(v, "-") {
		return fail()
	}
	v = strings.TrimPrefix(v, "+")
	v = normalizeSeparators(v)

	d, err := decimal.NewFromString(v)
	if err != nil {
		return fail()
	}
	return MoneyFromDecimal(d)
}

// normalizeSeparators rewrites a number so that "." is the only decimal
// separator and thousands separators are gone.
func normalizeSeparators(v string) string {
	lastDot := strings.LastIndex(v, ".")
	lastComma := strings.LastIndex(v, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234,50
			v = strings.ReplaceAll(v, ".", "")
			return strings.Replace(v, ",", ".", 1)
		}
		// 1,234.50
		return strings.ReplaceAll(v, ",", "")
	case lastComma >= 0:
		// A single comma followed by one or two digits is a decimal comma
		// (12,34); anything else is a thousands separator (1,234).
		if strings.Count(v, ",") == 1 && len(v)-lastComma-1 <= 2 {
			return strings.Replace(v, ",", ".", 1)
		}
		return strings.ReplaceAll(v, ",", "")
	default:
		return v
	}
}

// MoneyFromDecimal rounds d half-up to cents. Negative values are rejected.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() || d.GreaterThanOrEqual(maxAmount) {
		return Money{}, &ValidationError{Field: "amount", Value: d.String(), Err: ErrInvalidAmount}
	}
	return Money{Cents: d.Round(2).Shift(2).IntPart()}, nil
}

// Cents is a shorthand constructor.
func Cents(c int64) Money {
	return Money{Cents: c}
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns m - o. The result may be negative (used for deltas).
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// Decimal returns the amount as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float64 returns the amount for display and statistics.
// Note: use cents for sums and comparisons.
func (m Money) Float64() float64 {
	return float64(m.Cents) / 100.0
}

// Fraction returns m*f rounded half-up to cents.
func (m Money) Fraction(f float64) Money {
	v := decimal.NewFromInt(m.Cents).Mul(decimal.NewFromFloat(f)).Round(0)
	return Money{Cents: v.IntPart()}
}

// String formats the amount with two fractional digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ErrInvalidAmount
	}
	// Deltas may be negative, so this does not go through MoneyFromDecimal.
	*m = Money{Cents: d.Round(2).Shift(2).IntPart()}
	return nil
}
