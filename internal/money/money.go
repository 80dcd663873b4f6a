// Package money holds the fixed-point helpers shared by the ledger and the
// allocation calculator. Every derived amount goes through Round so that a
// split of a deposit always sums back to the rounded deposit.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor-unit digits kept for every currency.
const Scale = 2

var (
	ErrInvalidAmount = errors.New("invalid monetary amount")
	ErrTooPrecise    = errors.New("amount has more than 2 decimal places")
	ErrTooLarge      = errors.New("amount exceeds the largest storable value")

	// Max is the largest ledger amount or balance, NUMERIC(14,2).
	Max = decimal.RequireFromString("999999999999.99")
	// MaxLimit bounds limits, plan amounts and bills, NUMERIC(12,2).
	MaxLimit = decimal.RequireFromString("9999999999.99")

	hundred = decimal.NewFromInt(100)
)

// Round quantizes d to two decimal places, rounding halves away from zero.
// For the non-negative amounts the ledger deals in this is round-half-up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Parse reads a decimal string such as "1500.00". It rejects values that
// carry more precision than the ledger stores.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := Check(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// Check rejects amounts carrying more precision or more integer digits than
// the ledger stores.
func Check(d decimal.Decimal) error {
	if !d.Equal(Round(d)) {
		return fmt.Errorf("%w: %s", ErrTooPrecise, d.String())
	}
	if d.Abs().GreaterThan(Max) {
		return fmt.Errorf("%w: %s > %s", ErrTooLarge, d.String(), Format(Max))
	}
	return nil
}

// CheckLimit is Check against the narrower MaxLimit.
func CheckLimit(d decimal.Decimal) error {
	if err := Check(d); err != nil {
		return err
	}
	if d.Abs().GreaterThan(MaxLimit) {
		return fmt.Errorf("%w: %s > %s", ErrTooLarge, d.String(), Format(MaxLimit))
	}
	return nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Percent returns round(base * round(pct) / 100).
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(Round(pct)).Div(hundred))
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Sum adds amounts without intermediate rounding; inputs are expected to be
// already quantized.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Positive reports whether d > 0.
func Positive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
