package budget

import (
	"fmt"
	"strings"

	"allowance/internal/money"

	"github.com/shopspring/decimal"
)

// normalizePlan checks the savings policy and clears the fields the chosen
// mode does not use.
func normalizePlan(p *Plan) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlan)
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if len(p.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidPlan)
	}
	if p.DailyLimit.IsNegative() {
		return fmt.Errorf("%w: daily_limit must be >= 0", ErrInvalidPlan)
	}
	for _, v := range []decimal.Decimal{p.DailyLimit, p.SavingsAmount, p.SavingsPercent} {
		if err := money.CheckLimit(v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
	}

	switch p.SavingsMode {
	case "", SavingsNone:
		p.SavingsMode = SavingsNone
		p.SavingsAmount = decimal.Zero
		p.SavingsPercent = decimal.Zero
	case SavingsAmount:
		if !money.Positive(p.SavingsAmount) {
			return fmt.Errorf("%w: savings_amount must be > 0 for AMOUNT mode", ErrInvalidPlan)
		}
	case SavingsPercent:
		if !validPercent(p.SavingsPercent) {
			return fmt.Errorf("%w: savings_percent must be > 0 and <= 100 for PERCENT mode", ErrInvalidPlan)
		}
	default:
		return fmt.Errorf("%w: unknown savings_mode %q", ErrInvalidPlan, p.SavingsMode)
	}
	return nil
}

func validateBill(b *Bill) error {
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidBill)
	}
	if !money.Positive(b.Amount) {
		return fmt.Errorf("%w: amount must be > 0", ErrInvalidBill)
	}
	if err := money.CheckLimit(b.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBill, err)
	}
	if b.DueDay != nil && (*b.DueDay < 1 || *b.DueDay > 31) {
		return fmt.Errorf("%w: due_day must be between 1 and 31", ErrInvalidBill)
	}
	if b.Priority < 0 {
		return fmt.Errorf("%w: priority must be >= 0", ErrInvalidBill)
	}
	return nil
}
