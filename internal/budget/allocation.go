package budget

import (
	"fmt"
	"sort"

	"allowance/internal/money"

	"github.com/shopspring/decimal"
)

type BillShare struct {
	BillID    int             `json:"bill_id"`
	Title     string          `json:"title"`
	Need      decimal.Decimal `json:"need"`
	Allocated decimal.Decimal `json:"allocated"`
}

// Allocation is the three-way split of one deposit under a plan.
// BillsAllocated + SavingsAllocated + DailyAllocated == DepositAmount.
type Allocation struct {
	PlanID           int             `json:"plan_id"`
	DepositAmount    decimal.Decimal `json:"deposit_amount"`
	BillsAllocated   decimal.Decimal `json:"bills_allocated"`
	BillsBreakdown   []BillShare     `json:"bills_breakdown"`
	SavingsTarget    decimal.Decimal `json:"savings_target"`
	SavingsAllocated decimal.Decimal `json:"savings_allocated"`
	DailyAllocated   decimal.Decimal `json:"daily_allocated"`
	Currency         string          `json:"currency"`
	DailyLimit       decimal.Decimal `json:"daily_limit"`
}

// ComputeAllocation splits deposit across BILLS, SAVINGS and DAILY.
//
// Bills are paid in (priority, created_at) order until the deposit runs out.
// The savings target is then taken from what is left; a PERCENT target is a
// percentage of the whole deposit, not of the remainder. DAILY gets the rest.
// Every intermediate value is rounded to 2 places, half up.
func ComputeAllocation(plan *Plan, deposit decimal.Decimal) (Allocation, error) {
	if plan == nil {
		return Allocation{}, fmt.Errorf("%w: nil plan", ErrInvalidAllocationInput)
	}

	amount := money.Round(deposit)
	if !money.Positive(amount) {
		return Allocation{}, fmt.Errorf("%w: deposit must be > 0", ErrInvalidAllocationInput)
	}

	savingsTarget, err := savingsTargetFor(plan, amount)
	if err != nil {
		return Allocation{}, err
	}

	bills, err := orderedBills(plan.Bills)
	if err != nil {
		return Allocation{}, err
	}

	remaining := amount
	billsAllocated := decimal.Zero
	breakdown := make([]BillShare, 0, len(bills))

	for _, bill := range bills {
		if !money.Positive(remaining) {
			break
		}
		need := money.Round(bill.Amount)
		alloc := money.Round(money.Min(need, remaining))
		if !money.Positive(alloc) {
			continue
		}
		breakdown = append(breakdown, BillShare{
			BillID:    bill.ID,
			Title:     bill.Title,
			Need:      need,
			Allocated: alloc,
		})
		billsAllocated = billsAllocated.Add(alloc)
		remaining = money.Round(remaining.Sub(alloc))
	}

	savingsAllocated := decimal.Zero
	if money.Positive(remaining) && money.Positive(savingsTarget) {
		savingsAllocated = money.Round(money.Min(savingsTarget, remaining))
		remaining = money.Round(remaining.Sub(savingsAllocated))
	}

	return Allocation{
		PlanID:           plan.ID,
		DepositAmount:    amount,
		BillsAllocated:   money.Round(billsAllocated),
		BillsBreakdown:   breakdown,
		SavingsTarget:    savingsTarget,
		SavingsAllocated: savingsAllocated,
		DailyAllocated:   money.Round(remaining),
		Currency:         plan.Currency,
		DailyLimit:       money.Round(plan.DailyLimit),
	}, nil
}

func savingsTargetFor(plan *Plan, amount decimal.Decimal) (decimal.Decimal, error) {
	switch plan.SavingsMode {
	case SavingsNone, "":
		return decimal.Zero, nil
	case SavingsAmount:
		target := money.Round(plan.SavingsAmount)
		if !money.Positive(target) {
			return decimal.Zero, fmt.Errorf("%w: savings amount must be > 0", ErrInvalidAllocationInput)
		}
		return target, nil
	case SavingsPercent:
		if !validPercent(plan.SavingsPercent) {
			return decimal.Zero, fmt.Errorf("%w: savings percent %s out of range", ErrInvalidAllocationInput, plan.SavingsPercent)
		}
		return money.Percent(amount, plan.SavingsPercent), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown savings mode %q", ErrInvalidAllocationInput, plan.SavingsMode)
	}
}

func orderedBills(bills []Bill) ([]Bill, error) {
	out := make([]Bill, len(bills))
	copy(out, bills)
	for _, b := range out {
		if b.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: bill %d has negative amount", ErrInvalidAllocationInput, b.ID)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var hundred = decimal.NewFromInt(100)

func validPercent(p decimal.Decimal) bool {
	return money.Positive(p) && p.LessThanOrEqual(hundred)
}
