package budget

import (
	"time"

	"allowance/internal/money"

	"github.com/shopspring/decimal"
)

type SavingsMode string

const (
	SavingsNone    SavingsMode = "NONE"
	SavingsAmount  SavingsMode = "AMOUNT"
	SavingsPercent SavingsMode = "PERCENT"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

const DefaultCurrency = "XAF"

type Plan struct {
	ID             int             `db:"id" json:"id"`
	StudentID      int             `db:"student_id" json:"student_id"`
	Name           string          `db:"name" json:"name"`
	Currency       string          `db:"currency" json:"currency"`
	DailyLimit     decimal.Decimal `db:"daily_limit" json:"daily_limit"`
	SavingsMode    SavingsMode     `db:"savings_mode" json:"savings_mode"`
	SavingsAmount  decimal.Decimal `db:"savings_amount" json:"savings_amount"`
	SavingsPercent decimal.Decimal `db:"savings_percent" json:"savings_percent"`
	Status         Status          `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`

	Bills []Bill `db:"-" json:"bills,omitempty"`
}

// TotalBills is the sum of every bill amount on the plan.
func (p *Plan) TotalBills() decimal.Decimal {
	total := decimal.Zero
	for _, b := range p.Bills {
		total = total.Add(b.Amount)
	}
	return money.Round(total)
}

type Bill struct {
	ID          int             `db:"id" json:"id"`
	PlanID      int             `db:"plan_id" json:"plan_id"`
	Title       string          `db:"title" json:"title"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	DueDay      *int            `db:"due_day" json:"due_day"`
	Priority    int             `db:"priority" json:"priority"`
	IsMandatory bool            `db:"is_mandatory" json:"is_mandatory"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
