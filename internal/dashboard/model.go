package dashboard

import (
	"time"

	"allowance/internal/expense"
	"allowance/internal/wallet"

	"github.com/shopspring/decimal"
)

// Range narrows the top categories. From is inclusive, To exclusive. With
// neither set the current month is used.
type Range struct {
	From *time.Time
	To   *time.Time
}

type Person struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type WalletView struct {
	Currency   string                                `json:"currency"`
	DailyLimit decimal.Decimal                       `json:"daily_limit"`
	Buckets    map[wallet.BucketType]decimal.Decimal `json:"buckets"`
}

// Spending covers today and the current month. RemainingToday is null when
// the wallet has no daily limit.
type Spending struct {
	SpentToday     decimal.Decimal  `json:"spent_today"`
	RemainingToday *decimal.Decimal `json:"daily_remaining_today"`
	TotalMonth     decimal.Decimal  `json:"total_month_expenses"`
}

// Projection spreads the DAILY balance over the rest of the month and
// estimates how long it lasts at the last 7 days' pace.
type Projection struct {
	DaysLeftInMonth       int              `json:"days_left_in_month"`
	RecommendedDailySpend decimal.Decimal  `json:"recommended_daily_spend"`
	AvgDailySpend7d       decimal.Decimal  `json:"avg_daily_spend_7d"`
	DaysUntilDailyEmpty   *decimal.Decimal `json:"estimated_days_until_daily_empty"`
}

type StudentDashboard struct {
	Wallet        WalletView              `json:"wallet"`
	Spending      Spending                `json:"spending"`
	Projection    Projection              `json:"projection"`
	TopCategories []expense.CategoryTotal `json:"top_categories"`
	Alerts        []expense.Alert         `json:"alerts"`
}

// BucketTotal is what one parent credited to one bucket.
type BucketTotal struct {
	Bucket wallet.BucketType `db:"bucket_type" json:"bucket_type"`
	Total  decimal.Decimal   `db:"total" json:"total"`
}

type ParentStudentDashboard struct {
	Student       Person                  `json:"student"`
	SentThisMonth decimal.Decimal         `json:"sent_this_month"`
	Repartition   []BucketTotal           `json:"repartition_this_month"`
	Wallet        WalletView              `json:"wallet"`
	Spending      Spending                `json:"spending"`
	TopCategories []expense.CategoryTotal `json:"top_categories"`
	Alerts        []expense.Alert         `json:"alerts"`
}

type Period struct {
	MonthStart string `json:"month_start"`
	Today      string `json:"today"`
}

type ParentOverview struct {
	Parent             Person                   `json:"parent"`
	TotalSentThisMonth decimal.Decimal          `json:"total_sent_this_month"`
	Students           []ParentStudentDashboard `json:"students"`
	Period             Period                   `json:"period"`
}
