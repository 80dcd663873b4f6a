package expense

import (
	"time"

	"allowance/internal/wallet"

	"github.com/shopspring/decimal"
)

// FallbackSlug names the default category used when none is given.
const FallbackSlug = "other"

type DefaultCategory struct {
	Name string
	Slug string
}

var DefaultCategories = []DefaultCategory{
	{"Food", "food"},
	{"Transport", "transport"},
	{"School", "school"},
	{"Health", "health"},
	{"Bills", "bills"},
	{"Entertainment", "entertainment"},
	{"Other", FallbackSlug},
}

// Category is a default category (OwnerID nil) or a student's own.
type Category struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	OwnerID   *int      `db:"owner_id" json:"owner_id"`
	IsDefault bool      `db:"is_default" json:"is_default"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Expense struct {
	ID            int               `db:"id" json:"id"`
	TransactionID int               `db:"transaction_id" json:"transaction_id"`
	WalletID      int               `db:"wallet_id" json:"wallet_id"`
	StudentID     int               `db:"student_id" json:"student_id"`
	CategoryID    int               `db:"category_id" json:"category_id"`
	CategorySlug  string            `db:"category_slug" json:"category_slug"`
	CategoryName  string            `db:"category_name" json:"category_name"`
	Amount        decimal.Decimal   `db:"amount" json:"amount"`
	Bucket        wallet.BucketType `db:"bucket_type" json:"bucket_type"`
	Note          string            `db:"note" json:"note"`
	OccurredAt    time.Time         `db:"occurred_at" json:"occurred_at"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

// Filter narrows an expense listing. From is inclusive, To exclusive.
type Filter struct {
	From         *time.Time
	To           *time.Time
	CategorySlug string
	Limit        int
	Offset       int
}

type CategoryTotal struct {
	Slug  string          `db:"slug" json:"category_slug"`
	Name  string          `db:"name" json:"category_name"`
	Total decimal.Decimal `db:"total" json:"total"`
}

type AlertType string

const (
	AlertDailyLimitNear    AlertType = "DAILY_LIMIT_NEAR"
	AlertDailyLimitReached AlertType = "DAILY_LIMIT_REACHED"
)

type Alert struct {
	Type    AlertType `json:"type"`
	Message string    `json:"message"`
}

type Summary struct {
	TotalToday    decimal.Decimal `json:"total_today"`
	TotalWeek     decimal.Decimal `json:"total_week"`
	TotalMonth    decimal.Decimal `json:"total_month"`
	TopCategories []CategoryTotal `json:"top_categories"`
	Alerts        []Alert         `json:"alerts"`
}
