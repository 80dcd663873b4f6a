package expense

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type Repository interface {
	SeedDefaults(ctx context.Context) error
	ListCategories(ctx context.Context, studentID int) ([]Category, error)
	CategoryByID(ctx context.Context, id int) (*Category, error)

	// CategoryBySlug prefers the student's own category over a default one.
	CategoryBySlug(ctx context.Context, studentID int, slug string) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) (*Category, error)

	// InsertExpense writes through ext so the row commits with the ledger
	// debit it records.
	InsertExpense(ctx context.Context, ext sqlx.ExtContext, e *Expense) error
	ListExpenses(ctx context.Context, studentID int, f Filter) ([]Expense, error)
	Total(ctx context.Context, studentID int, from, to time.Time) (decimal.Decimal, error)
	TopCategories(ctx context.Context, studentID int, from, to *time.Time, limit int) ([]CategoryTotal, error)
}
