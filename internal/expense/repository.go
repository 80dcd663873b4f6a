package expense

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"allowance/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const categoryColumns = `id, name, slug, owner_id, is_default, created_at`

const expenseSelect = `
	SELECT e.id, e.transaction_id, e.wallet_id, e.student_id, e.category_id,
	       c.slug AS category_slug, c.name AS category_name,
	       e.amount, e.bucket_type, e.note, e.occurred_at, e.created_at
	FROM expenses e
	JOIN expense_categories c ON c.id = e.category_id
`

type repository struct {
	db *sqlx.DB
}

func NewRepository(conn *sqlx.DB) Repository {
	return &repository{db: conn}
}

// SeedDefaults inserts any missing default category. Running it again is a
// no-op.
func (r *repository) SeedDefaults(ctx context.Context) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, c := range DefaultCategories {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO expense_categories (name, slug, owner_id, is_default)
				VALUES ($1, $2, NULL, TRUE)
				ON CONFLICT (slug) WHERE owner_id IS NULL DO NOTHING
			`, c.Name, c.Slug)
			if err != nil {
				return fmt.Errorf("seed category %s: %w", c.Slug, err)
			}
		}
		return nil
	})
}

func (r *repository) ListCategories(ctx context.Context, studentID int) ([]Category, error) {
	categories := []Category{}
	err := r.db.SelectContext(ctx, &categories,
		`SELECT `+categoryColumns+` FROM expense_categories WHERE owner_id IS NULL OR owner_id = $1 ORDER BY is_default, name`,
		studentID,
	)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *repository) CategoryByID(ctx context.Context, id int) (*Category, error) {
	var c Category
	err := r.db.GetContext(ctx, &c, `SELECT `+categoryColumns+` FROM expense_categories WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) CategoryBySlug(ctx context.Context, studentID int, slug string) (*Category, error) {
	var c Category
	err := r.db.GetContext(ctx, &c, `
		SELECT `+categoryColumns+`
		FROM expense_categories
		WHERE slug = $1 AND (owner_id = $2 OR owner_id IS NULL)
		ORDER BY owner_id NULLS LAST
		LIMIT 1
	`, slug, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) CreateCategory(ctx context.Context, c *Category) (*Category, error) {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO expense_categories (name, slug, owner_id, is_default)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, created_at
	`, c.Name, c.Slug, c.OwnerID).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "uniq_owner_category_slug") {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *repository) InsertExpense(ctx context.Context, ext sqlx.ExtContext, e *Expense) error {
	err := ext.QueryRowxContext(ctx, `
		INSERT INTO expenses (transaction_id, wallet_id, student_id, category_id, amount, bucket_type, note, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, e.TransactionID, e.WalletID, e.StudentID, e.CategoryID, e.Amount, e.Bucket, e.Note, e.OccurredAt,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (r *repository) ListExpenses(ctx context.Context, studentID int, f Filter) ([]Expense, error) {
	where, args := []string{"e.student_id = $1"}, []interface{}{studentID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.From != nil {
		add("e.occurred_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("e.occurred_at < $%d", *f.To)
	}
	if f.CategorySlug != "" {
		add("c.slug = $%d", f.CategorySlug)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	query := fmt.Sprintf("%s WHERE %s ORDER BY e.occurred_at DESC, e.id DESC LIMIT $%d OFFSET $%d",
		expenseSelect, strings.Join(where, " AND "), len(args)-1, len(args))

	expenses := []Expense{}
	if err := r.db.SelectContext(ctx, &expenses, query, args...); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (r *repository) Total(ctx context.Context, studentID int, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE student_id = $1 AND occurred_at >= $2 AND occurred_at < $3
	`, studentID, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *repository) TopCategories(ctx context.Context, studentID int, from, to *time.Time, limit int) ([]CategoryTotal, error) {
	where, args := []string{"e.student_id = $1"}, []interface{}{studentID}
	if from != nil {
		args = append(args, *from)
		where = append(where, fmt.Sprintf("e.occurred_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		where = append(where, fmt.Sprintf("e.occurred_at < $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT c.slug, c.name, SUM(e.amount) AS total
		FROM expenses e
		JOIN expense_categories c ON c.id = e.category_id
		WHERE %s
		GROUP BY c.slug, c.name
		ORDER BY total DESC, c.slug
		LIMIT $%d
	`, strings.Join(where, " AND "), len(args))

	totals := []CategoryTotal{}
	if err := r.db.SelectContext(ctx, &totals, query, args...); err != nil {
		return nil, err
	}
	return totals, nil
}
