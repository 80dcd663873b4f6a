package expense

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"allowance/internal/logger"
	"allowance/internal/money"
	"allowance/internal/wallet"

	"github.com/shopspring/decimal"
)

const topCategoryLimit = 5

// Ledger is the part of the wallet workflow expenses are recorded through.
type Ledger interface {
	RecordExpense(ctx context.Context, req wallet.ExpenseRequest, hook wallet.ExpenseHook) (*wallet.ExpenseResult, error)
	DailyStatus(ctx context.Context, studentID int) (*wallet.DailyStatus, error)
}

type CreateRequest struct {
	StudentID    int
	Amount       decimal.Decimal
	Bucket       wallet.BucketType
	CategoryID   *int
	CategorySlug string
	Note         string
	OccurredAt   *time.Time
}

type CreateResult struct {
	Expense     *Expense            `json:"expense"`
	Wallet      *wallet.Wallet      `json:"wallet"`
	Transaction *wallet.Transaction `json:"transaction"`
}

type Service interface {
	SeedDefaults(ctx context.Context) error
	Categories(ctx context.Context, studentID int) ([]Category, error)
	CreateCategory(ctx context.Context, studentID int, name, slug string) (*Category, error)
	ResolveCategory(ctx context.Context, studentID int, id *int, slug string) (*Category, error)
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	List(ctx context.Context, studentID int, f Filter) ([]Expense, error)
	Summary(ctx context.Context, studentID int) (*Summary, error)
}

type service struct {
	repo   Repository
	ledger Ledger
	loc    *time.Location
	now    func() time.Time
}

func NewService(repo Repository, ledger Ledger, loc *time.Location) Service {
	if loc == nil {
		loc = time.UTC
	}
	return &service{repo: repo, ledger: ledger, loc: loc, now: time.Now}
}

func (s *service) SeedDefaults(ctx context.Context) error {
	if err := s.repo.SeedDefaults(ctx); err != nil {
		return err
	}
	logger.Info("expense categories seeded", "count", len(DefaultCategories))
	return nil
}

func (s *service) Categories(ctx context.Context, studentID int) ([]Category, error) {
	return s.repo.ListCategories(ctx, studentID)
}

func (s *service) CreateCategory(ctx context.Context, studentID int, name, slug string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidCategory)
	}
	if slug == "" {
		slug = name
	}
	slug = Slugify(slug)
	if slug == "" {
		return nil, fmt.Errorf("%w: slug must contain letters or digits", ErrInvalidCategory)
	}
	owner := studentID
	return s.repo.CreateCategory(ctx, &Category{Name: name, Slug: slug, OwnerID: &owner})
}

// ResolveCategory picks the category by id, then by slug, then falls back
// to the default "other" category. An id belonging to another student is
// treated as missing.
func (s *service) ResolveCategory(ctx context.Context, studentID int, id *int, slug string) (*Category, error) {
	if id != nil {
		c, err := s.repo.CategoryByID(ctx, *id)
		if err != nil {
			return nil, err
		}
		if c.OwnerID != nil && *c.OwnerID != studentID {
			return nil, ErrCategoryNotFound
		}
		return c, nil
	}

	if slug = Slugify(slug); slug != "" {
		c, err := s.repo.CategoryBySlug(ctx, studentID, slug)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCategoryNotFound) {
			return nil, err
		}
	}

	c, err := s.repo.CategoryBySlug(ctx, studentID, FallbackSlug)
	if err != nil {
		return nil, fmt.Errorf("fallback category: %w", err)
	}
	return c, nil
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	c, err := s.ResolveCategory(ctx, req.StudentID, req.CategoryID, req.CategorySlug)
	if err != nil {
		return nil, err
	}

	occurred := s.now()
	if req.OccurredAt != nil {
		occurred = *req.OccurredAt
	}

	var exp *Expense
	res, err := s.ledger.RecordExpense(ctx, wallet.ExpenseRequest{
		StudentID:   req.StudentID,
		Amount:      req.Amount,
		Bucket:      req.Bucket,
		Description: req.Note,
		Metadata: map[string]interface{}{
			"category_slug": c.Slug,
			"category_name": c.Name,
		},
	}, func(ctx context.Context, tx wallet.Tx, w *wallet.Wallet, t *wallet.Transaction) error {
		e := &Expense{
			TransactionID: t.ID,
			WalletID:      w.ID,
			StudentID:     req.StudentID,
			CategoryID:    c.ID,
			CategorySlug:  c.Slug,
			CategoryName:  c.Name,
			Amount:        t.Amount,
			Bucket:        t.Bucket,
			Note:          req.Note,
			OccurredAt:    occurred,
		}
		if err := s.repo.InsertExpense(ctx, tx.Ext(), e); err != nil {
			return err
		}
		exp = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("expense recorded",
		"student_id", req.StudentID,
		"expense_id", exp.ID,
		"category", c.Slug,
		"amount", money.Format(exp.Amount),
	)
	return &CreateResult{Expense: exp, Wallet: res.Wallet, Transaction: res.Transaction}, nil
}

func (s *service) List(ctx context.Context, studentID int, f Filter) ([]Expense, error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidFilter)
	}
	if f.CategorySlug != "" {
		f.CategorySlug = Slugify(f.CategorySlug)
	}
	return s.repo.ListExpenses(ctx, studentID, f)
}

// Summary totals spending for the current day, week (starting Monday) and
// month in the service's time zone.
func (s *service) Summary(ctx context.Context, studentID int) (*Summary, error) {
	now := s.now().In(s.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	week := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	end := day.AddDate(0, 0, 1)

	var (
		sum Summary
		err error
	)
	if sum.TotalToday, err = s.repo.Total(ctx, studentID, day, end); err != nil {
		return nil, fmt.Errorf("total today: %w", err)
	}
	if sum.TotalWeek, err = s.repo.Total(ctx, studentID, week, end); err != nil {
		return nil, fmt.Errorf("total week: %w", err)
	}
	if sum.TotalMonth, err = s.repo.Total(ctx, studentID, month, end); err != nil {
		return nil, fmt.Errorf("total month: %w", err)
	}
	if sum.TopCategories, err = s.repo.TopCategories(ctx, studentID, &month, &end, topCategoryLimit); err != nil {
		return nil, fmt.Errorf("top categories: %w", err)
	}

	st, err := s.ledger.DailyStatus(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("daily status: %w", err)
	}
	sum.Alerts = AlertsFor(st)
	return &sum, nil
}

// AlertsFor turns a daily status into the alerts shown to the student. It
// never returns nil.
func AlertsFor(st *wallet.DailyStatus) []Alert {
	alerts := []Alert{}
	switch st.Level {
	case wallet.AlertReached:
		alerts = append(alerts, Alert{
			Type:    AlertDailyLimitReached,
			Message: fmt.Sprintf("daily limit of %s %s reached", money.Format(st.Limit), st.Currency),
		})
	case wallet.AlertNear:
		alerts = append(alerts, Alert{
			Type:    AlertDailyLimitNear,
			Message: fmt.Sprintf("%s of %s %s spent today", money.Format(st.Spent), money.Format(st.Limit), st.Currency),
		})
	}
	return alerts
}
