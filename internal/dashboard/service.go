package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"allowance/internal/auth"
	"allowance/internal/expense"
	"allowance/internal/logger"
	"allowance/internal/money"
	"allowance/internal/relationship"
	"allowance/internal/user"
	"allowance/internal/wallet"

	"github.com/shopspring/decimal"
)

const (
	dateLayout       = "2006-01-02"
	topCategoryLimit = 5
	paceDays         = 7
)

// Wallets is the part of wallet.Repository the dashboards read.
type Wallets interface {
	GetOrCreateWallet(ctx context.Context, studentID int) (*wallet.Wallet, error)
	SpentToday(ctx context.Context, walletID int, bucket wallet.BucketType, dayStart, dayEnd time.Time) (decimal.Decimal, error)
}

// Expenses is the part of expense.Repository the dashboards read.
type Expenses interface {
	TopCategories(ctx context.Context, studentID int, from, to *time.Time, limit int) ([]expense.CategoryTotal, error)
}

// Links is the part of relationship.Repository the parent overview reads.
type Links interface {
	ListStudents(ctx context.Context, parentID int) ([]relationship.Link, error)
}

type Directory interface {
	GetByID(ctx context.Context, userID int) (*user.User, error)
}

type Service interface {
	Student(ctx context.Context, studentID int, r Range) (*StudentDashboard, error)

	// ParentStudent is one student's dashboard as seen by actorID. Sent
	// amounts only count actorID's own deposits.
	ParentStudent(ctx context.Context, actorID, studentID int, r Range) (*ParentStudentDashboard, error)
	ParentOverview(ctx context.Context, parentID int, r Range) (*ParentOverview, error)
}

type service struct {
	repo     Repository
	wallets  Wallets
	expenses Expenses
	links    Links
	users    Directory
	loc      *time.Location
	now      func() time.Time
}

func NewService(repo Repository, wallets Wallets, expenses Expenses, links Links, users Directory, loc *time.Location) Service {
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		repo:     repo,
		wallets:  wallets,
		expenses: expenses,
		links:    links,
		users:    users,
		loc:      loc,
		now:      time.Now,
	}
}

// window holds the local day boundaries every figure of one request is
// computed against.
type window struct {
	day   time.Time
	end   time.Time
	month time.Time
	pace  time.Time
}

func (s *service) window() window {
	now := s.now().In(s.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return window{
		day:   day,
		end:   day.AddDate(0, 0, 1),
		month: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc),
		pace:  day.AddDate(0, 0, -(paceDays - 1)),
	}
}

// daysLeft counts today and every remaining day of its month.
func (w window) daysLeft() int {
	last := time.Date(w.day.Year(), w.day.Month()+1, 0, 0, 0, 0, 0, w.day.Location())
	return last.Day() - w.day.Day() + 1
}

func (s *service) Student(ctx context.Context, studentID int, r Range) (*StudentDashboard, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	dash, _, err := s.student(ctx, studentID, s.window(), r)
	return dash, err
}

func (s *service) ParentStudent(ctx context.Context, actorID, studentID int, r Range) (*ParentStudentDashboard, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	if u.Role != auth.RoleStudent {
		return nil, ErrStudentNotFound
	}
	return s.parentStudent(ctx, actorID, Person{ID: u.ID, Name: u.Name, Email: u.Email}, s.window(), r)
}

func (s *service) ParentOverview(ctx context.Context, parentID int, r Range) (*ParentOverview, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	p, err := s.users.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	links, err := s.links.ListStudents(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("linked students: %w", err)
	}

	win := s.window()
	out := &ParentOverview{
		Parent:             Person{ID: p.ID, Name: p.Name, Email: p.Email},
		TotalSentThisMonth: decimal.Zero,
		Students:           make([]ParentStudentDashboard, 0, len(links)),
		Period: Period{
			MonthStart: win.month.Format(dateLayout),
			Today:      win.day.Format(dateLayout),
		},
	}
	for _, l := range links {
		if l.Status != relationship.LinkActive {
			continue
		}
		v, err := s.parentStudent(ctx, parentID, Person{ID: l.StudentID, Name: l.StudentName, Email: l.StudentEmail}, win, r)
		if err != nil {
			return nil, fmt.Errorf("student %d: %w", l.StudentID, err)
		}
		out.TotalSentThisMonth = out.TotalSentThisMonth.Add(v.SentThisMonth)
		out.Students = append(out.Students, *v)
	}

	logger.Debug("parent overview built", "parent_id", parentID, "students", len(out.Students))
	return out, nil
}

func (s *service) parentStudent(ctx context.Context, actorID int, student Person, win window, r Range) (*ParentStudentDashboard, error) {
	dash, w, err := s.student(ctx, student.ID, win, r)
	if err != nil {
		return nil, err
	}
	deposits, err := s.repo.DepositsByBucket(ctx, w.ID, actorID, win.month, win.end)
	if err != nil {
		return nil, fmt.Errorf("deposits this month: %w", err)
	}
	sent := decimal.Zero
	for _, d := range deposits {
		sent = sent.Add(d.Total)
	}

	return &ParentStudentDashboard{
		Student:       student,
		SentThisMonth: sent,
		Repartition:   deposits,
		Wallet:        dash.Wallet,
		Spending:      dash.Spending,
		TopCategories: dash.TopCategories,
		Alerts:        dash.Alerts,
	}, nil
}

func (s *service) student(ctx context.Context, studentID int, win window, r Range) (*StudentDashboard, *wallet.Wallet, error) {
	w, err := s.wallets.GetOrCreateWallet(ctx, studentID)
	if err != nil {
		return nil, nil, err
	}
	spent, err := s.wallets.SpentToday(ctx, w.ID, wallet.BucketDaily, win.day, win.end)
	if err != nil {
		return nil, nil, fmt.Errorf("spent today: %w", err)
	}
	month, err := s.repo.ExpenseTotal(ctx, w.ID, win.month, win.end)
	if err != nil {
		return nil, nil, fmt.Errorf("total month: %w", err)
	}
	pace, err := s.repo.ExpenseTotal(ctx, w.ID, win.pace, win.end)
	if err != nil {
		return nil, nil, fmt.Errorf("total last %d days: %w", paceDays, err)
	}

	from, to := r.From, r.To
	if from == nil && to == nil {
		from, to = &win.month, &win.end
	}
	top, err := s.expenses.TopCategories(ctx, studentID, from, to, topCategoryLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("top categories: %w", err)
	}

	status := wallet.NewDailyStatus(w, spent)
	daily := w.Balance(wallet.BucketDaily)
	return &StudentDashboard{
		Wallet: WalletView{
			Currency:   w.Currency,
			DailyLimit: w.DailyLimit,
			Buckets: map[wallet.BucketType]decimal.Decimal{
				wallet.BucketDaily:   daily,
				wallet.BucketSavings: w.Balance(wallet.BucketSavings),
				wallet.BucketBills:   w.Balance(wallet.BucketBills),
			},
		},
		Spending: Spending{
			SpentToday:     spent,
			RemainingToday: status.Remaining,
			TotalMonth:     month,
		},
		Projection:    project(daily, pace, win.daysLeft()),
		TopCategories: top,
		Alerts:        expense.AlertsFor(status),
	}, w, nil
}

// project derives the projection from the DAILY balance and the total spent
// over the last paceDays days. The estimate stays nil while the pace is
// zero.
func project(daily, paceTotal decimal.Decimal, daysLeft int) Projection {
	p := Projection{
		DaysLeftInMonth:       daysLeft,
		RecommendedDailySpend: daily,
		AvgDailySpend7d:       money.Round(paceTotal.Div(decimal.NewFromInt(paceDays))),
	}
	if daysLeft > 0 {
		p.RecommendedDailySpend = money.Round(daily.Div(decimal.NewFromInt(int64(daysLeft))))
	}
	if money.Positive(p.AvgDailySpend7d) {
		est := money.Round(daily.Div(p.AvgDailySpend7d))
		p.DaysUntilDailyEmpty = &est
	}
	return p
}

func (r Range) validate() error {
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return fmt.Errorf("%w: from must be before to", ErrInvalidRange)
	}
	return nil
}
