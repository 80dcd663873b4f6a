package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"allowance/internal/auth"
	"allowance/internal/budget"
	"allowance/internal/logger"
	"allowance/internal/metrics"
	"allowance/internal/money"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Authorizer answers whether a parent holds an active link to a student.
type Authorizer interface {
	ParentLinkedToStudent(ctx context.Context, parentID, studentID int) (bool, error)
}

type StudentDirectory interface {
	IsStudent(ctx context.Context, userID int) (bool, error)
}

// PlanSource returns the student's active plan, or nil when there is none.
// The plan is read through q and stays locked until q's transaction ends.
type PlanSource interface {
	LockActivePlan(ctx context.Context, q sqlx.QueryerContext, studentID int) (*budget.Plan, error)
}

type AlertLevel string

const (
	AlertNear    AlertLevel = "NEAR"
	AlertReached AlertLevel = "REACHED"
)

type DepositReceipt struct {
	StudentID    int
	ActorID      int
	Amount       decimal.Decimal
	Currency     string
	Transactions []Transaction
}

type LimitAlert struct {
	StudentID int
	Level     AlertLevel
	Spent     decimal.Decimal
	Limit     decimal.Decimal
	Currency  string
}

// Notifier is told about committed ledger events. Failures never affect the
// ledger.
type Notifier interface {
	DepositReceived(ctx context.Context, r DepositReceipt) error
	DailyLimitAlert(ctx context.Context, a LimitAlert) error
}

type noopNotifier struct{}

func (noopNotifier) DepositReceived(context.Context, DepositReceipt) error { return nil }
func (noopNotifier) DailyLimitAlert(context.Context, LimitAlert) error     { return nil }

type Config struct {
	Location *time.Location

	// StrictDailyLimit re-checks the daily cap while the DAILY bucket is
	// locked instead of only before the transaction.
	StrictDailyLimit bool
}

type DepositRequest struct {
	Actor       auth.Actor
	StudentID   int
	Amount      decimal.Decimal
	Description string
	ExternalRef string
}

// SplitDepositRequest is a deposit whose per-bucket amounts are chosen by
// the caller. Nil sub-amounts count as zero.
type SplitDepositRequest struct {
	DepositRequest
	Bills   *decimal.Decimal
	Savings *decimal.Decimal
	Daily   *decimal.Decimal
}

type DepositResult struct {
	Wallet       *Wallet            `json:"wallet"`
	Transactions []Transaction      `json:"transactions"`
	Allocation   *budget.Allocation `json:"allocation,omitempty"`
}

type ExpenseRequest struct {
	StudentID   int
	Amount      decimal.Decimal
	Bucket      BucketType
	Description string
	Metadata    map[string]interface{}
}

type ExpenseResult struct {
	Wallet      *Wallet      `json:"wallet"`
	Transaction *Transaction `json:"transaction"`
}

// ExpenseHook runs inside the expense's transaction after the debit. An
// error rolls the debit back.
type ExpenseHook func(ctx context.Context, tx Tx, w *Wallet, t *Transaction) error

// DailyStatus is today's DAILY spending against the wallet's limit.
// Remaining and Level are only set when a limit is configured.
type DailyStatus struct {
	Currency  string           `json:"currency"`
	Limit     decimal.Decimal  `json:"daily_limit"`
	Spent     decimal.Decimal  `json:"spent_today"`
	Remaining *decimal.Decimal `json:"remaining_today"`
	Level     AlertLevel       `json:"alert_level,omitempty"`
}

type SettingsPatch struct {
	Currency   *string
	DailyLimit *decimal.Decimal
}

type Service interface {
	GetOrCreateWallet(ctx context.Context, studentID int) (*Wallet, error)
	StudentWallet(ctx context.Context, studentID int) (*Wallet, error)
	Deposit(ctx context.Context, req DepositRequest) (*DepositResult, error)
	DepositWithSplit(ctx context.Context, req SplitDepositRequest) (*DepositResult, error)
	RecordExpense(ctx context.Context, req ExpenseRequest, hook ExpenseHook) (*ExpenseResult, error)
	ListTransactions(ctx context.Context, studentID, limit, offset int) ([]Transaction, error)
	UpdateSettings(ctx context.Context, studentID int, patch SettingsPatch) (*Wallet, error)
	DailyStatus(ctx context.Context, studentID int) (*DailyStatus, error)
}

type service struct {
	repo     Repository
	links    Authorizer
	students StudentDirectory
	plans    PlanSource
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

func NewService(repo Repository, links Authorizer, students StudentDirectory, plans PlanSource, notifier Notifier, cfg Config) Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &service{
		repo:     repo,
		links:    links,
		students: students,
		plans:    plans,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *service) GetOrCreateWallet(ctx context.Context, studentID int) (*Wallet, error) {
	return s.repo.GetOrCreateWallet(ctx, studentID)
}

// StudentWallet is GetOrCreateWallet for a student id supplied by someone
// else, so it first makes sure the id names a student.
func (s *service) StudentWallet(ctx context.Context, studentID int) (*Wallet, error) {
	if err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return s.repo.GetOrCreateWallet(ctx, studentID)
}

func (s *service) Deposit(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	amount, err := positiveAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, req.Actor, req.StudentID); err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, req.ExternalRef); err != nil {
		return nil, err
	}

	group := uuid.NewString()
	actorID := req.Actor.ID
	var (
		txns  []Transaction
		alloc *budget.Allocation
	)

	err = s.repo.RunInTx(ctx, func(tx Tx) error {
		plan, err := s.plans.LockActivePlan(ctx, tx.Ext(), req.StudentID)
		if err != nil {
			return fmt.Errorf("active plan: %w", err)
		}
		if plan != nil {
			a, err := budget.ComputeAllocation(plan, amount)
			if err != nil {
				return err
			}
			alloc = &a
		}

		w, err := tx.GetOrCreateWallet(ctx, req.StudentID)
		if err != nil {
			return err
		}

		if alloc == nil {
			t, err := Credit(ctx, tx, Entry{
				WalletID:    w.ID,
				ActorID:     &actorID,
				Bucket:      BucketDaily,
				Amount:      amount,
				Kind:        KindDeposit,
				Description: req.Description,
				ExternalRef: bucketRef(req.ExternalRef, BucketDaily),
				Metadata: map[string]interface{}{
					"allocation": "fallback",
					"group_ref":  group,
					"student_id": req.StudentID,
				},
			})
			if err != nil {
				return err
			}
			txns = append(txns, *t)
			return nil
		}

		if err := tx.UpdateSettings(ctx, w.ID, alloc.Currency, alloc.DailyLimit); err != nil {
			return fmt.Errorf("apply plan settings: %w", err)
		}

		parts := map[BucketType]decimal.Decimal{
			BucketBills:   alloc.BillsAllocated,
			BucketSavings: alloc.SavingsAllocated,
			BucketDaily:   alloc.DailyAllocated,
		}
		for _, b := range Buckets {
			if !money.Positive(parts[b]) {
				continue
			}
			meta := map[string]interface{}{
				"group_ref":  group,
				"student_id": req.StudentID,
				"plan_id":    alloc.PlanID,
			}
			if b == BucketBills {
				meta["bills_breakdown"] = alloc.BillsBreakdown
			}
			t, err := Credit(ctx, tx, Entry{
				WalletID:    w.ID,
				ActorID:     &actorID,
				Bucket:      b,
				Amount:      parts[b],
				Kind:        KindAllocation,
				Description: req.Description,
				ExternalRef: bucketRef(req.ExternalRef, b),
				Metadata:    meta,
			})
			if err != nil {
				return err
			}
			txns = append(txns, *t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	mode := "fallback"
	if alloc != nil {
		mode = "plan"
	}
	return s.finishDeposit(ctx, req, amount, mode, txns, alloc)
}

func (s *service) DepositWithSplit(ctx context.Context, req SplitDepositRequest) (*DepositResult, error) {
	amount, err := positiveAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	parts, err := splitParts(amount, req.Bills, req.Savings, req.Daily)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, req.Actor, req.StudentID); err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, req.ExternalRef); err != nil {
		return nil, err
	}

	group := uuid.NewString()
	actorID := req.Actor.ID
	var txns []Transaction

	err = s.repo.RunInTx(ctx, func(tx Tx) error {
		w, err := tx.GetOrCreateWallet(ctx, req.StudentID)
		if err != nil {
			return err
		}
		for _, b := range Buckets {
			if !money.Positive(parts[b]) {
				continue
			}
			t, err := Credit(ctx, tx, Entry{
				WalletID:    w.ID,
				ActorID:     &actorID,
				Bucket:      b,
				Amount:      parts[b],
				Kind:        KindDeposit,
				Description: req.Description,
				ExternalRef: bucketRef(req.ExternalRef, b),
				Metadata: map[string]interface{}{
					"group_ref":  group,
					"student_id": req.StudentID,
				},
			})
			if err != nil {
				return err
			}
			txns = append(txns, *t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.finishDeposit(ctx, req.DepositRequest, amount, "split", txns, nil)
}

func (s *service) finishDeposit(ctx context.Context, req DepositRequest, amount decimal.Decimal, mode string, txns []Transaction, alloc *budget.Allocation) (*DepositResult, error) {
	metrics.RecordDeposit(mode)

	w, err := s.repo.GetWallet(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("reload wallet: %w", err)
	}

	logger.Info("deposit recorded",
		"student_id", req.StudentID,
		"actor_id", req.Actor.ID,
		"amount", money.Format(amount),
		"mode", mode,
		"entries", len(txns),
	)

	err = s.notifier.DepositReceived(ctx, DepositReceipt{
		StudentID:    req.StudentID,
		ActorID:      req.Actor.ID,
		Amount:       amount,
		Currency:     w.Currency,
		Transactions: txns,
	})
	if err != nil {
		logger.Warn("deposit notification failed", "student_id", req.StudentID, "error", err.Error())
	}

	if txns == nil {
		txns = []Transaction{}
	}
	return &DepositResult{Wallet: w, Transactions: txns, Allocation: alloc}, nil
}

func (s *service) RecordExpense(ctx context.Context, req ExpenseRequest, hook ExpenseHook) (*ExpenseResult, error) {
	bucket := req.Bucket
	if bucket == "" {
		bucket = BucketDaily
	}
	if !bucket.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBucket, bucket)
	}
	amount, err := positiveAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	w, err := s.repo.GetOrCreateWallet(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	limited := bucket == BucketDaily && money.Positive(w.DailyLimit)
	dayStart, dayEnd := s.today()

	var dailyCap *DailyCap
	if limited {
		if s.cfg.StrictDailyLimit {
			dailyCap = &DailyCap{Limit: w.DailyLimit, DayStart: dayStart, DayEnd: dayEnd}
		} else {
			// Advisory only: two concurrent expenses can both pass this
			// check. StrictDailyLimit closes the gap.
			spent, err := s.repo.SpentToday(ctx, w.ID, BucketDaily, dayStart, dayEnd)
			if err != nil {
				return nil, fmt.Errorf("spent today: %w", err)
			}
			if spent.Add(amount).GreaterThan(w.DailyLimit) {
				metrics.RecordRejection("daily_limit")
				return nil, fmt.Errorf("%w: spent %s of %s today", ErrDailyLimitExceeded, money.Format(spent), money.Format(w.DailyLimit))
			}
		}
	}

	actorID := req.StudentID
	var txn *Transaction

	err = s.repo.RunInTx(ctx, func(tx Tx) error {
		t, err := Debit(ctx, tx, Entry{
			WalletID:    w.ID,
			ActorID:     &actorID,
			Bucket:      bucket,
			Amount:      amount,
			Kind:        KindExpense,
			Description: req.Description,
			Metadata:    req.Metadata,
			DailyCap:    dailyCap,
		})
		if err != nil {
			return err
		}
		if hook != nil {
			if err := hook(ctx, tx, w, t); err != nil {
				return err
			}
		}
		txn = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limited {
		s.alertIfCrossed(ctx, w, amount, dayStart, dayEnd)
	}

	fresh, err := s.repo.GetWallet(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("reload wallet: %w", err)
	}
	return &ExpenseResult{Wallet: fresh, Transaction: txn}, nil
}

// alertIfCrossed notifies once per threshold: only the expense that moves
// today's spend across 80% or 100% of the limit raises an alert.
func (s *service) alertIfCrossed(ctx context.Context, w *Wallet, amount decimal.Decimal, dayStart, dayEnd time.Time) {
	spent, err := s.repo.SpentToday(ctx, w.ID, BucketDaily, dayStart, dayEnd)
	if err != nil {
		logger.Warn("daily spend lookup failed", "wallet_id", w.ID, "error", err.Error())
		return
	}
	level := levelFor(spent, w.DailyLimit)
	if level == "" || level == levelFor(spent.Sub(amount), w.DailyLimit) {
		return
	}

	err = s.notifier.DailyLimitAlert(ctx, LimitAlert{
		StudentID: w.StudentID,
		Level:     level,
		Spent:     spent,
		Limit:     w.DailyLimit,
		Currency:  w.Currency,
	})
	if err != nil {
		logger.Warn("limit alert failed", "student_id", w.StudentID, "error", err.Error())
	}
}

func (s *service) ListTransactions(ctx context.Context, studentID, limit, offset int) ([]Transaction, error) {
	w, err := s.repo.GetOrCreateWallet(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, w.ID, limit, offset)
}

func (s *service) UpdateSettings(ctx context.Context, studentID int, patch SettingsPatch) (*Wallet, error) {
	w, err := s.repo.GetOrCreateWallet(ctx, studentID)
	if err != nil {
		return nil, err
	}

	currency := w.Currency
	if patch.Currency != nil {
		currency = strings.ToUpper(strings.TrimSpace(*patch.Currency))
		if len(currency) != 3 {
			return nil, fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidSettings)
		}
	}
	limit := w.DailyLimit
	if patch.DailyLimit != nil {
		limit = *patch.DailyLimit
		if limit.IsNegative() {
			return nil, fmt.Errorf("%w: daily_limit must be >= 0", ErrInvalidSettings)
		}
		if err := money.CheckLimit(limit); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
	}

	if err := s.repo.UpdateSettings(ctx, w.ID, currency, limit); err != nil {
		return nil, err
	}
	w.Currency = currency
	w.DailyLimit = limit
	return w, nil
}

func (s *service) DailyStatus(ctx context.Context, studentID int) (*DailyStatus, error) {
	w, err := s.repo.GetOrCreateWallet(ctx, studentID)
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd := s.today()
	spent, err := s.repo.SpentToday(ctx, w.ID, BucketDaily, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("spent today: %w", err)
	}

	return NewDailyStatus(w, spent), nil
}

// NewDailyStatus builds the status of w given what was spent from DAILY
// today.
func NewDailyStatus(w *Wallet, spent decimal.Decimal) *DailyStatus {
	st := &DailyStatus{Currency: w.Currency, Limit: w.DailyLimit, Spent: spent}
	if money.Positive(w.DailyLimit) {
		remaining := w.DailyLimit.Sub(spent)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		st.Remaining = &remaining
		st.Level = levelFor(spent, w.DailyLimit)
	}
	return st
}

// levelFor returns the alert level of spent against a positive limit.
func levelFor(spent, limit decimal.Decimal) AlertLevel {
	switch {
	case spent.GreaterThanOrEqual(limit):
		return AlertReached
	case spent.GreaterThanOrEqual(money.Percent(limit, decimal.NewFromInt(80))):
		return AlertNear
	}
	return ""
}

// authorize lets admins deposit anywhere and parents only to linked
// students.
func (s *service) authorize(ctx context.Context, actor auth.Actor, studentID int) error {
	if !actor.Can(auth.CapDeposit) {
		return fmt.Errorf("%w: role %s cannot deposit", ErrNotAuthorized, actor.Role)
	}
	if err := s.requireStudent(ctx, studentID); err != nil {
		return err
	}
	if actor.Can(auth.CapBypassLinks) {
		return nil
	}
	linked, err := s.links.ParentLinkedToStudent(ctx, actor.ID, studentID)
	if err != nil {
		return fmt.Errorf("check link: %w", err)
	}
	if !linked {
		return fmt.Errorf("%w: parent not linked to this student", ErrNotAuthorized)
	}
	return nil
}

func (s *service) requireStudent(ctx context.Context, studentID int) error {
	ok, err := s.students.IsStudent(ctx, studentID)
	if err != nil {
		return fmt.Errorf("lookup student: %w", err)
	}
	if !ok {
		return ErrStudentNotFound
	}
	return nil
}

func (s *service) checkRefs(ctx context.Context, base string) error {
	if base == "" {
		return nil
	}
	refs := make([]string, 0, len(Buckets))
	for _, b := range Buckets {
		refs = append(refs, bucketRef(base, b))
	}
	exists, err := s.repo.ExternalRefsExist(ctx, refs)
	if err != nil {
		return fmt.Errorf("check external ref: %w", err)
	}
	if exists {
		metrics.RecordRejection("duplicate_reference")
		return fmt.Errorf("%w: %s", ErrDuplicateReference, base)
	}
	return nil
}

// today returns the bounds of the current local day in the configured zone.
func (s *service) today() (time.Time, time.Time) {
	now := s.now().In(s.cfg.Location)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	return start, start.AddDate(0, 0, 1)
}

func bucketRef(base string, b BucketType) string {
	if base == "" {
		return ""
	}
	return base + "-" + string(b)
}

func positiveAmount(d decimal.Decimal) (decimal.Decimal, error) {
	if err := money.Check(d); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if !money.Positive(d) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func splitParts(amount decimal.Decimal, bills, savings, daily *decimal.Decimal) (map[BucketType]decimal.Decimal, error) {
	if bills == nil && savings == nil && daily == nil {
		return map[BucketType]decimal.Decimal{BucketDaily: amount}, nil
	}

	parts := map[BucketType]decimal.Decimal{}
	for b, p := range map[BucketType]*decimal.Decimal{BucketBills: bills, BucketSavings: savings, BucketDaily: daily} {
		if p == nil {
			continue
		}
		if p.IsNegative() {
			return nil, fmt.Errorf("%w: %s amount must be >= 0", ErrSplitMismatch, strings.ToLower(string(b)))
		}
		if err := money.Check(*p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		parts[b] = *p
	}
	total := money.Sum(parts[BucketBills], parts[BucketSavings], parts[BucketDaily])
	if !total.Equal(amount) {
		return nil, fmt.Errorf("%w: %s != %s", ErrSplitMismatch, money.Format(total), money.Format(amount))
	}
	return parts, nil
}
