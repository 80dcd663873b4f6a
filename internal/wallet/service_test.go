package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"allowance/internal/auth"
	"allowance/internal/budget"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLinks struct{ mock.Mock }

func (m *MockLinks) ParentLinkedToStudent(ctx context.Context, parentID, studentID int) (bool, error) {
	args := m.Called(ctx, parentID, studentID)
	return args.Bool(0), args.Error(1)
}

type MockStudents struct{ mock.Mock }

func (m *MockStudents) IsStudent(ctx context.Context, userID int) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type MockPlans struct{ mock.Mock }

func (m *MockPlans) LockActivePlan(ctx context.Context, q sqlx.QueryerContext, studentID int) (*budget.Plan, error) {
	args := m.Called(ctx, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*budget.Plan), args.Error(1)
}

type recordingNotifier struct {
	mu       sync.Mutex
	receipts []DepositReceipt
	alerts   []LimitAlert
}

func (n *recordingNotifier) DepositReceived(ctx context.Context, r DepositReceipt) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts = append(n.receipts, r)
	return nil
}

func (n *recordingNotifier) DailyLimitAlert(ctx context.Context, a LimitAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

type fixture struct {
	store    *memStore
	links    *MockLinks
	students *MockStudents
	plans    *MockPlans
	notes    *recordingNotifier
	svc      Service
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		store:    newMemStore(),
		links:    new(MockLinks),
		students: new(MockStudents),
		plans:    new(MockPlans),
		notes:    &recordingNotifier{},
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	f.svc = NewService(f.store, f.links, f.students, f.plans, f.notes, cfg)
	return f
}

var (
	parent = auth.Actor{ID: 100, Role: auth.RoleParent}
	admin  = auth.Actor{ID: 900, Role: auth.RoleAdmin}
)

func (f *fixture) linked(studentID int) {
	f.students.On("IsStudent", mock.Anything, studentID).Return(true, nil)
	f.links.On("ParentLinkedToStudent", mock.Anything, parent.ID, studentID).Return(true, nil)
}

func metadataOf(t *testing.T, txn Transaction) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(txn.Metadata, &m))
	return m
}

func TestDeposit_AllocatesByActivePlan(t *testing.T) {
	f := newFixture(Config{})
	f.linked(1)
	plan := &budget.Plan{
		ID:             9,
		StudentID:      1,
		Currency:       "XAF",
		DailyLimit:     amt("3000.00"),
		SavingsMode:    budget.SavingsPercent,
		SavingsPercent: amt("10"),
		Status:         budget.StatusActive,
		Bills:          []budget.Bill{{ID: 1, PlanID: 9, Title: "Rent", Amount: amt("30000.00"), Priority: 1, IsMandatory: true}},
	}
	f.plans.On("LockActivePlan", mock.Anything, 1).Return(plan, nil)

	res, err := f.svc.Deposit(context.Background(), DepositRequest{
		Actor:       parent,
		StudentID:   1,
		Amount:      amt("50000.00"),
		Description: "March allowance",
		ExternalRef: "DEP-1",
	})
	require.NoError(t, err)

	assert.True(t, res.Wallet.Balance(BucketBills).Equal(amt("30000.00")))
	assert.True(t, res.Wallet.Balance(BucketSavings).Equal(amt("5000.00")))
	assert.True(t, res.Wallet.Balance(BucketDaily).Equal(amt("15000.00")))
	assert.True(t, res.Wallet.DailyLimit.Equal(amt("3000.00")))
	require.NotNil(t, res.Allocation)
	assert.True(t, res.Allocation.SavingsTarget.Equal(amt("5000.00")))

	require.Len(t, res.Transactions, 3)
	wantRefs := []string{"DEP-1-BILLS", "DEP-1-SAVINGS", "DEP-1-DAILY"}
	group := metadataOf(t, res.Transactions[0])["group_ref"]
	assert.NotEmpty(t, group)
	for i, txn := range res.Transactions {
		assert.Equal(t, KindAllocation, txn.Kind)
		assert.Equal(t, DirectionCredit, txn.Direction)
		require.NotNil(t, txn.ExternalRef)
		assert.Equal(t, wantRefs[i], *txn.ExternalRef)
		meta := metadataOf(t, txn)
		assert.Equal(t, group, meta["group_ref"])
		assert.EqualValues(t, 9, meta["plan_id"])
		assert.EqualValues(t, 1, meta["student_id"])
	}
	assert.Contains(t, metadataOf(t, res.Transactions[0]), "bills_breakdown")
	assert.NotContains(t, metadataOf(t, res.Transactions[2]), "bills_breakdown")

	for _, b := range Buckets {
		assert.True(t, f.store.ledgerSum(1, b).Equal(f.store.balance(1, b)), "bucket %s", b)
	}
	require.Len(t, f.notes.receipts, 1)
	assert.True(t, f.notes.receipts[0].Amount.Equal(amt("50000.00")))
}

func TestDeposit_WithoutPlanGoesToDaily(t *testing.T) {
	f := newFixture(Config{})
	f.linked(1)
	f.plans.On("LockActivePlan", mock.Anything, 1).Return(nil, nil)

	res, err := f.svc.Deposit(context.Background(), DepositRequest{Actor: parent, StudentID: 1, Amount: amt("10000.00")})
	require.NoError(t, err)

	assert.True(t, res.Wallet.Balance(BucketDaily).Equal(amt("10000.00")))
	assert.True(t, res.Wallet.Balance(BucketBills).IsZero())
	assert.True(t, res.Wallet.Balance(BucketSavings).IsZero())
	assert.Nil(t, res.Allocation)

	require.Len(t, res.Transactions, 1)
	txn := res.Transactions[0]
	assert.Equal(t, KindDeposit, txn.Kind)
	assert.Nil(t, txn.ExternalRef)
	assert.Equal(t, "fallback", metadataOf(t, txn)["allocation"])
}

func TestDeposit_SkipsZeroAllocations(t *testing.T) {
	f := newFixture(Config{})
	f.linked(1)
	f.plans.On("LockActivePlan", mock.Anything, 1).Return(&budget.Plan{
		ID:          3,
		Currency:    "XAF",
		SavingsMode: budget.SavingsNone,
		Bills:       []budget.Bill{{ID: 1, Title: "Rent", Amount: amt("30000.00"), Priority: 1}},
	}, nil)

	res, err := f.svc.Deposit(context.Background(), DepositRequest{Actor: parent, StudentID: 1, Amount: amt("20000.00")})
	require.NoError(t, err)

	require.Len(t, res.Transactions, 1)
	assert.Equal(t, BucketBills, res.Transactions[0].Bucket)
	assert.True(t, res.Wallet.Balance(BucketBills).Equal(amt("20000.00")))
}

func TestDeposit_Authorization(t *testing.T) {
	t.Run("student cannot deposit", func(t *testing.T) {
		f := newFixture(Config{})
		_, err := f.svc.Deposit(context.Background(), DepositRequest{
			Actor:     auth.Actor{ID: 1, Role: auth.RoleStudent},
			StudentID: 1,
			Amount:    amt("10.00"),
		})
		assert.True(t, errors.Is(err, ErrNotAuthorized))
	})

	t.Run("unlinked parent", func(t *testing.T) {
		f := newFixture(Config{})
		f.students.On("IsStudent", mock.Anything, 2).Return(true, nil)
		f.links.On("ParentLinkedToStudent", mock.Anything, parent.ID, 2).Return(false, nil)

		_, err := f.svc.Deposit(context.Background(), DepositRequest{Actor: parent, StudentID: 2, Amount: amt("10.00")})
		assert.True(t, errors.Is(err, ErrNotAuthorized))
		assert.Equal(t, 0, f.store.txnCount())
	})

	t.Run("admin bypasses links", func(t *testing.T) {
		f := newFixture(Config{})
		f.students.On("IsStudent", mock.Anything, 2).Return(true, nil)
		f.plans.On("LockActivePlan", mock.Anything, 2).Return(nil, nil)

		_, err := f.svc.Deposit(context.Background(), DepositRequest{Actor: admin, StudentID: 2, Amount: amt("10.00")})
		require.NoError(t, err)
		f.links.AssertNotCalled(t, "ParentLinkedToStudent", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("target is not a student", func(t *testing.T) {
		f := newFixture(Config{})
		f.students.On("IsStudent", mock.Anything, 7).Return(false, nil)

		_, err := f.svc.Deposit(context.Background(), DepositRequest{Actor: admin, StudentID: 7, Amount: amt("10.00")})
		assert.True(t, errors.Is(err, ErrStudentNotFound))
	})
}

func TestDeposit_RejectsBadAmounts(t *testing.T) {
	f := newFixture(Config{})
	for _, a := range []string{"0", "-5.00"} {
		_, err := f.svc.Deposit(context.Background(), DepositRequest{Actor: parent, StudentID: 1, Amount: amt(a)})
		assert.True(t, errors.Is(err, ErrInvalidAmount), a)
	}
	_, err := f.svc.Deposit(context.Background(), DepositRequest{Actor: parent, StudentID: 1, Amount: decimal.RequireFromString("1.005")})
	assert.True(t, errors.Is(err, ErrInvalidAmount))
}

func TestDeposit_DuplicateReference(t *testing.T) {
	f := newFixture(Config{})
	f.linked(1)
	f.plans.On("LockActivePlan", mock.Anything, 1).Return(nil, nil)

	req := DepositRequest{Actor: parent, StudentID: 1, Amount: amt("100.00"), ExternalRef: "DEP-7"}
	_, err := f.svc.Deposit(context.Background(), req)
	require.NoError(t, err)

	_, err = f.svc.Deposit(context.Background(), req)
	assert.True(t, errors.Is(err, ErrDuplicateReference))
	assert.True(t, f.store.balance(1, BucketDaily).Equal(amt("100.00")))
}

func TestDeposit_FailureRollsBackEveryEntry(t *testing.T) {
	f := newFixture(Config{})
	f.linked(1)
	f.plans.On("LockActivePlan", mock.Anything, 1).Return(nil, nil)
	f.store.insertErr = errors.New("disk full")

	_, err := f.svc.Deposit(context.Background(), DepositRequest{Actor: parent, StudentID: 1, Amount: amt("100.00")})
	require.Error(t, err)

	assert.True(t, f.store.balance(1, BucketDaily).IsZero())
	assert.Equal(t, 0, f.store.txnCount())
	assert.Empty(t, f.notes.receipts)
}

func TestDeposit_ReadsPlanInsideTheUnit(t *testing.T) {
	f := newFixture(Config{})
	f.linked(1)
	var heldLock bool
	f.plans.On("LockActivePlan", mock.Anything, 1).Return(nil, nil).Run(func(mock.Arguments) {
		// RunInTx holds the store mutex for the whole unit.
		heldLock = !f.store.mu.TryLock()
		if !heldLock {
			f.store.mu.Unlock()
		}
	})

	_, err := f.svc.Deposit(context.Background(), DepositRequest{Actor: parent, StudentID: 1, Amount: amt("100.00")})
	require.NoError(t, err)
	assert.True(t, heldLock)
}

func TestDeposit_InvalidPlanWritesNothing(t *testing.T) {
	f := newFixture(Config{})
	f.linked(1)
	plan := &budget.Plan{
		ID:             3,
		StudentID:      1,
		SavingsMode:    budget.SavingsPercent,
		SavingsPercent: amt("150"),
		Status:         budget.StatusActive,
	}
	f.plans.On("LockActivePlan", mock.Anything, 1).Return(plan, nil)

	_, err := f.svc.Deposit(context.Background(), DepositRequest{Actor: parent, StudentID: 1, Amount: amt("100.00")})
	assert.True(t, errors.Is(err, budget.ErrInvalidAllocationInput))
	assert.Equal(t, 0, f.store.txnCount())
	assert.Empty(t, f.notes.receipts)
}

func TestDeposit_RejectsAmountAboveStorableMax(t *testing.T) {
	f := newFixture(Config{})
	_, err := f.svc.Deposit(context.Background(), DepositRequest{Actor: parent, StudentID: 1, Amount: decimal.RequireFromString("1000000000000.00")})
	assert.True(t, errors.Is(err, ErrInvalidAmount))
	assert.Equal(t, 0, f.store.txnCount())
}

func ptr(s string) *decimal.Decimal {
	d := amt(s)
	return &d
}

func TestDepositWithSplit(t *testing.T) {
	f := newFixture(Config{})
	f.linked(1)

	res, err := f.svc.DepositWithSplit(context.Background(), SplitDepositRequest{
		DepositRequest: DepositRequest{Actor: parent, StudentID: 1, Amount: amt("10000.00"), ExternalRef: "SPL-1"},
		Bills:          ptr("3000.00"),
		Savings:        ptr("2000.00"),
		Daily:          ptr("5000.00"),
	})
	require.NoError(t, err)

	require.Len(t, res.Transactions, 3)
	for _, txn := range res.Transactions {
		assert.Equal(t, KindDeposit, txn.Kind)
	}
	assert.True(t, res.Wallet.Balance(BucketBills).Equal(amt("3000.00")))
	assert.True(t, res.Wallet.Balance(BucketSavings).Equal(amt("2000.00")))
	assert.True(t, res.Wallet.Balance(BucketDaily).Equal(amt("5000.00")))
}

func TestDepositWithSplit_Mismatch(t *testing.T) {
	f := newFixture(Config{})

	_, err := f.svc.DepositWithSplit(context.Background(), SplitDepositRequest{
		DepositRequest: DepositRequest{Actor: parent, StudentID: 1, Amount: amt("10000.00")},
		Bills:          ptr("3000.00"),
		Savings:        ptr("2000.00"),
		Daily:          ptr("4999.99"),
	})

	assert.True(t, errors.Is(err, ErrSplitMismatch))
	assert.Equal(t, 0, f.store.txnCount())
	f.students.AssertNotCalled(t, "IsStudent", mock.Anything, mock.Anything)
}

func TestDepositWithSplit_NegativePart(t *testing.T) {
	f := newFixture(Config{})

	_, err := f.svc.DepositWithSplit(context.Background(), SplitDepositRequest{
		DepositRequest: DepositRequest{Actor: parent, StudentID: 1, Amount: amt("100.00")},
		Bills:          ptr("-10.00"),
		Daily:          ptr("110.00"),
	})
	assert.True(t, errors.Is(err, ErrSplitMismatch))
}

func TestDepositWithSplit_PartialAndEmpty(t *testing.T) {
	f := newFixture(Config{})
	f.linked(1)

	res, err := f.svc.DepositWithSplit(context.Background(), SplitDepositRequest{
		DepositRequest: DepositRequest{Actor: parent, StudentID: 1, Amount: amt("100.00")},
		Bills:          ptr("0"),
		Daily:          ptr("100.00"),
	})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, BucketDaily, res.Transactions[0].Bucket)

	res, err = f.svc.DepositWithSplit(context.Background(), SplitDepositRequest{
		DepositRequest: DepositRequest{Actor: parent, StudentID: 1, Amount: amt("40.00")},
	})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.True(t, res.Wallet.Balance(BucketDaily).Equal(amt("140.00")))
}

func TestRecordExpense_DailyLimitExceeded(t *testing.T) {
	for _, strict := range []bool{false, true} {
		f := newFixture(Config{StrictDailyLimit: strict})
		w := f.store.seed(1, BucketDaily, amt("2000.00"))
		require.NoError(t, f.store.UpdateSettings(context.Background(), w.ID, "XAF", amt("2000.00")))
		f.store.seedExpense(w.ID, amt("1800.00"))

		_, err := f.svc.RecordExpense(context.Background(), ExpenseRequest{StudentID: 1, Amount: amt("300.00")}, nil)

		assert.True(t, errors.Is(err, ErrDailyLimitExceeded), "strict=%v", strict)
		assert.True(t, f.store.balance(1, BucketDaily).Equal(amt("2000.00")))
	}
}

func TestRecordExpense_InsufficientFunds(t *testing.T) {
	f := newFixture(Config{})
	f.store.seed(1, BucketSavings, amt("500.00"))

	_, err := f.svc.RecordExpense(context.Background(), ExpenseRequest{StudentID: 1, Amount: amt("600.00"), Bucket: BucketSavings}, nil)

	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.True(t, f.store.balance(1, BucketSavings).Equal(amt("500.00")))
}

func TestRecordExpense_RunsHookInSameUnit(t *testing.T) {
	f := newFixture(Config{})
	f.store.seed(1, BucketDaily, amt("100.00"))

	var seen *Transaction
	res, err := f.svc.RecordExpense(context.Background(), ExpenseRequest{StudentID: 1, Amount: amt("25.50"), Description: "Lunch"},
		func(ctx context.Context, tx Tx, w *Wallet, t *Transaction) error {
			seen = t
			return nil
		})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, res.Transaction.ID, seen.ID)
	assert.Equal(t, KindExpense, res.Transaction.Kind)
	assert.True(t, res.Wallet.Balance(BucketDaily).Equal(amt("74.50")))
}

func TestRecordExpense_HookErrorRollsBack(t *testing.T) {
	f := newFixture(Config{})
	f.store.seed(1, BucketDaily, amt("100.00"))
	before := f.store.txnCount()
	boom := errors.New("category insert failed")

	_, err := f.svc.RecordExpense(context.Background(), ExpenseRequest{StudentID: 1, Amount: amt("25.00")},
		func(ctx context.Context, tx Tx, w *Wallet, t *Transaction) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.True(t, f.store.balance(1, BucketDaily).Equal(amt("100.00")))
	assert.Equal(t, before, f.store.txnCount())
}

func TestRecordExpense_LimitAlerts(t *testing.T) {
	f := newFixture(Config{})
	w := f.store.seed(1, BucketDaily, amt("5000.00"))
	require.NoError(t, f.store.UpdateSettings(context.Background(), w.ID, "XAF", amt("1000.00")))

	spend := func(a string) {
		_, err := f.svc.RecordExpense(context.Background(), ExpenseRequest{StudentID: 1, Amount: amt(a)}, nil)
		require.NoError(t, err)
	}

	spend("500.00")
	assert.Empty(t, f.notes.alerts)

	spend("350.00")
	require.Len(t, f.notes.alerts, 1)
	assert.Equal(t, AlertNear, f.notes.alerts[0].Level)

	spend("50.00")
	assert.Len(t, f.notes.alerts, 1)

	spend("100.00")
	require.Len(t, f.notes.alerts, 2)
	assert.Equal(t, AlertReached, f.notes.alerts[1].Level)
	assert.True(t, f.notes.alerts[1].Spent.Equal(amt("1000.00")))
}

func TestRecordExpense_NoLimitMeansNoCheck(t *testing.T) {
	f := newFixture(Config{})
	f.store.seed(1, BucketDaily, amt("5000.00"))

	_, err := f.svc.RecordExpense(context.Background(), ExpenseRequest{StudentID: 1, Amount: amt("4000.00")}, nil)
	require.NoError(t, err)
	assert.Empty(t, f.notes.alerts)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(Config{})
	cur := "usd"
	limit := amt("2500.00")

	w, err := f.svc.UpdateSettings(context.Background(), 1, SettingsPatch{Currency: &cur, DailyLimit: &limit})
	require.NoError(t, err)
	assert.Equal(t, "USD", w.Currency)
	assert.True(t, w.DailyLimit.Equal(limit))

	neg := amt("-1.00")
	_, err = f.svc.UpdateSettings(context.Background(), 1, SettingsPatch{DailyLimit: &neg})
	assert.True(t, errors.Is(err, ErrInvalidSettings))

	huge := amt("10000000000.00")
	_, err = f.svc.UpdateSettings(context.Background(), 1, SettingsPatch{DailyLimit: &huge})
	assert.True(t, errors.Is(err, ErrInvalidSettings))

	bad := "EURO"
	_, err = f.svc.UpdateSettings(context.Background(), 1, SettingsPatch{Currency: &bad})
	assert.True(t, errors.Is(err, ErrInvalidSettings))
}

func TestListTransactions_NewestFirst(t *testing.T) {
	f := newFixture(Config{})
	f.store.seed(1, BucketDaily, amt("10.00"))
	f.store.seed(1, BucketDaily, amt("20.00"))
	f.store.seed(1, BucketDaily, amt("30.00"))

	txns, err := f.svc.ListTransactions(context.Background(), 1, 2, 0)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.True(t, txns[0].Amount.Equal(amt("30.00")))
	assert.True(t, txns[1].Amount.Equal(amt("20.00")))
}

func TestConcurrentDebits_KeepBucketInvariant(t *testing.T) {
	f := newFixture(Config{})
	f.store.seed(1, BucketDaily, amt("100.00"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordExpense(context.Background(), ExpenseRequest{StudentID: 1, Amount: amt("7.00")}, nil)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 14, succeeded)
	assert.True(t, f.store.balance(1, BucketDaily).Equal(amt("2.00")))
	assert.True(t, f.store.ledgerSum(1, BucketDaily).Equal(amt("2.00")))
}

func TestDailyStatus(t *testing.T) {
	f := newFixture(Config{})
	w := f.store.seed(1, BucketDaily, amt("5000.00"))

	st, err := f.svc.DailyStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, st.Remaining)
	assert.Equal(t, AlertLevel(""), st.Level)

	require.NoError(t, f.store.UpdateSettings(context.Background(), w.ID, "XAF", amt("2000.00")))
	f.store.seedExpense(w.ID, amt("1700.00"))

	st, err = f.svc.DailyStatus(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, st.Remaining)
	assert.True(t, st.Remaining.Equal(amt("300.00")))
	assert.True(t, st.Spent.Equal(amt("1700.00")))
	assert.Equal(t, AlertNear, st.Level)

	f.store.seedExpense(w.ID, amt("500.00"))
	st, err = f.svc.DailyStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, st.Remaining.IsZero())
	assert.Equal(t, AlertReached, st.Level)
}
