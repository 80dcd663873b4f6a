package budget

import (
	"context"
	"fmt"

	"allowance/internal/logger"
	"allowance/internal/metrics"

	"github.com/shopspring/decimal"
)

type PlanInput struct {
	Name           string
	Currency       string
	DailyLimit     decimal.Decimal
	SavingsMode    SavingsMode
	SavingsAmount  decimal.Decimal
	SavingsPercent decimal.Decimal
}

// PlanPatch carries the fields of a partial plan update; nil means unchanged.
type PlanPatch struct {
	Name           *string
	Currency       *string
	DailyLimit     *decimal.Decimal
	SavingsMode    *SavingsMode
	SavingsAmount  *decimal.Decimal
	SavingsPercent *decimal.Decimal
}

type BillInput struct {
	Title       string
	Amount      decimal.Decimal
	DueDay      *int
	Priority    *int
	IsMandatory *bool
}

type BillPatch struct {
	Title       *string
	Amount      *decimal.Decimal
	DueDay      *int
	ClearDueDay bool
	Priority    *int
	IsMandatory *bool
}

type Service interface {
	CreatePlan(ctx context.Context, studentID int, in PlanInput) (*Plan, error)
	UpdatePlan(ctx context.Context, studentID, planID int, patch PlanPatch) (*Plan, error)
	GetPlan(ctx context.Context, studentID, planID int) (*Plan, error)
	ListPlans(ctx context.Context, studentID int) ([]Plan, error)
	ActivePlan(ctx context.Context, studentID int) (*Plan, error)
	ActivatePlan(ctx context.Context, studentID, planID int) (int, error)
	PreviewAllocation(ctx context.Context, studentID int, amount decimal.Decimal) (*Allocation, error)

	ListBills(ctx context.Context, studentID, planID int) ([]Bill, error)
	AddBill(ctx context.Context, studentID, planID int, in BillInput) (*Bill, error)
	UpdateBill(ctx context.Context, studentID, billID int, patch BillPatch) (*Bill, error)
	DeleteBill(ctx context.Context, studentID, billID int) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) CreatePlan(ctx context.Context, studentID int, in PlanInput) (*Plan, error) {
	p := &Plan{
		StudentID:      studentID,
		Name:           in.Name,
		Currency:       in.Currency,
		DailyLimit:     in.DailyLimit,
		SavingsMode:    in.SavingsMode,
		SavingsAmount:  in.SavingsAmount,
		SavingsPercent: in.SavingsPercent,
	}
	if err := normalizePlan(p); err != nil {
		return nil, err
	}

	plan, err := s.repo.CreatePlan(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	logger.Info("budget plan created", "student_id", studentID, "plan_id", plan.ID)
	return plan, nil
}

func (s *service) UpdatePlan(ctx context.Context, studentID, planID int, patch PlanPatch) (*Plan, error) {
	p, err := s.repo.GetPlan(ctx, studentID, planID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Currency != nil {
		p.Currency = *patch.Currency
	}
	if patch.DailyLimit != nil {
		p.DailyLimit = *patch.DailyLimit
	}
	if patch.SavingsMode != nil {
		p.SavingsMode = *patch.SavingsMode
	}
	if patch.SavingsAmount != nil {
		p.SavingsAmount = *patch.SavingsAmount
	}
	if patch.SavingsPercent != nil {
		p.SavingsPercent = *patch.SavingsPercent
	}
	if err := normalizePlan(p); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdatePlan(ctx, p)
	if err != nil {
		return nil, err
	}
	updated.Bills = p.Bills
	return updated, nil
}

func (s *service) GetPlan(ctx context.Context, studentID, planID int) (*Plan, error) {
	return s.repo.GetPlan(ctx, studentID, planID)
}

func (s *service) ListPlans(ctx context.Context, studentID int) ([]Plan, error) {
	return s.repo.ListPlans(ctx, studentID)
}

func (s *service) ActivePlan(ctx context.Context, studentID int) (*Plan, error) {
	plan, err := s.repo.ActivePlanFor(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

func (s *service) ActivatePlan(ctx context.Context, studentID, planID int) (int, error) {
	if err := s.repo.ActivatePlan(ctx, studentID, planID); err != nil {
		return 0, err
	}
	metrics.RecordPlanActivation()
	logger.Info("budget plan activated", "student_id", studentID, "plan_id", planID)
	return planID, nil
}

// PreviewAllocation runs the allocation of amount against the active plan
// without touching the ledger.
func (s *service) PreviewAllocation(ctx context.Context, studentID int, amount decimal.Decimal) (*Allocation, error) {
	plan, err := s.ActivePlan(ctx, studentID)
	if err != nil {
		return nil, err
	}
	a, err := ComputeAllocation(plan, amount)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *service) ListBills(ctx context.Context, studentID, planID int) ([]Bill, error) {
	if _, err := s.repo.GetPlan(ctx, studentID, planID); err != nil {
		return nil, err
	}
	return s.repo.ListBills(ctx, planID)
}

func (s *service) AddBill(ctx context.Context, studentID, planID int, in BillInput) (*Bill, error) {
	if _, err := s.repo.GetPlan(ctx, studentID, planID); err != nil {
		return nil, err
	}

	b := &Bill{
		PlanID:      planID,
		Title:       in.Title,
		Amount:      in.Amount,
		DueDay:      in.DueDay,
		Priority:    1,
		IsMandatory: true,
	}
	if in.Priority != nil {
		b.Priority = *in.Priority
	}
	if in.IsMandatory != nil {
		b.IsMandatory = *in.IsMandatory
	}
	if err := validateBill(b); err != nil {
		return nil, err
	}

	return s.repo.CreateBill(ctx, b)
}

func (s *service) UpdateBill(ctx context.Context, studentID, billID int, patch BillPatch) (*Bill, error) {
	b, err := s.repo.GetBill(ctx, studentID, billID)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		b.Title = *patch.Title
	}
	if patch.Amount != nil {
		b.Amount = *patch.Amount
	}
	if patch.ClearDueDay {
		b.DueDay = nil
	} else if patch.DueDay != nil {
		b.DueDay = patch.DueDay
	}
	if patch.Priority != nil {
		b.Priority = *patch.Priority
	}
	if patch.IsMandatory != nil {
		b.IsMandatory = *patch.IsMandatory
	}
	if err := validateBill(b); err != nil {
		return nil, err
	}

	return s.repo.UpdateBill(ctx, b)
}

func (s *service) DeleteBill(ctx context.Context, studentID, billID int) error {
	return s.repo.DeleteBill(ctx, studentID, billID)
}
