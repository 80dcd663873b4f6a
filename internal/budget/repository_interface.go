package budget

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	CreatePlan(ctx context.Context, p *Plan) (*Plan, error)
	UpdatePlan(ctx context.Context, p *Plan) (*Plan, error)
	GetPlan(ctx context.Context, studentID, planID int) (*Plan, error)
	ListPlans(ctx context.Context, studentID int) ([]Plan, error)
	ActivePlanFor(ctx context.Context, studentID int) (*Plan, error)
	LockActivePlan(ctx context.Context, q sqlx.QueryerContext, studentID int) (*Plan, error)
	ActivatePlan(ctx context.Context, studentID, planID int) error

	ListBills(ctx context.Context, planID int) ([]Bill, error)
	CreateBill(ctx context.Context, b *Bill) (*Bill, error)
	GetBill(ctx context.Context, studentID, billID int) (*Bill, error)
	UpdateBill(ctx context.Context, b *Bill) (*Bill, error)
	DeleteBill(ctx context.Context, studentID, billID int) error
}
