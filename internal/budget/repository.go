package budget

import (
	"context"
	"database/sql"
	"errors"

	"allowance/internal/db"

	"github.com/jmoiron/sqlx"
)

const planColumns = `id, student_id, name, currency, daily_limit, savings_mode, savings_amount, savings_percent, status, created_at, updated_at`

const billColumns = `id, plan_id, title, amount, due_day, priority, is_mandatory, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePlan(ctx context.Context, p *Plan) (*Plan, error) {
	query := `
		INSERT INTO budget_plans (student_id, name, currency, daily_limit, savings_mode, savings_amount, savings_percent, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'INACTIVE')
		RETURNING ` + planColumns

	var plan Plan
	err := r.db.GetContext(ctx, &plan, query,
		p.StudentID, p.Name, p.Currency, p.DailyLimit, p.SavingsMode, p.SavingsAmount, p.SavingsPercent)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) UpdatePlan(ctx context.Context, p *Plan) (*Plan, error) {
	query := `
		UPDATE budget_plans
		SET name = $1, currency = $2, daily_limit = $3, savings_mode = $4,
		    savings_amount = $5, savings_percent = $6, updated_at = NOW()
		WHERE id = $7 AND student_id = $8
		RETURNING ` + planColumns

	var plan Plan
	err := r.db.GetContext(ctx, &plan, query,
		p.Name, p.Currency, p.DailyLimit, p.SavingsMode, p.SavingsAmount, p.SavingsPercent, p.ID, p.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) GetPlan(ctx context.Context, studentID, planID int) (*Plan, error) {
	query := `SELECT ` + planColumns + ` FROM budget_plans WHERE id = $1 AND student_id = $2`

	var plan Plan
	if err := r.db.GetContext(ctx, &plan, query, planID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	bills, err := r.ListBills(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	plan.Bills = bills
	return &plan, nil
}

func (r *repository) ListPlans(ctx context.Context, studentID int) ([]Plan, error) {
	query := `SELECT ` + planColumns + ` FROM budget_plans WHERE student_id = $1 ORDER BY created_at DESC, id DESC`

	plans := []Plan{}
	if err := r.db.SelectContext(ctx, &plans, query, studentID); err != nil {
		return nil, err
	}
	return plans, nil
}

// ActivePlanFor returns the student's ACTIVE plan with its bills, or nil when
// there is none. Should two plans ever be ACTIVE, the newest wins.
func (r *repository) ActivePlanFor(ctx context.Context, studentID int) (*Plan, error) {
	return activePlan(ctx, r.db, studentID, "")
}

// LockActivePlan is ActivePlanFor read through q, an open transaction. The
// plan row stays share-locked until q ends, so an activation for the same
// student waits for it.
func (r *repository) LockActivePlan(ctx context.Context, q sqlx.QueryerContext, studentID int) (*Plan, error) {
	return activePlan(ctx, q, studentID, " FOR SHARE")
}

func activePlan(ctx context.Context, q sqlx.QueryerContext, studentID int, lock string) (*Plan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM budget_plans
		WHERE student_id = $1 AND status = 'ACTIVE'
		ORDER BY created_at DESC, id DESC
		LIMIT 1` + lock

	var plan Plan
	if err := sqlx.GetContext(ctx, q, &plan, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	bills, err := listBills(ctx, q, plan.ID)
	if err != nil {
		return nil, err
	}
	plan.Bills = bills
	return &plan, nil
}

// ActivatePlan makes planID the only ACTIVE plan of the student.
//
// The student's user row is locked first so that two activations aimed at
// different plans of the same student run one after the other. FOR NO KEY
// UPDATE leaves foreign-key inserts referencing the user unblocked.
func (r *repository) ActivatePlan(ctx context.Context, studentID, planID int) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var userID int
		err := tx.GetContext(ctx, &userID, `SELECT id FROM users WHERE id = $1 FOR NO KEY UPDATE`, studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPlanNotFound
			}
			return err
		}

		var id int
		err = tx.GetContext(ctx, &id, `SELECT id FROM budget_plans WHERE id = $1 AND student_id = $2 FOR UPDATE`, planID, studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPlanNotFound
			}
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE budget_plans
			SET status = 'INACTIVE', updated_at = NOW()
			WHERE student_id = $1 AND status = 'ACTIVE' AND id <> $2`,
			studentID, planID,
		)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE budget_plans
			SET status = 'ACTIVE', updated_at = NOW()
			WHERE id = $1`,
			planID,
		)
		return err
	})
}

func (r *repository) ListBills(ctx context.Context, planID int) ([]Bill, error) {
	return listBills(ctx, r.db, planID)
}

func listBills(ctx context.Context, q sqlx.QueryerContext, planID int) ([]Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bill_items WHERE plan_id = $1 ORDER BY priority, created_at, id`

	bills := []Bill{}
	if err := sqlx.SelectContext(ctx, q, &bills, query, planID); err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repository) CreateBill(ctx context.Context, b *Bill) (*Bill, error) {
	query := `
		INSERT INTO bill_items (plan_id, title, amount, due_day, priority, is_mandatory)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + billColumns

	var bill Bill
	err := r.db.GetContext(ctx, &bill, query, b.PlanID, b.Title, b.Amount, b.DueDay, b.Priority, b.IsMandatory)
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

func (r *repository) GetBill(ctx context.Context, studentID, billID int) (*Bill, error) {
	query := `
		SELECT b.id, b.plan_id, b.title, b.amount, b.due_day, b.priority, b.is_mandatory, b.created_at
		FROM bill_items b
		JOIN budget_plans p ON p.id = b.plan_id
		WHERE b.id = $1 AND p.student_id = $2`

	var bill Bill
	if err := r.db.GetContext(ctx, &bill, query, billID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBillNotFound
		}
		return nil, err
	}
	return &bill, nil
}

func (r *repository) UpdateBill(ctx context.Context, b *Bill) (*Bill, error) {
	query := `
		UPDATE bill_items
		SET title = $1, amount = $2, due_day = $3, priority = $4, is_mandatory = $5
		WHERE id = $6
		RETURNING ` + billColumns

	var bill Bill
	err := r.db.GetContext(ctx, &bill, query, b.Title, b.Amount, b.DueDay, b.Priority, b.IsMandatory, b.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBillNotFound
		}
		return nil, err
	}
	return &bill, nil
}

func (r *repository) DeleteBill(ctx context.Context, studentID, billID int) error {
	query := `
		DELETE FROM bill_items b
		USING budget_plans p
		WHERE b.plan_id = p.id AND b.id = $1 AND p.student_id = $2`

	result, err := r.db.ExecContext(ctx, query, billID, studentID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBillNotFound
	}
	return nil
}
