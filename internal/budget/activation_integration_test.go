package budget_test

import (
	"context"
	"sync"
	"testing"

	"allowance/internal/auth"
	"allowance/internal/budget"
	"allowance/internal/db/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivatePlan_ConcurrentDifferentTargets_Integration(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()

	studentID := dbtest.CreateUser(t, conn, "student@test.com", auth.RoleStudent)
	svc := budget.NewService(budget.NewRepository(conn))

	var planIDs []int
	for _, name := range []string{"A", "B", "C"} {
		p, err := svc.CreatePlan(ctx, studentID, budget.PlanInput{Name: name})
		require.NoError(t, err)
		planIDs = append(planIDs, p.ID)
	}
	_, err := svc.ActivatePlan(ctx, studentID, planIDs[2])
	require.NoError(t, err)

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for _, id := range planIDs[:2] {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				_, err := svc.ActivatePlan(ctx, studentID, id)
				assert.NoError(t, err)
			}(id)
		}
		wg.Wait()

		var active int
		require.NoError(t, conn.Get(&active,
			`SELECT COUNT(*) FROM budget_plans WHERE student_id = $1 AND status = 'ACTIVE'`, studentID))
		require.Equal(t, 1, active, "round %d", round)

		plan, err := svc.ActivePlan(ctx, studentID)
		require.NoError(t, err)
		assert.Contains(t, planIDs[:2], plan.ID)
	}
}

func TestActivatePlan_OtherStudentsPlan_Integration(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, conn, "alice@test.com", auth.RoleStudent)
	bob := dbtest.CreateUser(t, conn, "bob@test.com", auth.RoleStudent)
	svc := budget.NewService(budget.NewRepository(conn))

	p, err := svc.CreatePlan(ctx, alice, budget.PlanInput{Name: "Alice"})
	require.NoError(t, err)

	_, err = svc.ActivatePlan(ctx, bob, p.ID)
	assert.ErrorIs(t, err, budget.ErrPlanNotFound)
}
