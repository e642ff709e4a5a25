package service

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/budgetme/ledger/internal/logger"
)

func newGoals(t *testing.T) (*GoalService, *LedgerService) {
	t.Helper()
	ledger, _ := newLedger(t)
	return &GoalService{Ledger: ledger, Log: logger.NewWithWriter(io.Discard)}, ledger
}

func TestCreateGoalValidation(t *testing.T) {
	t.Parallel()

	goals, _ := newGoals(t)
	_, err := goals.CreateGoal(context.Background(), "user-1", CreateGoalInput{
		Name: "ab", TargetCents: 0,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "name")
	require.Contains(t, verr.Fields, "target")
}

func TestContributeDebitsAccountAndAdvancesGoal(t *testing.T) {
	t.Parallel()

	goals, ledger := newGoals(t)
	ctx := context.Background()
	a := mustAccount(t, ledger, "user-1", "Everyday", "checking", 50000)

	g, err := goals.CreateGoal(ctx, "user-1", CreateGoalInput{Name: "Holiday", TargetCents: 30000})
	require.NoError(t, err)

	tx, err := goals.Contribute(ctx, "user-1", g.ID, a.ID, 10000, dateAt(1))
	require.NoError(t, err)
	require.Equal(t, "contribution", tx.Type)
	require.EqualValues(t, 40000, balanceOf(t, ledger.DB, a.ID))

	var current int64
	var status string
	require.NoError(t, ledger.DB.QueryRowContext(ctx,
		"SELECT current_cents, status FROM goals WHERE id = ?", g.ID).Scan(&current, &status))
	require.EqualValues(t, 10000, current)
	require.Equal(t, "in_progress", status)

	require.NoError(t, ledger.VerifyAccount(ctx, "user-1", a.ID))
	require.Contains(t, auditTypesFor(t, ledger.DB, g.ID), "goal_contribution_created")
}

func TestContributionReachingTargetCompletesGoal(t *testing.T) {
	t.Parallel()

	goals, ledger := newGoals(t)
	ctx := context.Background()
	a := mustAccount(t, ledger, "user-1", "Everyday", "checking", 50000)

	g, err := goals.CreateGoal(ctx, "user-1", CreateGoalInput{Name: "Holiday", TargetCents: 10000})
	require.NoError(t, err)

	_, err = goals.Contribute(ctx, "user-1", g.ID, a.ID, 10000, dateAt(1))
	require.NoError(t, err)

	var status string
	require.NoError(t, ledger.DB.QueryRowContext(ctx,
		"SELECT status FROM goals WHERE id = ?", g.ID).Scan(&status))
	require.Equal(t, "completed", status)

	// A completed goal takes no further contributions.
	_, err = goals.Contribute(ctx, "user-1", g.ID, a.ID, 100, dateAt(2))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "goal_id")
	require.EqualValues(t, 40000, balanceOf(t, ledger.DB, a.ID))
}

func TestContributeUnknownGoalIsNotFound(t *testing.T) {
	t.Parallel()

	goals, ledger := newGoals(t)
	ctx := context.Background()
	a := mustAccount(t, ledger, "user-1", "Everyday", "checking", 50000)

	_, err := goals.Contribute(ctx, "user-1", "no-such-goal", a.ID, 100, dateAt(1))
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "goal", nf.Kind)
	require.EqualValues(t, 50000, balanceOf(t, ledger.DB, a.ID))
}

func TestContributeBadAccountRollsBackGoalProgress(t *testing.T) {
	t.Parallel()

	goals, ledger := newGoals(t)
	ctx := context.Background()

	g, err := goals.CreateGoal(ctx, "user-1", CreateGoalInput{Name: "Holiday", TargetCents: 10000})
	require.NoError(t, err)

	_, err = goals.Contribute(ctx, "user-1", g.ID, "no-such-account", 100, dateAt(1))
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	var current int64
	require.NoError(t, ledger.DB.QueryRowContext(ctx,
		"SELECT current_cents FROM goals WHERE id = ?", g.ID).Scan(&current))
	require.Zero(t, current)
}
