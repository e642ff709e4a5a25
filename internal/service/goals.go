package service

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/budgetme/ledger/internal/database/repository"
	"github.com/budgetme/ledger/internal/money"
)

// GoalService manages savings goals. A contribution is a real ledger
// transaction plus an atomic progress increment on the goal, committed as
// one unit through the ledger's transaction wrapper.
type GoalService struct {
	Ledger *LedgerService
	Log    zerolog.Logger
}

// CreateGoalInput carries a new goal payload.
type CreateGoalInput struct {
	Name        string
	TargetCents int64
	TargetDate  *time.Time
}

// CreateGoal validates and creates a goal owned by principal.
func (s *GoalService) CreateGoal(ctx context.Context, principal string, in CreateGoalInput) (*repository.Goal, error) {
	if principal == "" {
		return nil, ErrAuthenticationRequired
	}
	errs := fieldErrors{}
	trimmed := strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(trimmed); n < 3 || n > 50 {
		errs.add("name", "must be between 3 and 50 characters")
	}
	if in.TargetCents <= 0 {
		errs.add("target", "must be positive")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	g := repository.Goal{
		ID:          uuid.NewString(),
		UserID:      principal,
		Name:        trimmed,
		TargetCents: in.TargetCents,
		TargetDate:  in.TargetDate,
		Status:      "in_progress",
	}
	var created *repository.Goal
	err := s.Ledger.withRetry(ctx, func(tx *sql.Tx) error {
		if err := repository.NewGoalRepo(tx).Insert(ctx, g); err != nil {
			return err
		}
		created = &g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Contribute moves amountCents from an account into a goal: a contribution
// transaction debits the account while the goal's saved amount is
// incremented, atomically. Reaching the target completes the goal.
func (s *GoalService) Contribute(ctx context.Context, principal, goalID, accountID string, amountCents int64, date time.Time) (*repository.Transaction, error) {
	if principal == "" {
		return nil, ErrAuthenticationRequired
	}
	var created *repository.Transaction
	err := s.Ledger.withRetry(ctx, func(tx *sql.Tx) error {
		goals := repository.NewGoalRepo(tx)
		g, err := goals.GetForUser(ctx, goalID, principal)
		if err != nil {
			return err
		}
		if g == nil {
			return &NotFoundError{Kind: "goal", ID: goalID}
		}
		if g.Status != "in_progress" {
			return (&ValidationError{Fields: map[string]string{"goal_id": "goal is not accepting contributions"}})
		}

		desc := "contribution to " + g.Name
		t, err := s.Ledger.createTransactionTx(ctx, tx, principal, CreateTransactionInput{
			Type:        "contribution",
			AmountCents: amountCents,
			AccountID:   accountID,
			Date:        date,
			Description: &desc,
		})
		if err != nil {
			return err
		}

		current, target, found, err := goals.AddProgress(ctx, goalID, amountCents)
		if err != nil {
			return err
		}
		if !found {
			return &NotFoundError{Kind: "goal", ID: goalID}
		}
		if current >= target {
			if err := goals.UpdateStatus(ctx, goalID, "completed"); err != nil {
				return err
			}
		}

		if err := appendAudit(ctx, tx, principal, auditEvent{
			EntityID:     goalID,
			ActivityType: activityGoalContribution,
			Description:  "contributed " + money.FormatCents(amountCents) + " to " + g.Name,
			Metadata: map[string]any{
				"transaction_id": t.ID,
				"account_id":     accountID,
				"amount_cents":   amountCents,
				"current_cents":  current,
				"target_cents":   target,
				"completed":      current >= target,
			},
		}); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
