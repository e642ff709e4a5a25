package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/budgetme/ledger/internal/database/repository"
	"github.com/budgetme/ledger/internal/money"
)

// AlertService watches aggregated spend against budgets and raises
// de-duplicated threshold alerts. It is a downstream consumer of committed
// ledger state: it never participates in a mutation's transaction.
type AlertService struct {
	DB  *sql.DB
	Log zerolog.Logger

	// Cooldown suppresses repeat alerts of the same (budget, type)
	// (default 1h).
	Cooldown time.Duration
}

// classifyBudget maps spend against a budget to an alert type: "exceeded"
// at or above 100%, "warning" at or above the threshold, "" otherwise.
func classifyBudget(spentCents, amountCents int64, thresholdPercent float64) string {
	if amountCents <= 0 {
		return ""
	}
	percentage := float64(spentCents) / float64(amountCents) * 100
	switch {
	case percentage >= 100:
		return "exceeded"
	case percentage >= thresholdPercent:
		return "warning"
	default:
		return ""
	}
}

// EvaluateCategory re-evaluates every active budget of one user covering a
// category at the given time.
func (s *AlertService) EvaluateCategory(ctx context.Context, userID, categoryID string, at time.Time) error {
	budgets, err := repository.NewBudgetRepo(s.DB).ListActiveForCategory(ctx, userID, categoryID, at)
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}
	txRepo := repository.NewTransactionRepo(s.DB)
	for _, b := range budgets {
		spent, err := txRepo.SpentForCategory(ctx, userID, categoryID, b.PeriodStart, b.PeriodEnd)
		if err != nil {
			return fmt.Errorf("aggregate spend for budget %s: %w", b.ID, err)
		}
		if _, err := s.EvaluateBudget(ctx, b, spent); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateBudget classifies one budget's spend and inserts an alert unless
// the same (budget, type) alert was already raised within the cooldown
// window. Returns the inserted alert, or nil when none was raised.
func (s *AlertService) EvaluateBudget(ctx context.Context, b repository.Budget, spentCents int64) (*repository.BudgetAlert, error) {
	alertType := classifyBudget(spentCents, b.AmountCents, b.AlertThreshold)
	if alertType == "" {
		return nil, nil
	}
	cooldown := s.Cooldown
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	alerts := repository.NewAlertRepo(s.DB)
	recent, err := alerts.RecentExists(ctx, b.ID, alertType, time.Now().UTC().Add(-cooldown))
	if err != nil {
		return nil, err
	}
	if recent {
		return nil, nil
	}
	a := repository.BudgetAlert{
		ID:        uuid.NewString(),
		BudgetID:  b.ID,
		AlertType: alertType,
		Message: fmt.Sprintf("budget %s: spent %s of %s",
			alertType, money.FormatCents(spentCents), money.FormatCents(b.AmountCents)),
	}
	if err := alerts.Insert(ctx, a); err != nil {
		return nil, err
	}
	s.Log.Info().
		Str("budget_id", b.ID).
		Str("alert_type", alertType).
		Int64("spent_cents", spentCents).
		Msg("budget alert raised")
	return &a, nil
}
