package repository

import (
	"context"
	"time"
)

// BudgetRepo handles budgets.
type BudgetRepo struct {
	db DBTX
}

func NewBudgetRepo(db DBTX) *BudgetRepo { return &BudgetRepo{db: db} }

func (r *BudgetRepo) Insert(ctx context.Context, b Budget) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO budgets(id, user_id, category_id, amount_cents, alert_threshold, period_start, period_end, is_active)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`, b.ID, b.UserID, b.CategoryID, b.AmountCents, b.AlertThreshold, b.PeriodStart, b.PeriodEnd, b.IsActive)
	return err
}

// ListActiveForCategory returns the active budgets of one user whose period
// covers at.
func (r *BudgetRepo) ListActiveForCategory(ctx context.Context, userID, categoryID string, at time.Time) ([]Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, category_id, amount_cents, alert_threshold, period_start, period_end, is_active
	FROM budgets
	WHERE user_id = ? AND category_id = ? AND is_active = 1
	  AND period_start <= ? AND period_end > ?`, userID, categoryID, at, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Budget
	for rows.Next() {
		var b Budget
		if err := rows.Scan(&b.ID, &b.UserID, &b.CategoryID, &b.AmountCents, &b.AlertThreshold, &b.PeriodStart, &b.PeriodEnd, &b.IsActive); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
