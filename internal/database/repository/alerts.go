package repository

import (
	"context"
	"time"
)

// AlertRepo handles budget alerts.
type AlertRepo struct {
	db DBTX
}

func NewAlertRepo(db DBTX) *AlertRepo { return &AlertRepo{db: db} }

func (r *AlertRepo) Insert(ctx context.Context, a BudgetAlert) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO budget_alerts(id, budget_id, alert_type, message, created_at)
	VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, a.ID, a.BudgetID, a.AlertType, a.Message)
	return err
}

// RecentExists reports whether an alert of the same (budget, type) was
// raised at or after since. Used for cool-down de-duplication.
func (r *AlertRepo) RecentExists(ctx context.Context, budgetID, alertType string, since time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM budget_alerts
	WHERE budget_id = ? AND alert_type = ? AND created_at >= ?`, budgetID, alertType, since).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListForBudget returns the alerts of one budget, newest first.
func (r *AlertRepo) ListForBudget(ctx context.Context, budgetID string) ([]BudgetAlert, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, budget_id, alert_type, message, created_at FROM budget_alerts
	WHERE budget_id = ? ORDER BY created_at DESC`, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BudgetAlert
	for rows.Next() {
		var a BudgetAlert
		if err := rows.Scan(&a.ID, &a.BudgetID, &a.AlertType, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
