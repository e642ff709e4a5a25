package repository

import (
	"context"
	"database/sql"
)

// GoalRepo handles savings goals.
type GoalRepo struct {
	db DBTX
}

func NewGoalRepo(db DBTX) *GoalRepo { return &GoalRepo{db: db} }

func (r *GoalRepo) Insert(ctx context.Context, g Goal) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO goals(id, user_id, name, target_cents, current_cents, target_date, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, g.ID, g.UserID, g.Name, g.TargetCents, g.CurrentCents, g.TargetDate, g.Status)
	return err
}

func (r *GoalRepo) GetForUser(ctx context.Context, id, userID string) (*Goal, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, name, target_cents, current_cents, target_date, status, created_at
	FROM goals WHERE id = ? AND user_id = ?`, id, userID)
	var g Goal
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetCents, &g.CurrentCents, &g.TargetDate, &g.Status, &g.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

// AddProgress atomically increments the saved amount and returns the
// resulting progress.
func (r *GoalRepo) AddProgress(ctx context.Context, id string, deltaCents int64) (currentCents, targetCents int64, found bool, err error) {
	row := r.db.QueryRowContext(ctx, `
	UPDATE goals SET current_cents = current_cents + ?
	WHERE id = ?
	RETURNING current_cents, target_cents`, deltaCents, id)
	if err := row.Scan(&currentCents, &targetCents); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return currentCents, targetCents, true, nil
}

func (r *GoalRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE goals SET status = ? WHERE id = ?`, status, id)
	return err
}
