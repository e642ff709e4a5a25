package repository

import (
	"context"
	"database/sql"
)

// CategoryRepo handles categories.
type CategoryRepo struct {
	db DBTX
}

func NewCategoryRepo(db DBTX) *CategoryRepo {
	return &CategoryRepo{db: db}
}

func (r *CategoryRepo) Upsert(ctx context.Context, c Category) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO categories(id, user_id, name, kind, is_active)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 user_id=excluded.user_id,
	 name=excluded.name,
	 kind=excluded.kind,
	 is_active=excluded.is_active;
	`, c.ID, c.UserID, c.Name, c.Kind, c.IsActive)
	return err
}

// GetUsable resolves a category visible to userID: either one they own or a
// shared one without an owner.
func (r *CategoryRepo) GetUsable(ctx context.Context, id, userID string) (*Category, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, name, kind, is_active FROM categories
	WHERE id = ? AND (user_id IS NULL OR user_id = ?)`, id, userID)
	var c Category
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Kind, &c.IsActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListShared lists the ownerless baseline categories.
func (r *CategoryRepo) ListShared(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, name, kind, is_active FROM categories WHERE user_id IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Kind, &c.IsActive); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
