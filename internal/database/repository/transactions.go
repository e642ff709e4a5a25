package repository

import (
	"context"
	"database/sql"
	"time"
)

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db DBTX
}

func NewTransactionRepo(db DBTX) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, user_id, account_id, transfer_account_id, category_id, type, amount_cents, date, description, status, created_at, updated_at`

func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(id, user_id, account_id, transfer_account_id, category_id, type, amount_cents, date, description, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, t.ID, t.UserID, t.AccountID, t.TransferAccountID, t.CategoryID, t.Type, t.AmountCents, t.Date, t.Description, t.Status)
	return err
}

// GetForUser resolves a transaction only when it is owned by userID.
func (r *TransactionRepo) GetForUser(ctx context.Context, id, userID string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// Update rewrites the mutable fields of a transaction row.
func (r *TransactionRepo) Update(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET
	 account_id = ?, transfer_account_id = ?, category_id = ?, type = ?,
	 amount_cents = ?, date = ?, description = ?, status = ?,
	 updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`,
		t.AccountID, t.TransferAccountID, t.CategoryID, t.Type,
		t.AmountCents, t.Date, t.Description, t.Status, t.ID)
	return err
}

func (r *TransactionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	return err
}

// ListForAccount pages the transactions touching an account, as primary or
// as transfer target, newest first.
func (r *TransactionRepo) ListForAccount(ctx context.Context, accountID string, limit, offset int) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+transactionColumns+` FROM transactions
	WHERE account_id = ? OR transfer_account_id = ?
	ORDER BY date DESC, created_at DESC
	LIMIT ? OFFSET ?`, accountID, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ListAllForAccount returns every transaction referencing an account. Used
// by the invariant verifier, which must replay the full log.
func (r *TransactionRepo) ListAllForAccount(ctx context.Context, accountID string) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+transactionColumns+` FROM transactions
	WHERE account_id = ? OR transfer_account_id = ?
	ORDER BY date, created_at`, accountID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CountForAccount reports how many transactions still reference an account.
func (r *TransactionRepo) CountForAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM transactions
	WHERE account_id = ? OR transfer_account_id = ?`, accountID, accountID).Scan(&count)
	return count, err
}

// SpentForCategory sums expense magnitudes for one category of one user
// within [from, to).
func (r *TransactionRepo) SpentForCategory(ctx context.Context, userID, categoryID string, from, to time.Time) (int64, error) {
	var spent int64
	err := r.db.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
	WHERE user_id = ? AND category_id = ? AND type = 'expense'
	  AND date >= ? AND date < ?`, userID, categoryID, from, to).Scan(&spent)
	return spent, err
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	if err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.TransferAccountID, &t.CategoryID, &t.Type,
		&t.AmountCents, &t.Date, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
