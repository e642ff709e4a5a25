package repository

import (
	"context"
	"database/sql"
	"strings"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `id, user_id, name, account_type, balance_cents, initial_balance_cents, currency, status, is_default, color, description, institution, masked_number, created_at, updated_at`

func (r *AccountRepo) Insert(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, user_id, name, account_type, balance_cents, initial_balance_cents, currency, status, is_default, color, description, institution, masked_number, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, a.ID, a.UserID, a.Name, a.AccountType, a.BalanceCents, a.InitialBalanceCents, a.Currency, a.Status, a.IsDefault, a.Color, a.Description, a.Institution, a.MaskedNumber)
	return err
}

// GetForUser resolves an account only when it is owned by userID. A missing
// or foreign account both read as not found.
func (r *AccountRepo) GetForUser(ctx context.Context, id, userID string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ? AND user_id = ?`, id, userID)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *AccountRepo) ListForUser(ctx context.Context, userID string) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpdateFields writes the directly editable fields. Balance is deliberately
// absent; only ApplyDelta moves it.
func (r *AccountRepo) UpdateFields(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE accounts SET
	 name = ?, account_type = ?, status = ?, is_default = ?,
	 color = ?, description = ?, institution = ?, masked_number = ?,
	 updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`,
		a.Name, a.AccountType, a.Status, a.IsDefault,
		a.Color, a.Description, a.Institution, a.MaskedNumber, a.ID)
	return err
}

// ApplyDelta atomically increments an account balance and returns the
// result. Status is deliberately not checked here: validation gates new
// effects against inactive accounts within the same transaction, while
// reversals must still reach closed accounts or their transactions become
// undeletable. found is false only when the row does not exist, which
// aborts the whole mutation.
func (r *AccountRepo) ApplyDelta(ctx context.Context, id string, deltaCents int64) (newBalanceCents int64, found bool, err error) {
	row := r.db.QueryRowContext(ctx, `
	UPDATE accounts
	SET balance_cents = balance_cents + ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?
	RETURNING balance_cents`, deltaCents, id)
	if err := row.Scan(&newBalanceCents); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return newBalanceCents, true, nil
}

// NameExistsForUser reports whether another active account of userID already
// uses name (case-folded, whitespace-collapsed). excludeID skips the account
// being edited.
func (r *AccountRepo) NameExistsForUser(ctx context.Context, userID, name, excludeID string) (bool, error) {
	normalized := normalizeAccountName(name)
	rows, err := r.db.QueryContext(ctx, `
	SELECT name FROM accounts
	WHERE user_id = ? AND status = 'active' AND id != ?`, userID, excludeID)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var existing string
		if err := rows.Scan(&existing); err != nil {
			return false, err
		}
		if normalizeAccountName(existing) == normalized {
			return true, nil
		}
	}
	return false, rows.Err()
}

// normalizeAccountName folds case and collapses runs of whitespace, so
// names differing only in spacing or capitalization count as duplicates.
// Both sides of the comparison go through it; SQL-side folding alone
// cannot collapse interior whitespace.
func normalizeAccountName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ClearDefaultForUser drops the default flag from every account of userID
// except exceptID.
func (r *AccountRepo) ClearDefaultForUser(ctx context.Context, userID, exceptID string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE accounts SET is_default = 0, updated_at = CURRENT_TIMESTAMP
	WHERE user_id = ? AND id != ? AND is_default = 1`, userID, exceptID)
	return err
}

func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.AccountType, &a.BalanceCents, &a.InitialBalanceCents,
		&a.Currency, &a.Status, &a.IsDefault, &a.Color, &a.Description, &a.Institution, &a.MaskedNumber,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
