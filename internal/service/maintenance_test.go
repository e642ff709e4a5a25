package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/budgetme/ledger/internal/logger"
)

func newMaintenance(t *testing.T) (*MaintenanceService, *LedgerService) {
	t.Helper()
	ledger, db := newLedger(t)
	return &MaintenanceService{DB: db, Log: logger.NewWithWriter(io.Discard), Ledger: ledger}, ledger
}

func TestPurgeAuditLogRespectsRetention(t *testing.T) {
	t.Parallel()

	maint, ledger := newMaintenance(t)
	ctx := context.Background()
	a := mustAccount(t, ledger, "user-1", "Everyday", "checking", 0)
	require.NotEmpty(t, auditTypesFor(t, ledger.DB, a.ID))

	// Everything was written just now, so a purge as of today drops nothing.
	purged, err := maint.PurgeAuditLog(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, purged)

	// As seen from far enough in the future, it all expires.
	purged, err = maint.PurgeAuditLog(ctx, time.Now().UTC().AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Positive(t, purged)
	require.Empty(t, auditTypesFor(t, ledger.DB, a.ID))

	// Balances are untouched by audit retention.
	require.EqualValues(t, 0, balanceOf(t, ledger.DB, a.ID))
}

func TestVerifyAllAccountsSurfacesViolation(t *testing.T) {
	t.Parallel()

	maint, ledger := newMaintenance(t)
	ctx := context.Background()
	mustAccount(t, ledger, "user-1", "Everyday", "checking", 0)
	b := mustAccount(t, ledger, "user-1", "Savings", "savings", 0)
	require.NoError(t, maint.VerifyAllAccounts(ctx, "user-1"))

	_, err := ledger.DB.ExecContext(ctx,
		"UPDATE accounts SET balance_cents = 999 WHERE id = ?", b.ID)
	require.NoError(t, err)

	err = maint.VerifyAllAccounts(ctx, "user-1")
	var inv *InvariantViolationError
	require.ErrorAs(t, err, &inv)
	require.Equal(t, b.ID, inv.AccountID)
}

func TestResetClearsAllTables(t *testing.T) {
	t.Parallel()

	maint, ledger := newMaintenance(t)
	ctx := context.Background()
	a := mustAccount(t, ledger, "user-1", "Everyday", "checking", 0)
	_, err := ledger.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type: "income", AmountCents: 100, AccountID: a.ID, Date: dateAt(1),
	})
	require.NoError(t, err)

	require.NoError(t, maint.Reset(ctx))

	for _, table := range []string{"accounts", "transactions", "audit_log"} {
		var count int
		require.NoError(t, ledger.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count))
		require.Zero(t, count, table)
	}
}
