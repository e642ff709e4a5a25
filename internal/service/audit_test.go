package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/budgetme/ledger/internal/database/repository"
)

func TestAccountEditAuditIsDiffGated(t *testing.T) {
	t.Parallel()

	svc, db := newLedger(t)
	ctx := context.Background()
	a := mustAccount(t, svc, "user-1", "Everyday", "checking", 0)

	// A patch that changes nothing audited records nothing.
	_, err := svc.UpdateAccount(ctx, "user-1", a.ID, AccountPatch{
		Name: &a.Name, Color: ptr("#336699"),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"account_created"}, auditTypesFor(t, db, a.ID))

	_, err = svc.UpdateAccount(ctx, "user-1", a.ID, AccountPatch{Name: ptr("Main Checking")})
	require.NoError(t, err)
	require.Equal(t, []string{"account_created", "account_updated"}, auditTypesFor(t, db, a.ID))
}

func TestAccountUpdateAuditRecordsOldAndNew(t *testing.T) {
	t.Parallel()

	svc, _ := newLedger(t)
	ctx := context.Background()
	a := mustAccount(t, svc, "user-1", "Everyday", "checking", 0)

	_, err := svc.UpdateAccount(ctx, "user-1", a.ID, AccountPatch{Name: ptr("Main Checking")})
	require.NoError(t, err)

	entries, err := svc.GetAuditHistory(ctx, "user-1", a.ID, 10, 0)
	require.NoError(t, err)
	require.Equal(t, "account_updated", entries[0].ActivityType)

	changes, ok := entries[0].Metadata["changes"].(map[string]any)
	require.True(t, ok)
	nameChange, ok := changes["name"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Everyday", nameChange["old"])
	require.Equal(t, "Main Checking", nameChange["new"])
}

func TestBalanceChangeEntriesCarryDelta(t *testing.T) {
	t.Parallel()

	svc, _ := newLedger(t)
	ctx := context.Background()
	a := mustAccount(t, svc, "user-1", "Everyday", "checking", 0)

	_, err := svc.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type: "income", AmountCents: 2500, AccountID: a.ID, Date: dateAt(1),
	})
	require.NoError(t, err)

	entries, err := svc.GetAuditHistory(ctx, "user-1", a.ID, 10, 0)
	require.NoError(t, err)
	require.Equal(t, "account_balance_change", entries[0].ActivityType)
	require.EqualValues(t, 0, entries[0].Metadata["old_balance_cents"])
	require.EqualValues(t, 2500, entries[0].Metadata["new_balance_cents"])
	require.EqualValues(t, 2500, entries[0].Metadata["delta_cents"])
	require.Equal(t, "25.00", entries[0].Metadata["new_balance"])
	require.Equal(t, "transaction_created", entries[0].Metadata["cause"])
}

func TestAuditEntriesOrderedBySeq(t *testing.T) {
	t.Parallel()

	svc, db := newLedger(t)
	ctx := context.Background()
	a := mustAccount(t, svc, "user-1", "Everyday", "checking", 0)

	tx, err := svc.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type: "income", AmountCents: 100, AccountID: a.ID, Date: dateAt(2),
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTransaction(ctx, "user-1", tx.ID))

	entries, err := repository.NewAuditRepo(db).ListForEntity(ctx, a.ID, "user-1", 10, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 3)
	for i := 1; i < len(entries); i++ {
		require.Greater(t, entries[i-1].Seq, entries[i].Seq)
	}
}

func TestAuditHistoryScopedToPrincipal(t *testing.T) {
	t.Parallel()

	svc, _ := newLedger(t)
	ctx := context.Background()
	a := mustAccount(t, svc, "user-1", "Everyday", "checking", 0)

	mine, err := svc.GetAuditHistory(ctx, "user-1", a.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, mine)

	theirs, err := svc.GetAuditHistory(ctx, "user-2", a.ID, 10, 0)
	require.NoError(t, err)
	require.Empty(t, theirs)
}

func TestRolledBackMutationLeavesNoAudit(t *testing.T) {
	t.Parallel()

	svc, db := newLedger(t)
	ctx := context.Background()
	a := mustAccount(t, svc, "user-1", "Everyday", "checking", 0)
	before := len(auditTypesFor(t, db, a.ID))

	_, err := svc.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type: "expense", AmountCents: -1, AccountID: a.ID, Date: dateAt(3),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	require.Len(t, auditTypesFor(t, db, a.ID), before)
}
