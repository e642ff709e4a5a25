package service

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/budgetme/ledger/internal/database"
	"github.com/budgetme/ledger/internal/database/repository"
	"github.com/budgetme/ledger/internal/logger"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))
	return db
}

func newLedger(t *testing.T) (*LedgerService, *sql.DB) {
	t.Helper()
	db := newTestDB(t)
	log := logger.NewWithWriter(io.Discard)
	svc := &LedgerService{
		DB:     db,
		Log:    log,
		Alerts: &AlertService{DB: db, Log: log},
	}
	return svc, db
}

func mustAccount(t *testing.T, svc *LedgerService, user, name, accountType string, initialCents int64) *repository.Account {
	t.Helper()
	a, err := svc.CreateAccount(context.Background(), user, CreateAccountInput{
		Name:                name,
		AccountType:         accountType,
		InitialBalanceCents: initialCents,
	})
	require.NoError(t, err)
	return a
}

func mustCategory(t *testing.T, db *sql.DB, user, name string) repository.Category {
	t.Helper()
	owner := user
	c := repository.Category{
		ID:       uuid.NewString(),
		UserID:   &owner,
		Name:     name,
		Kind:     "expense",
		IsActive: true,
	}
	require.NoError(t, repository.NewCategoryRepo(db).Upsert(context.Background(), c))
	return c
}

func balanceOf(t *testing.T, db *sql.DB, accountID string) int64 {
	t.Helper()
	var cents int64
	err := db.QueryRowContext(context.Background(),
		"SELECT balance_cents FROM accounts WHERE id = ?", accountID).Scan(&cents)
	require.NoError(t, err)
	return cents
}

func auditTypesFor(t *testing.T, db *sql.DB, entityID string) []string {
	t.Helper()
	rows, err := db.QueryContext(context.Background(),
		"SELECT activity_type FROM audit_log WHERE entity_id = ? ORDER BY seq", entityID)
	require.NoError(t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var at string
		require.NoError(t, rows.Scan(&at))
		out = append(out, at)
	}
	require.NoError(t, rows.Err())
	return out
}

func ptr[T any](v T) *T { return &v }

func dateAt(day int) time.Time {
	return time.Date(2026, time.March, day, 0, 0, 0, 0, time.UTC)
}
