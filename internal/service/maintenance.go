package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/budgetme/ledger/internal/database"
	"github.com/budgetme/ledger/internal/database/repository"
)

// MaintenanceService houses the ops actions run by the admin tool and the
// scheduled retention job.
type MaintenanceService struct {
	DB     *sql.DB
	Log    zerolog.Logger
	Ledger *LedgerService

	// RetentionDays is the audit retention window (default 30).
	RetentionDays int
}

// PurgeAuditLog drops audit entries older than the retention window and
// reports how many were removed. The audit log is observational, so the
// purge never touches balances.
func (s *MaintenanceService) PurgeAuditLog(ctx context.Context, now time.Time) (int64, error) {
	days := s.RetentionDays
	if days <= 0 {
		days = 30
	}
	cutoff := now.AddDate(0, 0, -days)
	purged, err := repository.NewAuditRepo(s.DB).PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	if purged > 0 {
		s.Log.Info().Int64("purged", purged).Time("cutoff", cutoff).Msg("audit log purged")
	}
	return purged, nil
}

// VerifyAllAccounts replays the transaction log for every account of one
// user and returns the first invariant violation found.
func (s *MaintenanceService) VerifyAllAccounts(ctx context.Context, principal string) error {
	accounts, err := s.Ledger.ListAccounts(ctx, principal)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if err := s.Ledger.VerifyAccount(ctx, principal, a.ID); err != nil {
			return err
		}
	}
	return nil
}

// Reset wipes all user data. It keeps the schema intact so the app can
// continue running.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"budget_alerts",
			"budgets",
			"goals",
			"audit_log",
			"transactions",
			"categories",
			"accounts",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
