package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/budgetme/ledger/internal/database/repository"
)

// SeedDefaults ensures the baseline shared categories exist. Shared
// categories carry no owner and are usable by every principal.
// It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	catRepo := repository.NewCategoryRepo(db)
	existing, err := catRepo.ListShared(ctx)
	if err == nil && len(existing) > 0 {
		return nil
	}
	defaults := []struct {
		name string
		kind string
	}{
		{"Salary", "income"},
		{"Groceries", "expense"},
		{"Restaurants", "expense"},
		{"Transport", "expense"},
		{"Shopping", "expense"},
		{"Utilities", "expense"},
		{"Subscriptions", "expense"},
		{"Health", "expense"},
		{"Entertainment", "expense"},
		{"Savings", "expense"},
	}
	for _, d := range defaults {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("cat:"+d.name)).String()
		cat := repository.Category{ID: id, Name: d.name, Kind: d.kind, IsActive: true}
		if err := catRepo.Upsert(ctx, cat); err != nil {
			return err
		}
	}
	return nil
}
