package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/budgetme/ledger/internal/database/repository"
)

// The validation gate. Field rules are accumulated, never fail-fast, so a
// form can show every violation from one submit. References that are missing
// or owned by someone else surface as NotFoundError instead; an owned but
// inactive reference is a field violation like any other.

var accountTypes = map[string]bool{
	"checking":   true,
	"savings":    true,
	"credit":     true,
	"investment": true,
	"cash":       true,
	"other":      true,
}

var transactionTypes = map[string]bool{
	"income":       true,
	"expense":      true,
	"transfer":     true,
	"cash_in":      true,
	"contribution": true,
}

var transactionStatuses = map[string]bool{
	"pending":   true,
	"completed": true,
	"cancelled": true,
}

var accountStatuses = map[string]bool{
	"active":   true,
	"inactive": true,
	"closed":   true,
}

// validateAccountFields checks the rules of an account payload against errs.
// excludeID skips the account itself during uniqueness checks on edits.
func validateAccountFields(ctx context.Context, accounts *repository.AccountRepo,
	userID, name, accountType string, initialBalanceCents int64, excludeID string, errs fieldErrors) error {

	trimmed := strings.TrimSpace(name)
	if n := utf8.RuneCountInString(trimmed); n < 3 || n > 50 {
		errs.add("name", "must be between 3 and 50 characters")
	} else {
		exists, err := accounts.NameExistsForUser(ctx, userID, trimmed, excludeID)
		if err != nil {
			return err
		}
		if exists {
			errs.add("name", "an active account with this name already exists")
		}
	}

	if !accountTypes[accountType] {
		errs.add("account_type", "must be one of checking, savings, credit, investment, cash, other")
	} else if accountType == "credit" {
		if initialBalanceCents > 0 {
			errs.add("initial_balance", "must be zero or negative for a credit account")
		}
	} else if initialBalanceCents < 0 {
		errs.add("initial_balance", "must be zero or positive for this account type")
	}
	return nil
}

// validateTransaction checks a full transaction payload. The account and
// category references must already have been resolved (or nil when absent).
func validateTransaction(t repository.Transaction, account, transferAccount *repository.Account, category *repository.Category) error {
	errs := fieldErrors{}

	if !transactionTypes[t.Type] {
		errs.add("type", "must be one of income, expense, transfer, cash_in, contribution")
	}
	if t.AmountCents < 0 {
		errs.add("amount", "must be non-negative")
	}
	if !transactionStatuses[t.Status] {
		errs.add("status", "must be one of pending, completed, cancelled")
	}

	if account != nil && account.Status != "active" {
		errs.add("account_id", "account is not active")
	}
	if category != nil && !category.IsActive {
		errs.add("category_id", "category is not active")
	}

	if t.Type == "transfer" {
		switch {
		case t.TransferAccountID == nil:
			errs.add("transfer_account_id", "required for a transfer")
		case *t.TransferAccountID == t.AccountID:
			errs.add("transfer_account_id", "must differ from the source account")
		case transferAccount != nil && transferAccount.Status != "active":
			errs.add("transfer_account_id", "account is not active")
		}
	} else if t.TransferAccountID != nil {
		errs.add("transfer_account_id", "only valid for a transfer")
	}

	return errs.err()
}
