package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/budgetme/ledger/internal/database"
	"github.com/budgetme/ledger/internal/database/repository"
	"github.com/budgetme/ledger/internal/logger"
	"github.com/budgetme/ledger/internal/money"
)

// LedgerService keeps account balances consistent with the transaction log.
// Every mutation is validated, turned into signed balance deltas, applied
// atomically inside one database transaction together with its audit
// entries, and retried a bounded number of times on serialization failures.
type LedgerService struct {
	DB  *sql.DB
	Log zerolog.Logger

	// Alerts, when set, re-evaluates budgets after committed mutations that
	// touch an expense category. Evaluation failures never roll back the
	// mutation.
	Alerts *AlertService

	// MaxRetries bounds conflict retries per mutation (default 3).
	MaxRetries int
	// RetryBackoff is the initial backoff, doubled per attempt (default 25ms).
	RetryBackoff time.Duration
}

// CreateAccountInput carries a new account payload.
type CreateAccountInput struct {
	Name                string
	AccountType         string
	InitialBalanceCents int64
	Currency            string
	IsDefault           bool
	Color               *string
	Description         *string
	Institution         *string
	MaskedNumber        *string
}

// AccountPatch carries a partial account edit; nil means unchanged.
type AccountPatch struct {
	Name         *string
	AccountType  *string
	Status       *string
	IsDefault    *bool
	Color        *string
	Description  *string
	Institution  *string
	MaskedNumber *string
}

// CreateTransactionInput carries a new transaction payload.
type CreateTransactionInput struct {
	Type              string
	AmountCents       int64
	AccountID         string
	TransferAccountID *string
	CategoryID        *string
	Date              time.Time
	Description       *string
	Status            string
}

// TransactionPatch carries a partial transaction edit; nil means unchanged.
type TransactionPatch struct {
	Type              *string
	AmountCents       *int64
	AccountID         *string
	TransferAccountID *string
	CategoryID        *string
	Date              *time.Time
	Description       *string
	Status            *string
}

// CreateAccount validates and creates an account owned by principal.
func (s *LedgerService) CreateAccount(ctx context.Context, principal string, in CreateAccountInput) (*repository.Account, error) {
	if principal == "" {
		return nil, ErrAuthenticationRequired
	}
	var created *repository.Account
	err := s.withRetry(ctx, func(tx *sql.Tx) error {
		accounts := repository.NewAccountRepo(tx)

		errs := fieldErrors{}
		if err := validateAccountFields(ctx, accounts, principal, in.Name, in.AccountType, in.InitialBalanceCents, "", errs); err != nil {
			return err
		}
		if err := errs.err(); err != nil {
			return err
		}

		currency := in.Currency
		if currency == "" {
			currency = "USD"
		}
		a := repository.Account{
			ID:                  uuid.NewString(),
			UserID:              principal,
			Name:                strings.TrimSpace(in.Name),
			AccountType:         in.AccountType,
			BalanceCents:        in.InitialBalanceCents,
			InitialBalanceCents: in.InitialBalanceCents,
			Currency:            currency,
			Status:              "active",
			IsDefault:           in.IsDefault,
			Color:               in.Color,
			Description:         in.Description,
			Institution:         in.Institution,
			MaskedNumber:        in.MaskedNumber,
		}
		if err := accounts.Insert(ctx, a); err != nil {
			return err
		}
		if a.IsDefault {
			if err := accounts.ClearDefaultForUser(ctx, principal, a.ID); err != nil {
				return err
			}
		}
		if err := appendAudit(ctx, tx, principal, auditEvent{
			EntityID:     a.ID,
			ActivityType: activityAccountCreated,
			Description:  "account " + a.Name + " created",
			Metadata: map[string]any{
				"name":                  a.Name,
				"account_type":          a.AccountType,
				"initial_balance_cents": a.InitialBalanceCents,
				"currency":              a.Currency,
			},
		}); err != nil {
			return err
		}
		created = &a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateAccount edits the directly editable account fields. The balance is
// never touched here; an entry is recorded only when an audited field
// actually changed.
func (s *LedgerService) UpdateAccount(ctx context.Context, principal, id string, patch AccountPatch) (*repository.Account, error) {
	if principal == "" {
		return nil, ErrAuthenticationRequired
	}
	var updated *repository.Account
	err := s.withRetry(ctx, func(tx *sql.Tx) error {
		accounts := repository.NewAccountRepo(tx)
		old, err := accounts.GetForUser(ctx, id, principal)
		if err != nil {
			return err
		}
		if old == nil {
			return &NotFoundError{Kind: "account", ID: id}
		}

		next := *old
		if patch.Name != nil {
			next.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.AccountType != nil {
			next.AccountType = *patch.AccountType
		}
		if patch.Status != nil {
			next.Status = *patch.Status
		}
		if patch.IsDefault != nil {
			next.IsDefault = *patch.IsDefault
		}
		if patch.Color != nil {
			next.Color = patch.Color
		}
		if patch.Description != nil {
			next.Description = patch.Description
		}
		if patch.Institution != nil {
			next.Institution = patch.Institution
		}
		if patch.MaskedNumber != nil {
			next.MaskedNumber = patch.MaskedNumber
		}

		errs := fieldErrors{}
		if patch.Status != nil && !accountStatuses[next.Status] {
			errs.add("status", "must be one of active, inactive, closed")
		}
		if err := validateAccountFields(ctx, accounts, principal, next.Name, next.AccountType, next.InitialBalanceCents, id, errs); err != nil {
			return err
		}
		if err := errs.err(); err != nil {
			return err
		}

		if err := accounts.UpdateFields(ctx, next); err != nil {
			return err
		}
		if next.IsDefault && !old.IsDefault {
			if err := accounts.ClearDefaultForUser(ctx, principal, id); err != nil {
				return err
			}
		}
		if changes, changed := accountFieldChanges(*old, next); changed {
			if err := appendAudit(ctx, tx, principal, auditEvent{
				EntityID:     id,
				ActivityType: activityAccountUpdated,
				Description:  "account " + next.Name + " updated",
				Metadata:     map[string]any{"changes": changes},
			}); err != nil {
				return err
			}
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteAccount removes an account. While transactions still reference it
// the row is only closed, never physically deleted, so the log stays
// replayable.
func (s *LedgerService) DeleteAccount(ctx context.Context, principal, id string) error {
	if principal == "" {
		return ErrAuthenticationRequired
	}
	return s.withRetry(ctx, func(tx *sql.Tx) error {
		accounts := repository.NewAccountRepo(tx)
		old, err := accounts.GetForUser(ctx, id, principal)
		if err != nil {
			return err
		}
		if old == nil {
			return &NotFoundError{Kind: "account", ID: id}
		}

		refs, err := repository.NewTransactionRepo(tx).CountForAccount(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			next := *old
			next.Status = "closed"
			next.IsDefault = false
			if err := accounts.UpdateFields(ctx, next); err != nil {
				return err
			}
		} else if err := accounts.Delete(ctx, id); err != nil {
			return err
		}
		return appendAudit(ctx, tx, principal, auditEvent{
			EntityID:     id,
			ActivityType: activityAccountDeleted,
			Description:  "account " + old.Name + " deleted",
			Metadata: map[string]any{
				"soft_delete":             refs > 0,
				"referenced_transactions": refs,
			},
		})
	})
}

// CashIn credits an account outside the normal income flow. It is modeled
// as a cash_in transaction so the balance invariant keeps holding, plus a
// dedicated account_cash_in audit entry.
func (s *LedgerService) CashIn(ctx context.Context, principal, accountID string, amountCents int64, date time.Time, description *string) (*repository.Transaction, error) {
	if principal == "" {
		return nil, ErrAuthenticationRequired
	}
	var created *repository.Transaction
	err := s.withRetry(ctx, func(tx *sql.Tx) error {
		t, err := s.createTransactionTx(ctx, tx, principal, CreateTransactionInput{
			Type:        "cash_in",
			AmountCents: amountCents,
			AccountID:   accountID,
			Date:        date,
			Description: description,
		})
		if err != nil {
			return err
		}
		if err := appendAudit(ctx, tx, principal, auditEvent{
			EntityID:     accountID,
			ActivityType: activityAccountCashIn,
			Description:  "cash in of " + money.FormatCents(amountCents),
			Metadata:     map[string]any{"transaction_id": t.ID, "amount_cents": amountCents},
		}); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateTransaction validates, records, and applies a new transaction.
func (s *LedgerService) CreateTransaction(ctx context.Context, principal string, in CreateTransactionInput) (*repository.Transaction, error) {
	if principal == "" {
		return nil, ErrAuthenticationRequired
	}
	var created *repository.Transaction
	err := s.withRetry(ctx, func(tx *sql.Tx) error {
		t, err := s.createTransactionTx(ctx, tx, principal, in)
		if err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.evaluateAlerts(ctx, principal, created)
	return created, nil
}

// createTransactionTx is the create arm of the reconciler, shared with the
// cash-in and goal contribution flows so they commit in the same unit.
func (s *LedgerService) createTransactionTx(ctx context.Context, tx *sql.Tx, principal string, in CreateTransactionInput) (*repository.Transaction, error) {
	t := repository.Transaction{
		ID:                uuid.NewString(),
		UserID:            principal,
		AccountID:         in.AccountID,
		TransferAccountID: in.TransferAccountID,
		CategoryID:        in.CategoryID,
		Type:              in.Type,
		AmountCents:       in.AmountCents,
		Date:              in.Date,
		Description:       in.Description,
		Status:            in.Status,
	}
	if t.Status == "" {
		t.Status = "completed"
	}
	if t.Date.IsZero() {
		t.Date = database.Now()
	}

	if err := s.validateTransactionRefs(ctx, tx, principal, &t); err != nil {
		return nil, err
	}

	deltas, err := effectOf(t)
	if err != nil {
		return nil, err
	}
	if err := repository.NewTransactionRepo(tx).Insert(ctx, t); err != nil {
		return nil, err
	}
	if err := s.applyEffects(ctx, tx, principal, mergeDeltas(deltas), activityTransactionCreated); err != nil {
		return nil, err
	}
	if err := appendAudit(ctx, tx, principal, auditEvent{
		EntityID:     t.ID,
		ActivityType: activityTransactionCreated,
		Description:  t.Type + " of " + money.FormatCents(t.AmountCents),
		Metadata:     transactionMetadata(t),
	}); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransaction edits a transaction. The old effect is reversed and the
// new one applied in the same database transaction, so no reader ever sees
// only one half.
func (s *LedgerService) UpdateTransaction(ctx context.Context, principal, id string, patch TransactionPatch) (*repository.Transaction, error) {
	if principal == "" {
		return nil, ErrAuthenticationRequired
	}
	var updated *repository.Transaction
	var oldCategory *string
	err := s.withRetry(ctx, func(tx *sql.Tx) error {
		txRepo := repository.NewTransactionRepo(tx)
		old, err := txRepo.GetForUser(ctx, id, principal)
		if err != nil {
			return err
		}
		if old == nil {
			return &NotFoundError{Kind: "transaction", ID: id}
		}
		oldCategory = old.CategoryID

		next := *old
		if patch.Type != nil {
			next.Type = *patch.Type
			if next.Type != "transfer" {
				next.TransferAccountID = nil
			}
		}
		if patch.AmountCents != nil {
			next.AmountCents = *patch.AmountCents
		}
		if patch.AccountID != nil {
			next.AccountID = *patch.AccountID
		}
		if patch.TransferAccountID != nil {
			next.TransferAccountID = patch.TransferAccountID
		}
		if patch.CategoryID != nil {
			next.CategoryID = patch.CategoryID
		}
		if patch.Date != nil {
			next.Date = *patch.Date
		}
		if patch.Description != nil {
			next.Description = patch.Description
		}
		if patch.Status != nil {
			next.Status = *patch.Status
		}

		if err := s.validateTransactionRefs(ctx, tx, principal, &next); err != nil {
			return err
		}

		oldEffect, err := effectOf(*old)
		if err != nil {
			return err
		}
		newEffect, err := effectOf(next)
		if err != nil {
			return err
		}

		if err := txRepo.Update(ctx, next); err != nil {
			return err
		}
		if err := s.applyEffects(ctx, tx, principal, mergeDeltas(reversed(oldEffect), newEffect), activityTransactionUpdated); err != nil {
			return err
		}
		if err := appendAudit(ctx, tx, principal, auditEvent{
			EntityID:     id,
			ActivityType: activityTransactionUpdated,
			Description:  "transaction updated",
			Metadata: map[string]any{
				"old": transactionMetadata(*old),
				"new": transactionMetadata(next),
			},
		}); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.evaluateAlerts(ctx, principal, updated)
	if oldCategory != nil && (updated.CategoryID == nil || *oldCategory != *updated.CategoryID) {
		s.evaluateAlertsForCategory(ctx, principal, *oldCategory, updated.Date)
	}
	return updated, nil
}

// DeleteTransaction removes a transaction and reverses its effect, restoring
// the exact balances that existed before it was created.
func (s *LedgerService) DeleteTransaction(ctx context.Context, principal, id string) error {
	if principal == "" {
		return ErrAuthenticationRequired
	}
	var old *repository.Transaction
	err := s.withRetry(ctx, func(tx *sql.Tx) error {
		txRepo := repository.NewTransactionRepo(tx)
		t, err := txRepo.GetForUser(ctx, id, principal)
		if err != nil {
			return err
		}
		if t == nil {
			return &NotFoundError{Kind: "transaction", ID: id}
		}
		old = t

		effect, err := effectOf(*t)
		if err != nil {
			return err
		}
		if err := txRepo.Delete(ctx, id); err != nil {
			return err
		}
		if err := s.applyEffects(ctx, tx, principal, mergeDeltas(reversed(effect)), activityTransactionDeleted); err != nil {
			return err
		}
		return appendAudit(ctx, tx, principal, auditEvent{
			EntityID:     id,
			ActivityType: activityTransactionDeleted,
			Description:  "transaction deleted",
			Metadata:     transactionMetadata(*t),
		})
	})
	if err != nil {
		return err
	}
	s.evaluateAlerts(ctx, principal, old)
	return nil
}

// GetAccount returns one account owned by principal.
func (s *LedgerService) GetAccount(ctx context.Context, principal, id string) (*repository.Account, error) {
	if principal == "" {
		return nil, ErrAuthenticationRequired
	}
	a, err := repository.NewAccountRepo(s.DB).GetForUser(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &NotFoundError{Kind: "account", ID: id}
	}
	return a, nil
}

// ListAccounts returns every account owned by principal.
func (s *LedgerService) ListAccounts(ctx context.Context, principal string) ([]repository.Account, error) {
	if principal == "" {
		return nil, ErrAuthenticationRequired
	}
	return repository.NewAccountRepo(s.DB).ListForUser(ctx, principal)
}

// GetAccountHistory pages the transactions touching an account, as primary
// or transfer target, ordered (date desc, created_at desc).
func (s *LedgerService) GetAccountHistory(ctx context.Context, principal, accountID string, limit, offset int) ([]repository.Transaction, error) {
	if principal == "" {
		return nil, ErrAuthenticationRequired
	}
	a, err := repository.NewAccountRepo(s.DB).GetForUser(ctx, accountID, principal)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &NotFoundError{Kind: "account", ID: accountID}
	}
	limit, offset = clampPage(limit, offset)
	return repository.NewTransactionRepo(s.DB).ListForAccount(ctx, accountID, limit, offset)
}

// GetAuditHistory pages the audit trail of one entity, newest first.
func (s *LedgerService) GetAuditHistory(ctx context.Context, principal, entityID string, limit, offset int) ([]repository.AuditEntry, error) {
	if principal == "" {
		return nil, ErrAuthenticationRequired
	}
	limit, offset = clampPage(limit, offset)
	return repository.NewAuditRepo(s.DB).ListForEntity(ctx, entityID, principal, limit, offset)
}

// VerifyAccount replays the transaction log of one account and checks the
// invariant balance == initial_balance + sum of effects. A mismatch means a
// reconciler bug; it is logged critical and surfaced, never auto-corrected.
func (s *LedgerService) VerifyAccount(ctx context.Context, principal, accountID string) error {
	if principal == "" {
		return ErrAuthenticationRequired
	}
	return s.withRetry(ctx, func(tx *sql.Tx) error {
		a, err := repository.NewAccountRepo(tx).GetForUser(ctx, accountID, principal)
		if err != nil {
			return err
		}
		if a == nil {
			return &NotFoundError{Kind: "account", ID: accountID}
		}
		txs, err := repository.NewTransactionRepo(tx).ListAllForAccount(ctx, accountID)
		if err != nil {
			return err
		}
		expected := a.InitialBalanceCents
		for _, t := range txs {
			effect, err := effectOf(t)
			if err != nil {
				return err
			}
			for _, d := range effect {
				if d.AccountID == accountID {
					expected += d.Cents
				}
			}
		}
		if expected != a.BalanceCents {
			verr := &InvariantViolationError{AccountID: accountID, ExpectedCents: expected, ActualCents: a.BalanceCents}
			logger.Critical(s.Log).
				Str("account_id", accountID).
				Int64("expected_cents", expected).
				Int64("actual_cents", a.BalanceCents).
				Msg("balance invariant violated")
			return verr
		}
		return nil
	})
}

// validateTransactionRefs resolves the accounts and category a transaction
// references (missing or foreign references are NotFound) and then runs the
// accumulated field validation against the resolved rows.
func (s *LedgerService) validateTransactionRefs(ctx context.Context, tx *sql.Tx, principal string, t *repository.Transaction) error {
	accounts := repository.NewAccountRepo(tx)
	account, err := accounts.GetForUser(ctx, t.AccountID, principal)
	if err != nil {
		return err
	}
	if account == nil {
		return &NotFoundError{Kind: "account", ID: t.AccountID}
	}
	var transferAccount *repository.Account
	if t.TransferAccountID != nil && *t.TransferAccountID != t.AccountID {
		transferAccount, err = accounts.GetForUser(ctx, *t.TransferAccountID, principal)
		if err != nil {
			return err
		}
		if transferAccount == nil {
			return &NotFoundError{Kind: "account", ID: *t.TransferAccountID}
		}
	}
	var category *repository.Category
	if t.CategoryID != nil {
		category, err = repository.NewCategoryRepo(tx).GetUsable(ctx, *t.CategoryID, principal)
		if err != nil {
			return err
		}
		if category == nil {
			return &NotFoundError{Kind: "category", ID: *t.CategoryID}
		}
	}
	return validateTransaction(*t, account, transferAccount, category)
}

// applyEffects applies merged deltas in account-id order via atomic
// increments and records one account_balance_change entry per touched
// account. An account row that is gone aborts the whole mutation; partial
// application is never acceptable.
func (s *LedgerService) applyEffects(ctx context.Context, tx *sql.Tx, actorID string, deltas []balanceDelta, cause string) error {
	accounts := repository.NewAccountRepo(tx)
	for _, d := range deltas {
		newBalance, found, err := accounts.ApplyDelta(ctx, d.AccountID, d.Cents)
		if err != nil {
			return err
		}
		if !found {
			return &NotFoundError{Kind: "account", ID: d.AccountID}
		}
		if err := appendAudit(ctx, tx, actorID, balanceChangeEvent(d.AccountID, newBalance-d.Cents, newBalance, d.Cents, cause)); err != nil {
			return err
		}
	}
	return nil
}

// withRetry runs fn in a transaction, retrying bounded times with
// exponential backoff when sqlite reports a serialization failure. Anything
// still conflicting after the last attempt surfaces as ErrConcurrencyConflict.
func (s *LedgerService) withRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	retries := s.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := s.RetryBackoff
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = asConflict(database.WithTx(ctx, s.DB, fn))
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) || attempt >= retries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff << (attempt - 1)):
		}
	}
}

func (s *LedgerService) evaluateAlerts(ctx context.Context, principal string, t *repository.Transaction) {
	if t == nil || t.Type != "expense" || t.CategoryID == nil {
		return
	}
	s.evaluateAlertsForCategory(ctx, principal, *t.CategoryID, t.Date)
}

func (s *LedgerService) evaluateAlertsForCategory(ctx context.Context, principal, categoryID string, at time.Time) {
	if s.Alerts == nil {
		return
	}
	if err := s.Alerts.EvaluateCategory(ctx, principal, categoryID, at); err != nil {
		s.Log.Warn().Err(err).Str("category_id", categoryID).Msg("budget alert evaluation failed")
	}
}

// asConflict maps sqlite busy/locked errors to the retryable conflict error.
func asConflict(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}
	return err
}

func transactionMetadata(t repository.Transaction) map[string]any {
	m := map[string]any{
		"type":         t.Type,
		"amount_cents": t.AmountCents,
		"amount":       money.FormatCents(t.AmountCents),
		"account_id":   t.AccountID,
		"status":       t.Status,
		"date":         t.Date.Format(time.RFC3339),
	}
	if t.TransferAccountID != nil {
		m["transfer_account_id"] = *t.TransferAccountID
	}
	if t.CategoryID != nil {
		m["category_id"] = *t.CategoryID
	}
	return m
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
