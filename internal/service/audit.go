package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/budgetme/ledger/internal/database/repository"
	"github.com/budgetme/ledger/internal/money"
)

// The audit recorder. Appends are observational: losing an entry never
// corrupts balances, and ordering is only meaningful between entries for the
// same entity (given by the database-assigned seq).

const (
	activityAccountCreated       = "account_created"
	activityAccountUpdated       = "account_updated"
	activityAccountCashIn        = "account_cash_in"
	activityAccountDeleted       = "account_deleted"
	activityAccountBalanceChange = "account_balance_change"
	activityTransactionCreated   = "transaction_created"
	activityTransactionUpdated   = "transaction_updated"
	activityTransactionDeleted   = "transaction_deleted"
	activityGoalContribution     = "goal_contribution_created"
)

// auditEvent is one mutation to record. Metadata is free-form because each
// activity kind carries different fields; ActivityType is the discriminant.
type auditEvent struct {
	EntityID     string
	ActivityType string
	Description  string
	Metadata     map[string]any
	Severity     string
}

// appendAudit builds and appends one audit entry on behalf of actorID,
// inside whatever transaction q is scoped to.
func appendAudit(ctx context.Context, q repository.DBTX, actorID string, ev auditEvent) error {
	severity := ev.Severity
	if severity == "" {
		severity = "info"
	}
	return repository.NewAuditRepo(q).Append(ctx, repository.AuditEntry{
		ID:           uuid.NewString(),
		UserID:       actorID,
		EntityID:     ev.EntityID,
		ActivityType: ev.ActivityType,
		Description:  ev.Description,
		Metadata:     ev.Metadata,
		Severity:     severity,
	})
}

// accountFieldChanges diffs the audited fields of an account edit. Balance
// and timestamps are deliberately excluded: balance movements get their own
// account_balance_change entries from the reconciler. When nothing audited
// changed, no entry is emitted at all.
func accountFieldChanges(oldA, newA repository.Account) (map[string]any, bool) {
	changes := map[string]any{}
	if oldA.Name != newA.Name {
		changes["name"] = map[string]any{"old": oldA.Name, "new": newA.Name}
	}
	if oldA.AccountType != newA.AccountType {
		changes["account_type"] = map[string]any{"old": oldA.AccountType, "new": newA.AccountType}
	}
	if oldA.Status != newA.Status {
		changes["status"] = map[string]any{"old": oldA.Status, "new": newA.Status}
	}
	if oldA.IsDefault != newA.IsDefault {
		changes["is_default"] = map[string]any{"old": oldA.IsDefault, "new": newA.IsDefault}
	}
	return changes, len(changes) > 0
}

// balanceChangeEvent describes one applied delta with explicit old and new
// balances.
func balanceChangeEvent(accountID string, oldCents, newCents, deltaCents int64, cause string) auditEvent {
	return auditEvent{
		EntityID:     accountID,
		ActivityType: activityAccountBalanceChange,
		Description:  "balance changed by " + money.FormatCents(deltaCents),
		Metadata: map[string]any{
			"old_balance_cents": oldCents,
			"new_balance_cents": newCents,
			"delta_cents":       deltaCents,
			"old_balance":       money.FormatCents(oldCents),
			"new_balance":       money.FormatCents(newCents),
			"cause":             cause,
		},
	}
}
