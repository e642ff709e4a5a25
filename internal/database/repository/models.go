package repository

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repositories are built over it so a ledger mutation can scope every
// repository it touches to one transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Account represents an account row. BalanceCents is owned by the ledger
// reconciler; every other field is edited directly and audited.
type Account struct {
	ID                  string
	UserID              string
	Name                string
	AccountType         string
	BalanceCents        int64
	InitialBalanceCents int64
	Currency            string
	Status              string
	IsDefault           bool
	Color               *string
	Description         *string
	Institution         *string
	MaskedNumber        *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Transaction represents a transaction row. Amount is a non-negative
// magnitude; the sign of its balance effect comes from Type.
type Transaction struct {
	ID                string
	UserID            string
	AccountID         string
	TransferAccountID *string
	CategoryID        *string
	Type              string
	AmountCents       int64
	Date              time.Time
	Description       *string
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AuditEntry represents an append-only audit row. Seq is assigned by the
// database and is monotonic per append, which orders entries per entity.
type AuditEntry struct {
	Seq          int64
	ID           string
	UserID       string
	EntityID     string
	ActivityType string
	Description  string
	Metadata     map[string]any
	Severity     string
	CreatedAt    time.Time
}

// Category represents a category row. A nil UserID marks a shared category
// usable by every principal.
type Category struct {
	ID       string
	UserID   *string
	Name     string
	Kind     string
	IsActive bool
}

// Budget represents a budget row.
type Budget struct {
	ID             string
	UserID         string
	CategoryID     string
	AmountCents    int64
	AlertThreshold float64
	PeriodStart    time.Time
	PeriodEnd      time.Time
	IsActive       bool
}

// BudgetAlert represents a raised threshold alert.
type BudgetAlert struct {
	ID        string
	BudgetID  string
	AlertType string
	Message   string
	CreatedAt time.Time
}

// Goal represents a savings goal row.
type Goal struct {
	ID           string
	UserID       string
	Name         string
	TargetCents  int64
	CurrentCents int64
	TargetDate   *time.Time
	Status       string
	CreatedAt    time.Time
}
