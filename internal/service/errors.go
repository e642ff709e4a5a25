package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAuthenticationRequired is returned when no principal is attached
	// to an engine call.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrConcurrencyConflict marks a transient serialization failure. The
	// mutation was not applied; callers may retry.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
)

// NotFoundError reports a referenced entity that is missing or not owned by
// the caller. The two cases deliberately read the same to avoid leaking
// other users' ids.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ValidationError carries every violated rule of one request at once, so a
// form can surface all of them in a single round trip.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// InvariantViolationError reports a computed balance that disagrees with the
// transaction log. It indicates a reconciler or effect bug, never user
// error, and must never be downgraded or auto-corrected.
type InvariantViolationError struct {
	AccountID     string
	ExpectedCents int64
	ActualCents   int64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("balance invariant violated for account %s: log implies %d cents, balance is %d cents",
		e.AccountID, e.ExpectedCents, e.ActualCents)
}

// fieldErrors accumulates rule violations without failing fast.
type fieldErrors map[string]string

func (f fieldErrors) add(field, reason string) {
	if _, dup := f[field]; !dup {
		f[field] = reason
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}
