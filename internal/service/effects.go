package service

import (
	"fmt"
	"sort"

	"github.com/budgetme/ledger/internal/database/repository"
)

// balanceDelta is one signed balance movement against one account.
type balanceDelta struct {
	AccountID string
	Cents     int64
}

// effectOf maps a transaction to the signed balance deltas it produces.
// Pure and deterministic: income and cash_in credit the primary account,
// expense and contribution debit it, transfer debits the primary and
// credits the target. Unknown types are an error here even though the
// validation gate rejects them first; a zero-effect fallback would let a
// bad row silently desynchronize balances.
func effectOf(t repository.Transaction) ([]balanceDelta, error) {
	switch t.Type {
	case "income", "cash_in":
		return []balanceDelta{{AccountID: t.AccountID, Cents: t.AmountCents}}, nil
	case "expense", "contribution":
		return []balanceDelta{{AccountID: t.AccountID, Cents: -t.AmountCents}}, nil
	case "transfer":
		if t.TransferAccountID == nil {
			return nil, fmt.Errorf("transfer %s has no target account", t.ID)
		}
		return []balanceDelta{
			{AccountID: t.AccountID, Cents: -t.AmountCents},
			{AccountID: *t.TransferAccountID, Cents: t.AmountCents},
		}, nil
	default:
		return nil, fmt.Errorf("unknown transaction type %q", t.Type)
	}
}

// reversed negates every delta. Applying reversed(effectOf(t)) after
// effectOf(t) restores the exact prior balances, which is what makes update
// and delete correct.
func reversed(deltas []balanceDelta) []balanceDelta {
	out := make([]balanceDelta, len(deltas))
	for i, d := range deltas {
		out[i] = balanceDelta{AccountID: d.AccountID, Cents: -d.Cents}
	}
	return out
}

// mergeDeltas sums deltas per account and orders the result by account id.
// The deterministic order keeps two opposing transfers between the same pair
// of accounts from deadlocking each other. Zero sums are kept: applying a
// zero delta still verifies the account row exists at apply time.
func mergeDeltas(groups ...[]balanceDelta) []balanceDelta {
	sums := map[string]int64{}
	for _, g := range groups {
		for _, d := range g {
			sums[d.AccountID] += d.Cents
		}
	}
	out := make([]balanceDelta, 0, len(sums))
	for id, cents := range sums {
		out = append(out, balanceDelta{AccountID: id, Cents: cents})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}
