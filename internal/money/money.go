package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseCents converts a decimal amount string like "123.45" into integer
// cents. More than two fractional digits is an error, not a silent rounding.
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	c := d.Mul(hundred)
	if !c.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	return c.IntPart(), nil
}

// FormatCents renders cents as a fixed two-decimal string ("-20.00").
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Decimal returns the exact decimal value of cents.
func Decimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
