package domain

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent returns pct% of amount.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// RoundCents truncates a money amount toward zero at two decimals.
func RoundCents(amount decimal.Decimal) decimal.Decimal {
	return amount.Truncate(2)
}

// MustDecimal parses s and panics on malformed input. Intended for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
