// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits stored for prices, amounts
// and profit (NUMERIC(10,2) / NUMERIC(12,2) columns).
const MoneyScale int32 = 2

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundMoney rounds to two fractional digits (half away from zero).
func RoundMoney(m Money) Money {
	return m.Round(MoneyScale)
}

// MulQty multiplies a unit price by an integer quantity.
func MulQty(price Money, qty int64) Money {
	return price.Mul(decimal.NewFromInt(qty))
}

// HasAtMostScale reports whether m has no more than MoneyScale fractional digits.
func HasAtMostScale(m Money) bool {
	return m.Equal(m.Truncate(MoneyScale))
}

// SumMoney adds values; an empty list sums to zero.
func SumMoney(values ...Money) Money {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
