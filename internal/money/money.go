// Package money provides fixed-point monetary arithmetic for the platform.
//
// All balances and amounts are decimal values with 4 fractional digits,
// matching the NUMERIC(15,4) columns they are persisted in.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits carried by every amount.
const Places = 4

// depositRate is the deposit fraction of a product's rent amount (25%).
var depositRate = decimal.NewFromInt(25).Div(decimal.NewFromInt(100))

// Zero is the zero amount.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// Parse parses a decimal string and normalizes it to 4 fractional digits.
// Negative amounts are rejected.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %q", s)
	}
	return d.Round(Places), nil
}

// MustParse is Parse for trusted literals; it panics on malformed input.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Deposit computes the deposit owed for a product rent amount: 25% of rent,
// rounded to 4 fractional digits.
func Deposit(rent decimal.Decimal) decimal.Decimal {
	return rent.Mul(depositRate).Round(Places)
}

// Format renders an amount with exactly 4 fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// MinorUnits converts an amount to the currency's smallest unit (paise for
// INR), as required by the payment-link provider wire format.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
