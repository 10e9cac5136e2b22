// Package money converts between the decimal amounts seen at the API
// boundary and the int64 minor units the ledger stores and sums.
// Balances never pass through floats.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount   = errors.New("amount is required")
	ErrTooPrecise    = errors.New("amount has more than 2 decimal places")
	ErrNotPositive   = errors.New("amount must be > 0")
	ErrOutOfRange    = errors.New("amount out of range")
	ErrMalformed     = errors.New("amount is not a valid decimal")
	minorUnitsPerOne = decimal.NewFromInt(100)
)

// Parse converts a decimal string like "200.00" into minor units (20000).
// At most two fractional digits are accepted.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return fromDecimal(d)
}

// ParsePositive is Parse plus the ledger's amount > 0 rule.
func ParsePositive(s string) (int64, error) {
	v, err := Parse(s)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, ErrNotPositive
	}
	return v, nil
}

// Format renders minor units as a two-decimal string: 20000 -> "200.00".
func Format(minor int64) string {
	return decimal.NewFromInt(minor).Div(minorUnitsPerOne).StringFixed(2)
}

func fromDecimal(d decimal.Decimal) (int64, error) {
	scaled := d.Mul(minorUnitsPerOne)
	if !scaled.IsInteger() {
		return 0, ErrTooPrecise
	}
	if !scaled.BigInt().IsInt64() {
		return 0, ErrOutOfRange
	}
	return scaled.IntPart(), nil
}
