package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidMonetaryValue is returned for monetary strings that are not
// decimal numbers
var ErrInvalidMonetaryValue = errors.New("invalid monetary value")

var hundred = decimal.NewFromInt(100)

// ParseMoney parses a carrier monetary string exactly
func ParseMoney(value string) (decimal.Decimal, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidMonetaryValue)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidMonetaryValue, value)
	}
	return d, nil
}

// ToCents converts a decimal monetary string to integer minor units,
// rounding half away from zero at two decimal places.
func ToCents(value string) (int64, error) {
	d, err := ParseMoney(value)
	if err != nil {
		return 0, err
	}
	return d.Round(2).Mul(hundred).IntPart(), nil
}

// FromCents renders cents as a two-place decimal string
func FromCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
