// Package money does currency arithmetic in minor units on exact decimals.
// Nothing here rounds except RoundTotal.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

var ErrInvalidPercent = errors.New("percent must be between 0 and 100")

func Cents(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func LineTotal(unitPriceCents int64, qty int) decimal.Decimal {
	return decimal.NewFromInt(unitPriceCents).Mul(decimal.NewFromInt(int64(qty)))
}

// PercentOf returns pct percent of base without rounding.
func PercentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// RoundTotal rounds half to even to whole minor units.
func RoundTotal(d decimal.Decimal) int64 {
	return d.RoundBank(0).IntPart()
}

func ParsePercent(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if raw == "" {
		return decimal.Zero, nil
	}
	pct, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse percent %q: %w", raw, err)
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidPercent, pct)
	}
	return pct, nil
}

// Format renders minor units as a major-unit string with two decimals.
func Format(d decimal.Decimal) string {
	return d.Div(hundred).StringFixedBank(2)
}

func FormatCents(cents int64) string {
	return Format(decimal.NewFromInt(cents))
}
