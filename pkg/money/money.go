// Package money holds integer minor-unit amounts and the pro-rata
// allocation used when escrow is split between sellers.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitExponent is the number of fractional digits of every supported
// currency.
const minorUnitExponent = 2

var (
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	ErrInvalidAmount    = errors.New("money: invalid amount")
	ErrNoWeights        = errors.New("money: allocation needs at least one positive weight")
)

// Money is an amount in minor units of Currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: NormalizeCurrency(currency)}
}

func Zero(currency string) Money {
	return New(0, currency)
}

// NormalizeCurrency upper-cases and trims an ISO code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// ValidCurrency reports whether the code looks like an ISO 4217 code.
func ValidCurrency(currency string) bool {
	c := NormalizeCurrency(currency)
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	if (other.Amount > 0 && m.Amount > maxInt64-other.Amount) ||
		(other.Amount < 0 && m.Amount < minInt64-other.Amount) {
		return Money{}, fmt.Errorf("%w: %d + %d overflows", ErrInvalidAmount, m.Amount, other.Amount)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	if (other.Amount < 0 && m.Amount > maxInt64+other.Amount) ||
		(other.Amount > 0 && m.Amount < minInt64+other.Amount) {
		return Money{}, fmt.Errorf("%w: %d - %d overflows", ErrInvalidAmount, m.Amount, other.Amount)
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Mul multiplies by a non-negative quantity.
func (m Money) Mul(qty int64) (Money, error) {
	if qty < 0 {
		return Money{}, fmt.Errorf("%w: negative quantity %d", ErrInvalidAmount, qty)
	}
	product := decimal.NewFromInt(m.Amount).Mul(decimal.NewFromInt(qty))
	if !product.IsInteger() || product.GreaterThan(decimal.NewFromInt(maxInt64)) {
		return Money{}, fmt.Errorf("%w: %s overflows", ErrInvalidAmount, product)
	}
	return Money{Amount: product.IntPart(), Currency: m.Currency}, nil
}

// Sum adds amounts that must share one currency. An empty input yields zero
// in the fallback currency.
func Sum(fallbackCurrency string, parts ...Money) (Money, error) {
	total := Zero(fallbackCurrency)
	if len(parts) > 0 {
		total = Zero(parts[0].Currency)
	}
	for _, p := range parts {
		next, err := total.Add(p)
		if err != nil {
			return Money{}, err
		}
		total = next
	}
	return total, nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Shift(-minorUnitExponent)
}

// String renders "123.45 KES".
func (m Money) String() string {
	return m.Decimal().StringFixed(minorUnitExponent) + " " + m.Currency
}

// ParseDecimal reads a major-unit string such as "250.50" into minor units.
// More than two fractional digits are rejected rather than rounded.
func ParseDecimal(raw, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	minor := d.Shift(minorUnitExponent)
	if !minor.IsInteger() {
		return Money{}, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, raw, minorUnitExponent)
	}
	if minor.GreaterThan(decimal.NewFromInt(maxInt64)) || minor.LessThan(decimal.NewFromInt(-maxInt64)) {
		return Money{}, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, raw)
	}
	return New(minor.IntPart(), currency), nil
}

const (
	maxInt64 = 1<<63 - 1
	minInt64 = -1 << 63
)
