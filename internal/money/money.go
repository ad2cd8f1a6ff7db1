package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// Money is an exact fixed-point amount tagged with a 3-letter currency code.
// Amounts are never represented as binary floats; the only float conversion
// in the package is ProgressPercent, which is display-only.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// New builds a Money from a decimal amount and currency code.
func New(amount decimal.Decimal, currency string) (Money, error) {
	cur, err := normalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}

	return Money{Amount: amount, Currency: cur}, nil
}

// FromString parses a decimal string like "400.00".
func FromString(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	return New(d, currency)
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) (Money, error) {
	return New(decimal.Zero, currency)
}

func normalizeCurrency(currency string) (string, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if len(cur) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	for _, r := range cur {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
		}
	}

	return cur, nil
}

func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

func (m Money) IsZero() bool { return m.Amount.IsZero() }

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}

	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other. Both operands must share a currency.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}

	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// Cmp compares amounts: -1 if m < other, 0 if equal, 1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}

	return m.Amount.Cmp(other.Amount), nil
}

// String renders the amount with two decimal places, e.g. "400.00 USD".
func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// ProgressPercent returns total/goal as a percentage capped at 100.
// Non-authoritative: the float conversion happens only here, for display.
func ProgressPercent(total, goal Money) float64 {
	if goal.Amount.IsZero() || total.Currency != goal.Currency {
		return 0
	}

	pct, _ := total.Amount.Div(goal.Amount).Mul(decimal.NewFromInt(100)).Float64()
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}

	return pct
}
