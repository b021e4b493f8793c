package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrNegativeAmount   = errors.New("money amount must not be negative")
	ErrMissingCurrency  = errors.New("currency code is required")
	ErrInvalidPercent   = errors.New("percent must be between 0 and 100")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrOverflow         = errors.New("money amount overflows int64")
)

var hundred = decimal.NewFromInt(100)

// Money is an amount of minor currency units (cents) in a single currency.
type Money struct {
	Amount   int64  `json:"amount" bson:"amount"`
	Currency string `json:"currency" bson:"currency"`
}

func New(amount int64, currency string) (Money, error) {
	if currency == "" {
		return Money{}, ErrMissingCurrency
	}
	if amount < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{Amount: amount, Currency: currency}, nil
}

func Zero(currency string) Money {
	return Money{Currency: currency}
}

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	if (o.Amount > 0 && m.Amount > math.MaxInt64-o.Amount) ||
		(o.Amount < 0 && m.Amount < math.MinInt64-o.Amount) {
		return Money{}, fmt.Errorf("%w: %d + %d", ErrOverflow, m.Amount, o.Amount)
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}, nil
}

// Subtract returns m - o. A negative result is clamped to zero and reported
// through the second return value.
func (m Money) Subtract(o Money) (Money, bool, error) {
	if m.Currency != o.Currency {
		return Money{}, false, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	diff := m.Amount - o.Amount
	if diff < 0 {
		return Zero(m.Currency), true, nil
	}
	return Money{Amount: diff, Currency: m.Currency}, false, nil
}

// PercentOf returns percent% of m, rounded half-to-even to a whole minor unit.
func (m Money) PercentOf(percent decimal.Decimal) (Money, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return Money{}, fmt.Errorf("%w: %s", ErrInvalidPercent, percent)
	}
	part := decimal.NewFromInt(m.Amount).Mul(percent).Div(hundred).RoundBank(0)
	return Money{Amount: part.IntPart(), Currency: m.Currency}, nil
}

func (m Money) MultiplyQuantity(quantity int64) (Money, error) {
	if quantity <= 0 {
		return Money{}, ErrInvalidQuantity
	}
	if m.Amount > math.MaxInt64/quantity || m.Amount < math.MinInt64/quantity {
		return Money{}, fmt.Errorf("%w: %d x %d", ErrOverflow, m.Amount, quantity)
	}
	return Money{Amount: m.Amount * quantity, Currency: m.Currency}, nil
}

func (m Money) ToMinorUnits() int64 {
	return m.Amount
}

// Compare returns -1, 0 or 1 like strings.Compare.
func (m Money) Compare(o Money) (int, error) {
	if m.Currency != o.Currency {
		return 0, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	switch {
	case m.Amount < o.Amount:
		return -1, nil
	case m.Amount > o.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

// String renders the amount with two decimal places, e.g. "USD 18.00".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency, decimal.New(m.Amount, -2).StringFixed(2))
}
