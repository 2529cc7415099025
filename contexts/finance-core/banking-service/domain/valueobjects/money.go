package valueobjects

import (
	"fmt"
	"strings"

	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CurrencyUSD is the only currency the ledger carries.
const CurrencyUSD = "USD"

const minorUnits = 2

var usPrinter = message.NewPrinter(language.AmericanEnglish)

// Money is a USD amount with cent precision.
type Money struct {
	amount decimal.Decimal
}

func Zero() Money {
	return Money{amount: decimal.Zero}
}

// NewMoney rejects values carrying sub-cent precision.
func NewMoney(value decimal.Decimal) (Money, error) {
	if !value.Equal(value.Round(minorUnits)) {
		return Money{}, domainerrors.ErrInvalidAmount
	}
	return Money{amount: value.Round(minorUnits)}, nil
}

func MoneyFromCents(cents int64) Money {
	return Money{amount: decimal.New(cents, -minorUnits)}
}

// ParseAmount normalizes user input the way the transfer form does: every
// character other than digits and '.' is dropped and only the first '.' is
// kept as the decimal separator. A leading '-' is rejected outright.
func ParseAmount(raw string) (Money, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "-") {
		return Money{}, domainerrors.ErrInvalidAmount
	}

	var b strings.Builder
	for _, r := range trimmed {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if parts := strings.Split(cleaned, "."); len(parts) > 2 {
		cleaned = parts[0] + "." + strings.Join(parts[1:], "")
	}
	if cleaned == "" || cleaned == "." {
		return Money{}, domainerrors.ErrInvalidAmount
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Money{}, domainerrors.ErrInvalidAmount
	}
	money, err := NewMoney(value)
	if err != nil {
		return Money{}, err
	}
	if !money.IsPositive() {
		return Money{}, domainerrors.ErrInvalidAmount
	}
	return money, nil
}

func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

func (m Money) Cents() int64 {
	return m.amount.Shift(minorUnits).IntPart()
}

func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

func (m Money) Sub(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

// String renders the plain amount with two fraction digits, e.g. "1234.50".
func (m Money) String() string {
	return m.amount.StringFixed(minorUnits)
}

// Format renders the amount as en-US currency, e.g. "$1,234.50".
func (m Money) Format() string {
	abs := m.amount.Abs()
	whole := abs.Truncate(0)
	cents := abs.Sub(whole).Shift(minorUnits).IntPart()

	sign := ""
	if m.amount.IsNegative() {
		sign = "-"
	}
	return sign + "$" + usPrinter.Sprintf("%d", whole.IntPart()) + fmt.Sprintf(".%02d", cents)
}
