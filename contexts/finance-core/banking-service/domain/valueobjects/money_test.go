package valueobjects

import (
	"testing"

	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmountNormalizesFormInput(t *testing.T) {
	cases := map[string]string{
		"25":        "25.00",
		"$1,250.5":  "1250.50",
		"12.3.4":    "12.34",
		" 0.99 ":    "0.99",
		"USD 100.1": "100.10",
	}
	for raw, want := range cases {
		got, err := ParseAmount(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got.String(), raw)
	}
}

func TestParseAmountRejectsInvalidValues(t *testing.T) {
	for _, raw := range []string{"", "abc", ".", "0", "0.00", "-5", "1.234"} {
		_, err := ParseAmount(raw)
		assert.ErrorIs(t, err, domainerrors.ErrInvalidAmount, raw)
	}
}

func TestMoneyArithmeticAndCents(t *testing.T) {
	balance := MoneyFromCents(10050)
	debit, err := NewMoney(decimal.RequireFromString("0.50"))
	require.NoError(t, err)

	after := balance.Sub(debit)
	assert.Equal(t, int64(10000), after.Cents())
	assert.True(t, after.Add(debit).Equal(balance))
	assert.True(t, debit.LessThan(balance))
	assert.True(t, Zero().Sub(debit).IsNegative())
}

func TestMoneyFormat(t *testing.T) {
	assert.Equal(t, "$0.00", Zero().Format())
	assert.Equal(t, "$5.07", MoneyFromCents(507).Format())
	assert.Equal(t, "$1,234.56", MoneyFromCents(123456).Format())
	assert.Equal(t, "$1,000,000.10", MoneyFromCents(100000010).Format())
	assert.Equal(t, "-$12.00", MoneyFromCents(-1200).Format())
}
