package entities

import (
	"testing"
	"time"

	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/domain/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccount(t *testing.T) Account {
	t.Helper()
	account, err := NewAccount("user-1", " Jane Doe ", "Jane@Example.com", "1111 2222 3333", "12345", "Unity Credit Union",
		VirtualCard{Number: "4000000000000002", ExpiryDate: "01/30", CVV: "123", Brand: CardBrandVisa},
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return account
}

func TestNewAccountStartsEmpty(t *testing.T) {
	account := newTestAccount(t)
	assert.True(t, account.Balance.IsZero())
	assert.Equal(t, int64(1), account.Version)
	assert.Equal(t, "Jane Doe", account.Name)
	assert.Equal(t, "jane@example.com", account.Email)
	assert.Equal(t, "111122223333", account.AccountNumber)
}

func TestDebitNeverGoesNegative(t *testing.T) {
	account := newTestAccount(t)
	now := account.CreatedAt.Add(time.Minute)

	funded, err := account.Credit(valueobjects.MoneyFromCents(500), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), funded.Version)

	_, err = funded.Debit(valueobjects.MoneyFromCents(501), now)
	assert.ErrorIs(t, err, domainerrors.ErrInsufficientFunds)

	drained, err := funded.Debit(valueobjects.MoneyFromCents(500), now)
	require.NoError(t, err)
	assert.True(t, drained.Balance.IsZero())
	assert.Equal(t, int64(3), drained.Version)
}

func TestAccountMatchesRecipient(t *testing.T) {
	account := newTestAccount(t)
	assert.True(t, account.Matches(Recipient{AccountNumber: "1111-2222-3333", TransitNumber: "12345", BankName: "unity credit union"}))
	assert.False(t, account.Matches(Recipient{AccountNumber: "111122223333", TransitNumber: "54321", BankName: "Unity Credit Union"}))
}

func TestCardPresentation(t *testing.T) {
	card := VirtualCard{Number: "4000123412341234"}
	assert.Equal(t, "4000 1234 1234 1234", card.GroupedNumber())
	assert.Equal(t, "**** **** **** 1234", card.MaskedNumber())
}
