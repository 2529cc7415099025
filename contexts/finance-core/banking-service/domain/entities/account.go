package entities

import (
	"strings"
	"time"

	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/domain/valueobjects"
)

type Account struct {
	UserID        string
	Name          string
	Email         string
	AccountNumber string
	TransitNumber string
	BankName      string
	Balance       valueobjects.Money
	Card          VirtualCard
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewAccount(
	userID string,
	name string,
	email string,
	accountNumber string,
	transitNumber string,
	bankName string,
	card VirtualCard,
	openedAt time.Time,
) (Account, error) {
	if strings.TrimSpace(userID) == "" ||
		strings.TrimSpace(name) == "" ||
		strings.TrimSpace(accountNumber) == "" ||
		strings.TrimSpace(transitNumber) == "" ||
		strings.TrimSpace(bankName) == "" {
		return Account{}, domainerrors.ErrInvalidAccount
	}
	if !card.Valid() {
		return Account{}, domainerrors.ErrInvalidAccount
	}

	return Account{
		UserID:        userID,
		Name:          strings.TrimSpace(name),
		Email:         strings.ToLower(strings.TrimSpace(email)),
		AccountNumber: NormalizeAccountNumber(accountNumber),
		TransitNumber: NormalizeAccountNumber(transitNumber),
		BankName:      strings.TrimSpace(bankName),
		Balance:       valueobjects.Zero(),
		Card:          card,
		Version:       1,
		CreatedAt:     openedAt.UTC(),
		UpdatedAt:     openedAt.UTC(),
	}, nil
}

// Debit returns the account with amount removed. The balance never goes
// negative: an amount larger than the balance is rejected.
func (a Account) Debit(amount valueobjects.Money, at time.Time) (Account, error) {
	if !amount.IsPositive() {
		return Account{}, domainerrors.ErrInvalidAmount
	}
	if a.Balance.LessThan(amount) {
		return Account{}, domainerrors.ErrInsufficientFunds
	}
	next := a
	next.Balance = a.Balance.Sub(amount)
	next.Version = a.Version + 1
	next.UpdatedAt = at.UTC()
	return next, nil
}

func (a Account) Credit(amount valueobjects.Money, at time.Time) (Account, error) {
	if !amount.IsPositive() {
		return Account{}, domainerrors.ErrInvalidAmount
	}
	next := a
	next.Balance = a.Balance.Add(amount)
	next.Version = a.Version + 1
	next.UpdatedAt = at.UTC()
	return next, nil
}

// Matches reports whether the recipient coordinates address this account.
func (a Account) Matches(recipient Recipient) bool {
	return NormalizeAccountNumber(recipient.AccountNumber) == a.AccountNumber &&
		NormalizeAccountNumber(recipient.TransitNumber) == a.TransitNumber &&
		strings.EqualFold(strings.TrimSpace(recipient.BankName), a.BankName)
}

// NormalizeAccountNumber drops the grouping spaces and dashes users type.
func NormalizeAccountNumber(value string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '\t' {
			return -1
		}
		return r
	}, strings.TrimSpace(value))
}
