package services

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"unity/contexts/finance-core/banking-service/domain/entities"
)

const (
	accountNumberDigits = 12
	transitNumberDigits = 5
	cardNumberDigits    = 16
	cardValidityYears   = 5
)

// Issuer produces account coordinates and a virtual card for new accounts.
type Issuer struct {
	Random io.Reader
}

type IssuedCoordinates struct {
	AccountNumber string
	TransitNumber string
	Card          entities.VirtualCard
}

func (i Issuer) Issue(now time.Time) (IssuedCoordinates, error) {
	accountNumber, err := i.digits(accountNumberDigits)
	if err != nil {
		return IssuedCoordinates{}, err
	}
	transit, err := i.digits(transitNumberDigits)
	if err != nil {
		return IssuedCoordinates{}, err
	}
	tail, err := i.digits(cardNumberDigits - 1)
	if err != nil {
		return IssuedCoordinates{}, err
	}
	cvv, err := i.digits(3)
	if err != nil {
		return IssuedCoordinates{}, err
	}

	expiry := now.UTC().AddDate(cardValidityYears, 0, 0)
	return IssuedCoordinates{
		AccountNumber: accountNumber,
		TransitNumber: transit,
		Card: entities.VirtualCard{
			Number:     "4" + tail,
			ExpiryDate: fmt.Sprintf("%02d/%02d", int(expiry.Month()), expiry.Year()%100),
			CVV:        cvv,
			Brand:      entities.CardBrandVisa,
		},
	}, nil
}

func (i Issuer) digits(n int) (string, error) {
	source := i.Random
	if source == nil {
		source = rand.Reader
	}
	out := make([]byte, n)
	ten := big.NewInt(10)
	for idx := range out {
		d, err := rand.Int(source, ten)
		if err != nil {
			return "", fmt.Errorf("issue digits: %w", err)
		}
		out[idx] = byte('0' + d.Int64())
	}
	return string(out), nil
}
