package entities

import "strings"

type CardBrand string

const (
	CardBrandVisa       CardBrand = "visa"
	CardBrandMastercard CardBrand = "mastercard"
)

type VirtualCard struct {
	Number     string
	ExpiryDate string
	CVV        string
	Brand      CardBrand
}

func (c VirtualCard) Valid() bool {
	return len(c.Number) == 16 && len(c.CVV) == 3 && len(c.ExpiryDate) == 5 && c.Brand != ""
}

// GroupedNumber renders the card number in blocks of four.
func (c VirtualCard) GroupedNumber() string {
	return groupDigits(c.Number)
}

func (c VirtualCard) MaskedNumber() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return "**** **** **** " + c.Number[len(c.Number)-4:]
}

func groupDigits(value string) string {
	var b strings.Builder
	for i, r := range value {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
