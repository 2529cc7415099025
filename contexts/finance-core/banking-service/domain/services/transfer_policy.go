package services

import (
	"unity/contexts/finance-core/banking-service/domain/entities"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/domain/valueobjects"
)

// EvaluateTransfer applies the transfer form rules in the order the user sees
// them: missing fields, then amount, then self-transfer, then funds.
// internalRecipient is nil when the recipient is held at another bank.
func EvaluateTransfer(
	sender entities.Account,
	recipient entities.Recipient,
	internalRecipient *entities.Account,
	amount valueobjects.Money,
) error {
	if !recipient.Complete() {
		return domainerrors.ErrInvalidTransferRequest
	}
	if !amount.IsPositive() {
		return domainerrors.ErrInvalidAmount
	}
	if sender.Matches(recipient) {
		return domainerrors.ErrSelfTransfer
	}
	if internalRecipient != nil && internalRecipient.UserID == sender.UserID {
		return domainerrors.ErrSelfTransfer
	}
	if sender.Balance.LessThan(amount) {
		return domainerrors.ErrInsufficientFunds
	}
	return nil
}
