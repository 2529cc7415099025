package entities

import (
	"strings"
	"time"

	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/domain/valueobjects"
)

type TransactionType string

const (
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Recipient identifies the destination of a transfer as typed on the form.
type Recipient struct {
	Name          string
	AccountNumber string
	TransitNumber string
	BankName      string
}

func (r Recipient) Normalized() Recipient {
	return Recipient{
		Name:          strings.TrimSpace(r.Name),
		AccountNumber: NormalizeAccountNumber(r.AccountNumber),
		TransitNumber: NormalizeAccountNumber(r.TransitNumber),
		BankName:      strings.TrimSpace(r.BankName),
	}
}

func (r Recipient) Complete() bool {
	n := r.Normalized()
	return n.Name != "" && n.AccountNumber != "" && n.TransitNumber != "" && n.BankName != ""
}

// Transaction is an immutable ledger record. For transfers SenderID is the
// debited account; ReceiverID is set only when the recipient is internal.
// For deposits SenderID is empty and ReceiverID is the credited account.
type Transaction struct {
	TransactionID string
	SenderID      string
	ReceiverID    string
	Recipient     Recipient
	Amount        valueobjects.Money
	Type          TransactionType
	Status        TransactionStatus
	RequestID     string
	Reference     string
	CreatedAt     time.Time
}

func NewTransfer(
	transactionID string,
	senderID string,
	receiverID string,
	recipient Recipient,
	amount valueobjects.Money,
	requestID string,
	createdAt time.Time,
) (Transaction, error) {
	if strings.TrimSpace(transactionID) == "" ||
		strings.TrimSpace(senderID) == "" ||
		strings.TrimSpace(requestID) == "" ||
		!recipient.Complete() {
		return Transaction{}, domainerrors.ErrInvalidTransferRequest
	}
	if !amount.IsPositive() {
		return Transaction{}, domainerrors.ErrInvalidAmount
	}
	return Transaction{
		TransactionID: transactionID,
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Recipient:     recipient.Normalized(),
		Amount:        amount,
		Type:          TransactionTypeTransfer,
		Status:        TransactionStatusCompleted,
		RequestID:     requestID,
		CreatedAt:     createdAt.UTC(),
	}, nil
}

func NewDeposit(
	transactionID string,
	account Account,
	amount valueobjects.Money,
	reference string,
	requestID string,
	createdAt time.Time,
) (Transaction, error) {
	if strings.TrimSpace(transactionID) == "" || strings.TrimSpace(requestID) == "" {
		return Transaction{}, domainerrors.ErrInvalidDeposit
	}
	if !amount.IsPositive() {
		return Transaction{}, domainerrors.ErrInvalidAmount
	}
	return Transaction{
		TransactionID: transactionID,
		ReceiverID:    account.UserID,
		Recipient: Recipient{
			Name:          account.Name,
			AccountNumber: account.AccountNumber,
			TransitNumber: account.TransitNumber,
			BankName:      account.BankName,
		},
		Amount:    amount,
		Type:      TransactionTypeDeposit,
		Status:    TransactionStatusCompleted,
		RequestID: requestID,
		Reference: strings.TrimSpace(reference),
		CreatedAt: createdAt.UTC(),
	}, nil
}

// Outgoing reports whether the transaction debited userID.
func (t Transaction) Outgoing(userID string) bool {
	return t.SenderID != "" && t.SenderID == userID
}

// Involves reports whether userID is the sender or the receiver.
func (t Transaction) Involves(userID string) bool {
	return t.SenderID == userID || (t.ReceiverID != "" && t.ReceiverID == userID)
}

// OwnerID is the account that initiated the transaction; request ids are
// unique per owner.
func (t Transaction) OwnerID() string {
	if t.SenderID != "" {
		return t.SenderID
	}
	return t.ReceiverID
}
