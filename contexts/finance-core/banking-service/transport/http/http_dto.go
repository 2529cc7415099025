package httptransport

import "time"

type MoneyDTO struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Formatted string `json:"formatted"`
}

// CardDTO carries both the masked and the full card number; the client
// decides which side of the card to render.
type CardDTO struct {
	MaskedNumber string `json:"masked_number"`
	Number       string `json:"number"`
	ExpiryDate   string `json:"expiry_date"`
	CVV          string `json:"cvv"`
	Brand        string `json:"brand"`
}

type AccountSummaryDTO struct {
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	AccountNumber string    `json:"account_number"`
	TransitNumber string    `json:"transit_number"`
	BankName      string    `json:"bank_name"`
	Balance       MoneyDTO  `json:"balance"`
	OpenedAt      time.Time `json:"opened_at"`
}

type TransactionDTO struct {
	TransactionID   string    `json:"transaction_id"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	Direction       string    `json:"direction"`
	ReceiverName    string    `json:"receiver_name"`
	ReceiverAccount string    `json:"receiver_account"`
	ReceiverTransit string    `json:"receiver_transit"`
	ReceiverBank    string    `json:"receiver_bank"`
	Amount          MoneyDTO  `json:"amount"`
	Reference       string    `json:"reference,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	DisplayDate     string    `json:"display_date"`
}

type DashboardResponse struct {
	Account            AccountSummaryDTO `json:"account"`
	Card               CardDTO           `json:"card"`
	RecentTransactions []TransactionDTO  `json:"recent_transactions"`
}

type ProfileResponse struct {
	Account AccountSummaryDTO `json:"account"`
	Card    CardDTO           `json:"card"`
}

type TransferRequest struct {
	ReceiverName    string `json:"receiver_name"`
	ReceiverAccount string `json:"receiver_account"`
	ReceiverTransit string `json:"receiver_transit"`
	ReceiverBank    string `json:"receiver_bank"`
	Amount          string `json:"amount"`
	RequestID       string `json:"request_id,omitempty"`
}

type TransferResponse struct {
	Transaction TransactionDTO `json:"transaction"`
	Balance     MoneyDTO       `json:"balance"`
	Replayed    bool           `json:"replayed"`
}

type ListTransactionsResponse struct {
	Filter       string           `json:"filter"`
	Search       string           `json:"search,omitempty"`
	Transactions []TransactionDTO `json:"transactions"`
}

type DepositRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
	RequestID string `json:"request_id"`
}

type DepositResponse struct {
	Transaction TransactionDTO `json:"transaction"`
	Balance     MoneyDTO       `json:"balance"`
	Replayed    bool           `json:"replayed"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
