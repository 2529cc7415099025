package httpadapter

import (
	"context"
	"log/slog"

	application "unity/contexts/finance-core/banking-service/application"
	"unity/contexts/finance-core/banking-service/application/commands"
	"unity/contexts/finance-core/banking-service/application/queries"
	"unity/contexts/finance-core/banking-service/domain/entities"
	"unity/contexts/finance-core/banking-service/domain/services"
	"unity/contexts/finance-core/banking-service/domain/valueobjects"
	httptransport "unity/contexts/finance-core/banking-service/transport/http"
)

// Handler maps HTTP DTOs to application commands/queries.
type Handler struct {
	OpenAccount      commands.OpenAccountUseCase
	Transfer         commands.TransferUseCase
	Deposit          commands.DepositUseCase
	GetDashboard     queries.GetDashboardUseCase
	GetProfile       queries.GetProfileUseCase
	ListTransactions queries.ListTransactionsUseCase
	Logger           *slog.Logger
}

// OpenAccountHandler opens the account right after signup so the first
// dashboard load does not wait for the worker.
func (h Handler) OpenAccountHandler(ctx context.Context, userID string, name string, email string) (httptransport.ProfileResponse, error) {
	result, err := h.OpenAccount.Execute(ctx, commands.OpenAccountCommand{
		UserID: userID,
		Name:   name,
		Email:  email,
	})
	if err != nil {
		return httptransport.ProfileResponse{}, err
	}
	return httptransport.ProfileResponse{
		Account: accountSummary(result.Account),
		Card:    cardDTO(result.Account.Card),
	}, nil
}

// DashboardHandler godoc
// @Summary Get dashboard
// @Description Returns account summary, balance, virtual card and the five most recent transactions.
// @Tags banking-service
// @Produce json
// @Security BearerAuth
// @Success 200 {object} httptransport.DashboardResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /api/banking/v1/dashboard [get]
func (h Handler) DashboardHandler(ctx context.Context, userID string) (httptransport.DashboardResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	dashboard, err := h.GetDashboard.Execute(ctx, userID)
	if err != nil {
		logger.Error("http banking dashboard failed",
			"event", "banking_http_dashboard_failed",
			"module", "finance-core/banking-service",
			"layer", "transport",
			"user_id", userID,
			"error", err.Error(),
		)
		return httptransport.DashboardResponse{}, err
	}
	return httptransport.DashboardResponse{
		Account:            accountSummary(dashboard.Account),
		Card:               cardDTO(dashboard.Account.Card),
		RecentTransactions: transactionDTOs(dashboard.Recent, userID),
	}, nil
}

// ProfileHandler godoc
// @Summary Get profile
// @Tags banking-service
// @Produce json
// @Security BearerAuth
// @Success 200 {object} httptransport.ProfileResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/banking/v1/profile [get]
func (h Handler) ProfileHandler(ctx context.Context, userID string) (httptransport.ProfileResponse, error) {
	account, err := h.GetProfile.Execute(ctx, userID)
	if err != nil {
		return httptransport.ProfileResponse{}, err
	}
	return httptransport.ProfileResponse{
		Account: accountSummary(account),
		Card:    cardDTO(account.Card),
	}, nil
}

// TransferHandler godoc
// @Summary Send money
// @Description Debits the caller and records a completed transfer atomically.
// @Tags banking-service
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay protection key"
// @Param request body httptransport.TransferRequest true "Transfer payload"
// @Success 200 {object} httptransport.TransferResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /api/banking/v1/transfers [post]
func (h Handler) TransferHandler(
	ctx context.Context,
	userID string,
	idempotencyKey string,
	request httptransport.TransferRequest,
) (httptransport.TransferResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("http banking transfer received",
		"event", "banking_http_transfer_received",
		"module", "finance-core/banking-service",
		"layer", "transport",
		"user_id", userID,
		"request_id", request.RequestID,
	)

	result, err := h.Transfer.Execute(ctx, commands.TransferCommand{
		UserID:          userID,
		ReceiverName:    request.ReceiverName,
		ReceiverAccount: request.ReceiverAccount,
		ReceiverTransit: request.ReceiverTransit,
		ReceiverBank:    request.ReceiverBank,
		Amount:          request.Amount,
		RequestID:       request.RequestID,
		IdempotencyKey:  idempotencyKey,
	})
	if err != nil {
		return httptransport.TransferResponse{}, err
	}
	return httptransport.TransferResponse{
		Transaction: transactionDTO(result.Transaction, userID),
		Balance:     moneyDTO(result.Balance),
		Replayed:    result.Replayed,
	}, nil
}

func (h Handler) DepositHandler(
	ctx context.Context,
	userID string,
	request httptransport.DepositRequest,
) (httptransport.DepositResponse, error) {
	result, err := h.Deposit.Execute(ctx, commands.DepositCommand{
		UserID:    userID,
		Amount:    request.Amount,
		Reference: request.Reference,
		RequestID: request.RequestID,
	})
	if err != nil {
		return httptransport.DepositResponse{}, err
	}
	return httptransport.DepositResponse{
		Transaction: transactionDTO(result.Transaction, userID),
		Balance:     moneyDTO(result.Balance),
		Replayed:    result.Replayed,
	}, nil
}

// ListTransactionsHandler godoc
// @Summary List transactions
// @Tags banking-service
// @Produce json
// @Security BearerAuth
// @Param filter query string false "all, pending, failed or completed"
// @Param q query string false "Search receiver name, account, amount or date"
// @Param limit query int false "Page size (max 200)"
// @Success 200 {object} httptransport.ListTransactionsResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Router /api/banking/v1/transactions [get]
func (h Handler) ListTransactionsHandler(
	ctx context.Context,
	userID string,
	filter string,
	search string,
	limit int,
) (httptransport.ListTransactionsResponse, error) {
	items, err := h.ListTransactions.Execute(ctx, queries.ListTransactionsQuery{
		UserID: userID,
		Status: filter,
		Search: search,
		Limit:  limit,
	})
	if err != nil {
		return httptransport.ListTransactionsResponse{}, err
	}
	status, _ := services.ParseStatusFilter(filter)
	return httptransport.ListTransactionsResponse{
		Filter:       string(status),
		Search:       search,
		Transactions: transactionDTOs(items, userID),
	}, nil
}

func accountSummary(account entities.Account) httptransport.AccountSummaryDTO {
	return httptransport.AccountSummaryDTO{
		UserID:        account.UserID,
		Name:          account.Name,
		Email:         account.Email,
		AccountNumber: account.AccountNumber,
		TransitNumber: account.TransitNumber,
		BankName:      account.BankName,
		Balance:       moneyDTO(account.Balance),
		OpenedAt:      account.CreatedAt,
	}
}

func cardDTO(card entities.VirtualCard) httptransport.CardDTO {
	return httptransport.CardDTO{
		MaskedNumber: card.MaskedNumber(),
		Number:       card.GroupedNumber(),
		ExpiryDate:   card.ExpiryDate,
		CVV:          card.CVV,
		Brand:        string(card.Brand),
	}
}

func moneyDTO(money valueobjects.Money) httptransport.MoneyDTO {
	return httptransport.MoneyDTO{
		Amount:    money.String(),
		Currency:  valueobjects.CurrencyUSD,
		Formatted: money.Format(),
	}
}

func transactionDTOs(items []entities.Transaction, userID string) []httptransport.TransactionDTO {
	out := make([]httptransport.TransactionDTO, 0, len(items))
	for _, item := range items {
		out = append(out, transactionDTO(item, userID))
	}
	return out
}

func transactionDTO(item entities.Transaction, userID string) httptransport.TransactionDTO {
	direction := "incoming"
	if item.Outgoing(userID) {
		direction = "outgoing"
	}
	return httptransport.TransactionDTO{
		TransactionID:   item.TransactionID,
		Type:            string(item.Type),
		Status:          string(item.Status),
		Direction:       direction,
		ReceiverName:    item.Recipient.Name,
		ReceiverAccount: item.Recipient.AccountNumber,
		ReceiverTransit: item.Recipient.TransitNumber,
		ReceiverBank:    item.Recipient.BankName,
		Amount:          moneyDTO(item.Amount),
		Reference:       item.Reference,
		CreatedAt:       item.CreatedAt,
		DisplayDate:     item.CreatedAt.Format(services.HistoryDateLayout),
	}
}
