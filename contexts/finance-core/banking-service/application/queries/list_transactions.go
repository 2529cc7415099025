package queries

import (
	"context"
	"strings"

	"unity/contexts/finance-core/banking-service/domain/entities"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/domain/services"
	"unity/contexts/finance-core/banking-service/ports"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	// historyWindow bounds how many rows are scanned before filtering.
	historyWindow = 500
)

type ListTransactionsQuery struct {
	UserID string
	Status string
	Search string
	Limit  int
}

type ListTransactionsUseCase struct {
	Accounts     ports.AccountRepository
	Transactions ports.TransactionRepository
}

func (u ListTransactionsUseCase) Execute(ctx context.Context, query ListTransactionsQuery) ([]entities.Transaction, error) {
	if strings.TrimSpace(query.UserID) == "" {
		return nil, domainerrors.ErrUnauthenticated
	}
	status, err := services.ParseStatusFilter(query.Status)
	if err != nil {
		return nil, err
	}
	if u.Accounts != nil {
		if _, err := u.Accounts.GetAccount(ctx, query.UserID); err != nil {
			return nil, err
		}
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	items, err := u.Transactions.ListTransactionsByUser(ctx, query.UserID, historyWindow)
	if err != nil {
		return nil, err
	}
	filtered := services.FilterTransactions(items, status, query.Search)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}
