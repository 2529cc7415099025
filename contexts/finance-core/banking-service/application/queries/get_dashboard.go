package queries

import (
	"context"
	"strings"

	"unity/contexts/finance-core/banking-service/domain/entities"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/ports"
)

const dashboardRecentLimit = 5

type Dashboard struct {
	Account entities.Account
	Recent  []entities.Transaction
}

type GetDashboardUseCase struct {
	Accounts     ports.AccountRepository
	Transactions ports.TransactionRepository
}

func (u GetDashboardUseCase) Execute(ctx context.Context, userID string) (Dashboard, error) {
	if strings.TrimSpace(userID) == "" {
		return Dashboard{}, domainerrors.ErrUnauthenticated
	}
	account, err := u.Accounts.GetAccount(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	recent, err := u.Transactions.ListTransactionsByUser(ctx, userID, dashboardRecentLimit)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{Account: account, Recent: recent}, nil
}
