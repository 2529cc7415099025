package queries

import (
	"context"
	"strings"

	"unity/contexts/finance-core/banking-service/domain/entities"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/ports"
)

type GetProfileUseCase struct {
	Accounts ports.AccountRepository
}

func (u GetProfileUseCase) Execute(ctx context.Context, userID string) (entities.Account, error) {
	if strings.TrimSpace(userID) == "" {
		return entities.Account{}, domainerrors.ErrUnauthenticated
	}
	return u.Accounts.GetAccount(ctx, userID)
}
