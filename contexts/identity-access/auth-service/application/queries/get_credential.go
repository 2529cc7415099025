package queries

import (
	"context"
	"strings"

	"unity/contexts/identity-access/auth-service/domain/entities"
	domainerrors "unity/contexts/identity-access/auth-service/domain/errors"
	"unity/contexts/identity-access/auth-service/ports"
)

type GetCredentialUseCase struct {
	Credentials ports.CredentialRepository
}

func (u GetCredentialUseCase) Execute(ctx context.Context, userID string) (entities.Credential, error) {
	if strings.TrimSpace(userID) == "" {
		return entities.Credential{}, domainerrors.ErrUnauthenticated
	}
	return u.Credentials.GetCredential(ctx, userID)
}
