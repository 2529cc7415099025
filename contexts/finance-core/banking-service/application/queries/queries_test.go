package queries_test

import (
	"context"
	"fmt"
	"testing"

	"unity/contexts/finance-core/banking-service/adapters/memory"
	"unity/contexts/finance-core/banking-service/application/commands"
	"unity/contexts/finance-core/banking-service/application/queries"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T, transfers int) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	_, err := commands.OpenAccountUseCase{Accounts: store, Clock: store, IDGenerator: store}.
		Execute(ctx, commands.OpenAccountCommand{UserID: "user-1", Name: "Alice"})
	require.NoError(t, err)
	_, err = commands.DepositUseCase{Accounts: store, Transactions: store, Clock: store, IDGenerator: store}.
		Execute(ctx, commands.DepositCommand{UserID: "user-1", Amount: "1000", RequestID: "seed"})
	require.NoError(t, err)

	transfer := commands.TransferUseCase{
		Accounts:     store,
		Transactions: store,
		Idempotency:  store,
		Locker:       store,
		Clock:        store,
		IDGenerator:  store,
	}
	for i := 0; i < transfers; i++ {
		_, err := transfer.Execute(ctx, commands.TransferCommand{
			UserID:          "user-1",
			ReceiverName:    fmt.Sprintf("Payee %d", i),
			ReceiverAccount: fmt.Sprintf("1000000000%02d", i),
			ReceiverTransit: "22222",
			ReceiverBank:    "Other Bank",
			Amount:          fmt.Sprintf("%d.25", i+1),
		})
		require.NoError(t, err)
	}
	return store
}

func TestGetDashboardReturnsFiveRecent(t *testing.T) {
	store := seededStore(t, 7)
	dashboard, err := queries.GetDashboardUseCase{Accounts: store, Transactions: store}.Execute(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", dashboard.Account.Name)
	assert.Len(t, dashboard.Recent, 5)
	assert.Equal(t, "$970.25", dashboard.Account.Balance.Format())
}

func TestGetProfileReturnsAccountAndCard(t *testing.T) {
	store := seededStore(t, 0)
	account, err := queries.GetProfileUseCase{Accounts: store}.Execute(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", account.Name)
	assert.Len(t, account.AccountNumber, 12)
	assert.Len(t, account.TransitNumber, 5)
	assert.Len(t, account.Card.Number, 16)
	assert.Equal(t, "$1,000.00", account.Balance.Format())
}

func TestGetDashboardUnknownAccount(t *testing.T) {
	store := memory.NewStore()
	_, err := queries.GetDashboardUseCase{Accounts: store, Transactions: store}.Execute(context.Background(), "ghost")
	require.ErrorIs(t, err, domainerrors.ErrAccountNotFound)

	_, err = queries.GetProfileUseCase{Accounts: store}.Execute(context.Background(), "")
	require.ErrorIs(t, err, domainerrors.ErrUnauthenticated)
}

func TestListTransactionsFiltersAndLimits(t *testing.T) {
	store := seededStore(t, 3)
	uc := queries.ListTransactionsUseCase{Accounts: store, Transactions: store}

	all, err := uc.Execute(context.Background(), queries.ListTransactionsQuery{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	byName, err := uc.Execute(context.Background(), queries.ListTransactionsQuery{UserID: "user-1", Search: "payee 1"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "2.25", byName[0].Amount.String())

	failed, err := uc.Execute(context.Background(), queries.ListTransactionsQuery{UserID: "user-1", Status: "failed"})
	require.NoError(t, err)
	assert.Empty(t, failed)

	limited, err := uc.Execute(context.Background(), queries.ListTransactionsQuery{UserID: "user-1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = uc.Execute(context.Background(), queries.ListTransactionsQuery{UserID: "user-1", Status: "bogus"})
	require.ErrorIs(t, err, domainerrors.ErrInvalidHistoryFilter)
}
