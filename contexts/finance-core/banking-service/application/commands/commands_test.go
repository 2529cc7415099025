package commands_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"unity/contexts/finance-core/banking-service/adapters/memory"
	"unity/contexts/finance-core/banking-service/application/commands"
	"unity/contexts/finance-core/banking-service/domain/entities"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/domain/valueobjects"
	"unity/contexts/finance-core/banking-service/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store    *memory.Store
	open     commands.OpenAccountUseCase
	deposit  commands.DepositUseCase
	transfer commands.TransferUseCase
}

func newHarness() harness {
	store := memory.NewStore()
	return harness{
		store: store,
		open: commands.OpenAccountUseCase{
			Accounts:    store,
			Clock:       store,
			IDGenerator: store,
		},
		deposit: commands.DepositUseCase{
			Accounts:     store,
			Transactions: store,
			Locker:       store,
			Clock:        store,
			IDGenerator:  store,
		},
		transfer: commands.TransferUseCase{
			Accounts:     store,
			Transactions: store,
			Idempotency:  store,
			Locker:       store,
			Clock:        store,
			IDGenerator:  store,
		},
	}
}

func (h harness) openFunded(t *testing.T, userID string, name string, amount string) entities.Account {
	t.Helper()
	result, err := h.open.Execute(context.Background(), commands.OpenAccountCommand{
		UserID: userID,
		Name:   name,
		Email:  userID + "@example.com",
	})
	require.NoError(t, err)
	require.True(t, result.Created)
	if amount == "" {
		return result.Account
	}
	deposited, err := h.deposit.Execute(context.Background(), commands.DepositCommand{
		UserID:    userID,
		Amount:    amount,
		RequestID: "seed-" + userID,
	})
	require.NoError(t, err)
	account, err := h.store.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, account.Balance.Equal(deposited.Balance))
	return account
}

func externalTransfer(userID string, amount string) commands.TransferCommand {
	return commands.TransferCommand{
		UserID:          userID,
		ReceiverName:    "Jane Doe",
		ReceiverAccount: "9876 5432 1098",
		ReceiverTransit: "11111",
		ReceiverBank:    "Other Bank",
		Amount:          amount,
	}
}

func TestOpenAccountIsIdempotent(t *testing.T) {
	h := newHarness()
	first := h.openFunded(t, "user-1", "Alice", "")

	again, err := h.open.Execute(context.Background(), commands.OpenAccountCommand{UserID: "user-1", Name: "Alice"})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.AccountNumber, again.Account.AccountNumber)
	assert.True(t, again.Account.Balance.IsZero())
	assert.Equal(t, commands.DefaultBankName, again.Account.BankName)

	pending, err := h.store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "account.opened", pending[0].EventType)
}

func TestTransferDebitsAndRecords(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "100.00")

	result, err := h.transfer.Execute(context.Background(), externalTransfer("user-1", "$1,2.50"))
	require.NoError(t, err)
	assert.Equal(t, "87.50", result.Balance.String())
	assert.Equal(t, entities.TransactionStatusCompleted, result.Transaction.Status)
	assert.Equal(t, "12.50", result.Transaction.Amount.String())
	assert.Equal(t, "987654321098", result.Transaction.Recipient.AccountNumber)

	stored, err := h.store.GetTransaction(context.Background(), result.Transaction.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.SenderID)
	assert.Empty(t, stored.ReceiverID)
}

func TestTransferRejectsInsufficientFundsWithoutSideEffects(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "10.00")

	_, err := h.transfer.Execute(context.Background(), externalTransfer("user-1", "10.01"))
	require.ErrorIs(t, err, domainerrors.ErrInsufficientFunds)

	account, err := h.store.GetAccount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "10.00", account.Balance.String())

	history, err := h.store.ListTransactionsByUser(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entities.TransactionTypeDeposit, history[0].Type)
}

func TestTransferValidation(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "10.00")

	cases := []struct {
		name string
		cmd  commands.TransferCommand
		want error
	}{
		{name: "anonymous", cmd: externalTransfer("", "1.00"), want: domainerrors.ErrUnauthenticated},
		{name: "missing amount", cmd: externalTransfer("user-1", ""), want: domainerrors.ErrInvalidTransferRequest},
		{name: "zero amount", cmd: externalTransfer("user-1", "0"), want: domainerrors.ErrInvalidAmount},
		{name: "sub-cent amount", cmd: externalTransfer("user-1", "1.001"), want: domainerrors.ErrInvalidAmount},
		{name: "missing bank", cmd: func() commands.TransferCommand {
			cmd := externalTransfer("user-1", "1.00")
			cmd.ReceiverBank = "  "
			return cmd
		}(), want: domainerrors.ErrInvalidTransferRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.transfer.Execute(context.Background(), tc.cmd)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestTransferCreditsInternalRecipientInSameCommit(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "50.00")
	bob := h.openFunded(t, "user-2", "Bob", "")

	result, err := h.transfer.Execute(context.Background(), commands.TransferCommand{
		UserID:          "user-1",
		ReceiverName:    "Bob",
		ReceiverAccount: bob.AccountNumber,
		ReceiverTransit: bob.TransitNumber,
		ReceiverBank:    commands.DefaultBankName,
		Amount:          "20",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-2", result.Transaction.ReceiverID)

	receiver, err := h.store.GetAccount(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Equal(t, "20.00", receiver.Balance.String())
	assert.Equal(t, bob.Version+1, receiver.Version)

	received, err := h.store.ListTransactionsByUser(context.Background(), "user-2", 10)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.False(t, received[0].Outgoing("user-2"))
}

func TestTransferRejectsSelfTransfer(t *testing.T) {
	h := newHarness()
	alice := h.openFunded(t, "user-1", "Alice", "50.00")

	_, err := h.transfer.Execute(context.Background(), commands.TransferCommand{
		UserID:          "user-1",
		ReceiverName:    "Alice",
		ReceiverAccount: alice.AccountNumber,
		ReceiverTransit: alice.TransitNumber,
		ReceiverBank:    commands.DefaultBankName,
		Amount:          "5",
	})
	require.ErrorIs(t, err, domainerrors.ErrSelfTransfer)
}

func TestTransferIdempotencyReplayAndConflict(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "100.00")

	cmd := externalTransfer("user-1", "30")
	cmd.IdempotencyKey = "idem-1"
	first, err := h.transfer.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	replayed, err := h.transfer.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, replayed.Replayed)
	assert.Equal(t, first.Transaction.TransactionID, replayed.Transaction.TransactionID)
	assert.Equal(t, "70.00", replayed.Balance.String())

	changed := cmd
	changed.Amount = "31"
	_, err = h.transfer.Execute(context.Background(), changed)
	require.ErrorIs(t, err, domainerrors.ErrIdempotencyKeyConflict)
}

// missingKeys hides stored idempotency records from the first misses Get
// calls, the way a concurrent request that has not yet written its record does.
type missingKeys struct {
	*memory.Store
	mu     sync.Mutex
	misses int
}

func (m *missingKeys) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	m.mu.Lock()
	if m.misses != 0 {
		if m.misses > 0 {
			m.misses--
		}
		m.mu.Unlock()
		return ports.IdempotencyRecord{}, false, nil
	}
	m.mu.Unlock()
	return m.Store.Get(ctx, key, now)
}

func TestTransferSucceedsWhenKeyRecordLosesRace(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "100.00")
	h.transfer.Idempotency = &missingKeys{Store: h.store, misses: -1}

	first := externalTransfer("user-1", "10")
	first.IdempotencyKey = "k1"
	first.RequestID = "r1"
	_, err := h.transfer.Execute(context.Background(), first)
	require.NoError(t, err)

	second := externalTransfer("user-1", "20")
	second.IdempotencyKey = "k1"
	second.RequestID = "r2"
	result, err := h.transfer.Execute(context.Background(), second)
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, "70.00", result.Balance.String())

	history, err := h.store.ListTransactionsByUser(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestTransferRechecksKeyUnderLock(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "100.00")

	cmd := externalTransfer("user-1", "10")
	cmd.IdempotencyKey = "k1"
	first, err := h.transfer.Execute(context.Background(), cmd)
	require.NoError(t, err)

	h.transfer.Idempotency = &missingKeys{Store: h.store, misses: 1}
	cmd.RequestID = "r2"
	second, err := h.transfer.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.TransactionID, second.Transaction.TransactionID)
	assert.Equal(t, "90.00", second.Balance.String())

	changed := cmd
	changed.Amount = "15"
	h.transfer.Idempotency = &missingKeys{Store: h.store, misses: 1}
	_, err = h.transfer.Execute(context.Background(), changed)
	require.ErrorIs(t, err, domainerrors.ErrIdempotencyKeyConflict)

	account, err := h.store.GetAccount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "90.00", account.Balance.String())
}

func TestTransferIdempotencyKeysAreScopedPerUser(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "100.00")
	h.openFunded(t, "user-2", "Bob", "100.00")

	first := externalTransfer("user-1", "30")
	first.IdempotencyKey = "transfer-1"
	_, err := h.transfer.Execute(context.Background(), first)
	require.NoError(t, err)

	second := externalTransfer("user-2", "5")
	second.IdempotencyKey = "transfer-1"
	result, err := h.transfer.Execute(context.Background(), second)
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, "95.00", result.Balance.String())
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

func TestTransferReusesExpiredIdempotencyKey(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "100.00")
	clock := &fixedClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	h.transfer.Clock = clock
	h.transfer.IdempotencyTTL = time.Hour

	cmd := externalTransfer("user-1", "10")
	cmd.IdempotencyKey = "k1"
	cmd.RequestID = "r1"
	_, err := h.transfer.Execute(context.Background(), cmd)
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Hour)
	cmd.Amount = "20"
	cmd.RequestID = "r2"
	result, err := h.transfer.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, "70.00", result.Balance.String())

	cmd.Amount = "25"
	cmd.RequestID = "r3"
	_, err = h.transfer.Execute(context.Background(), cmd)
	require.ErrorIs(t, err, domainerrors.ErrIdempotencyKeyConflict)
}

func TestTransferRequestIDReplays(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "100.00")

	cmd := externalTransfer("user-1", "25")
	cmd.RequestID = "req-1"
	first, err := h.transfer.Execute(context.Background(), cmd)
	require.NoError(t, err)

	second, err := h.transfer.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.TransactionID, second.Transaction.TransactionID)

	account, err := h.store.GetAccount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "75.00", account.Balance.String())
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "100.00")

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.transfer.Execute(context.Background(), externalTransfer("user-1", "10"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domainerrors.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	account, err := h.store.GetAccount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())

	history, err := h.store.ListTransactionsByUser(context.Background(), "user-1", 100)
	require.NoError(t, err)
	assert.Len(t, history, succeeded+1)
}

func TestDepositRequiresRequestIDAndReplays(t *testing.T) {
	h := newHarness()
	h.openFunded(t, "user-1", "Alice", "")

	_, err := h.deposit.Execute(context.Background(), commands.DepositCommand{UserID: "user-1", Amount: "5"})
	require.ErrorIs(t, err, domainerrors.ErrInvalidDeposit)

	cmd := commands.DepositCommand{UserID: "user-1", Amount: "5", RequestID: "dep-1", Reference: "branch"}
	first, err := h.deposit.Execute(context.Background(), cmd)
	require.NoError(t, err)
	second, err := h.deposit.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.TransactionID, second.Transaction.TransactionID)
	assert.True(t, second.Balance.Equal(valueobjects.MoneyFromCents(500)))
}
