package postgresadapter

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"unity/contexts/finance-core/banking-service/domain/entities"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/domain/valueobjects"
	"unity/contexts/finance-core/banking-service/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(
		postgres.New(postgres.Config{DSN: "host=localhost user=unity dbname=unity sslmode=disable"}),
		&gorm.Config{DryRun: true, DisableAutomaticPing: true},
	)
	require.NoError(t, err)
	return db
}

func money(t *testing.T, raw string) valueobjects.Money {
	t.Helper()
	value, err := valueobjects.ParseAmount(raw)
	require.NoError(t, err)
	return value
}

func TestPostingUpdateGuardsDebitsOnBalanceAndVersion(t *testing.T) {
	db := dryRunDB(t)
	account := entities.Account{UserID: "user-1", Version: 4, UpdatedAt: time.Now()}

	debit := postingUpdate(db, ports.LedgerPosting{
		Account:         account,
		Delta:           valueobjects.Zero().Sub(money(t, "25")),
		ExpectedVersion: 3,
	})
	require.NoError(t, debit.Error)
	sql := debit.Statement.SQL.String()
	assert.Contains(t, sql, `UPDATE "banking_accounts"`)
	assert.Contains(t, sql, "balance + $")
	assert.Contains(t, sql, "user_id = $")
	assert.Contains(t, sql, "version = $")
	assert.Contains(t, sql, "balance >= $")
	vars := debit.Statement.Vars
	require.NotEmpty(t, vars)
	covered, ok := vars[len(vars)-1].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, covered.Equal(decimal.RequireFromString("25")))

	credit := postingUpdate(db, ports.LedgerPosting{
		Account:         account,
		Delta:           money(t, "25"),
		ExpectedVersion: 3,
	})
	require.NoError(t, credit.Error)
	assert.Contains(t, credit.Statement.SQL.String(), "version = $")
	assert.NotContains(t, credit.Statement.SQL.String(), "balance >=")
}

func TestMissedPostingTellsRaceFromOverdraft(t *testing.T) {
	posting := ports.LedgerPosting{Account: entities.Account{UserID: "user-1"}, ExpectedVersion: 2}
	boom := errors.New("connection reset")

	cases := []struct {
		name    string
		current accountModel
		loadErr error
		want    error
	}{
		{name: "version moved", current: accountModel{Version: 3}, want: domainerrors.ErrConcurrentUpdate},
		{name: "balance short", current: accountModel{Version: 2}, want: domainerrors.ErrInsufficientFunds},
		{name: "row gone", loadErr: gorm.ErrRecordNotFound, want: domainerrors.ErrAccountNotFound},
		{name: "load failed", loadErr: boom, want: boom},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, missedPosting(tc.current, tc.loadErr, posting), tc.want)
		})
	}
}

func TestPutIdempotencyOnlyTakesOverExpiredRows(t *testing.T) {
	db := dryRunDB(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	result := putIdempotency(db, idempotencyModel{
		Key:           "user-1:k1",
		RequestHash:   "hash",
		TransactionID: "txn-1",
		ExpiresAt:     now.Add(time.Hour),
	}, now)
	require.NoError(t, result.Error)
	sql := result.Statement.SQL.String()
	assert.Contains(t, sql, `INSERT INTO "banking_idempotency"`)
	assert.Contains(t, sql, "ON CONFLICT")
	assert.Contains(t, sql, "DO UPDATE SET")
	assert.Contains(t, sql, "banking_idempotency.expires_at <= $")
	vars := result.Statement.Vars
	require.NotEmpty(t, vars)
	assert.Equal(t, now, vars[len(vars)-1])
}

// The tests below need a disposable database, e.g.
// UNITY_TEST_POSTGRES_DSN="host=localhost user=unity password=unity dbname=unity_test sslmode=disable".
func integrationRepository(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	dsn := os.Getenv("UNITY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("UNITY_TEST_POSTGRES_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return NewRepository(db, nil), db
}

func seedAccount(t *testing.T, db *gorm.DB, balance string) entities.Account {
	t.Helper()
	suffix := uuid.NewString()
	row := accountModel{
		UserID:        "user-" + suffix,
		Name:          "Alice",
		Email:         suffix + "@example.com",
		AccountNumber: suffix[:12],
		TransitNumber: suffix[24:29],
		BankName:      "Unity Credit Union",
		Balance:       decimal.RequireFromString(balance),
		Version:       1,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, db.Create(&row).Error)
	return row.toEntity()
}

func debitWrite(t *testing.T, account entities.Account, amount string, expectedVersion int64) ports.LedgerWrite {
	t.Helper()
	now := time.Now().UTC()
	value := money(t, amount)
	posted := account
	posted.Version = expectedVersion + 1
	posted.UpdatedAt = now
	transaction, err := entities.NewTransfer(
		uuid.NewString(),
		account.UserID,
		"",
		entities.Recipient{Name: "Jane Doe", AccountNumber: "987654321098", TransitNumber: "11111", BankName: "Other Bank"},
		value,
		uuid.NewString(),
		now,
	)
	require.NoError(t, err)
	return ports.LedgerWrite{
		Postings:    []ports.LedgerPosting{{Account: posted, Delta: valueobjects.Zero().Sub(value), ExpectedVersion: expectedVersion}},
		Transaction: transaction,
		Event: ports.OutboxEvent{
			EventID:      uuid.NewString(),
			EventType:    "transfer.completed",
			PartitionKey: account.UserID,
			Data:         map[string]string{"transaction_id": transaction.TransactionID},
			OccurredAt:   now,
		},
	}
}

func TestCommitLedgerWriteAgainstPostgres(t *testing.T) {
	repo, db := integrationRepository(t)
	ctx := context.Background()
	account := seedAccount(t, db, "50.00")

	require.ErrorIs(t, repo.CommitLedgerWrite(ctx, debitWrite(t, account, "80", 1)), domainerrors.ErrInsufficientFunds)
	require.ErrorIs(t, repo.CommitLedgerWrite(ctx, debitWrite(t, account, "10", 0)), domainerrors.ErrConcurrentUpdate)

	history, err := repo.ListTransactionsByUser(ctx, account.UserID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	write := debitWrite(t, account, "10", 1)
	require.NoError(t, repo.CommitLedgerWrite(ctx, write))

	stored, err := repo.GetAccount(ctx, account.UserID)
	require.NoError(t, err)
	assert.Equal(t, "40.00", stored.Balance.String())
	assert.Equal(t, int64(2), stored.Version)

	history, err = repo.ListTransactionsByUser(ctx, account.UserID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, write.Transaction.TransactionID, history[0].TransactionID)

	var outboxRows int64
	require.NoError(t, db.Model(&outboxModel{}).Where("outbox_id = ?", write.Event.EventID).Count(&outboxRows).Error)
	assert.Equal(t, int64(1), outboxRows)

	replay := debitWrite(t, stored, "5", 2)
	replay.Transaction.RequestID = write.Transaction.RequestID
	require.ErrorIs(t, repo.CommitLedgerWrite(ctx, replay), domainerrors.ErrDuplicateRequestID)
	stored, err = repo.GetAccount(ctx, account.UserID)
	require.NoError(t, err)
	assert.Equal(t, "40.00", stored.Balance.String())
}

func TestIdempotencyAgainstPostgres(t *testing.T) {
	repo, _ := integrationRepository(t)
	ctx := context.Background()
	key := "user-1:" + uuid.NewString()
	start := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Put(ctx, ports.IdempotencyRecord{
		Key: key, RequestHash: "a", TransactionID: "txn-1", CreatedAt: start, ExpiresAt: start.Add(time.Hour),
	}))
	require.NoError(t, repo.Put(ctx, ports.IdempotencyRecord{
		Key: key, RequestHash: "a", TransactionID: "txn-1", CreatedAt: start, ExpiresAt: start.Add(time.Hour),
	}))
	require.ErrorIs(t, repo.Put(ctx, ports.IdempotencyRecord{
		Key: key, RequestHash: "b", TransactionID: "txn-2", CreatedAt: start, ExpiresAt: start.Add(time.Hour),
	}), domainerrors.ErrIdempotencyKeyConflict)

	later := start.Add(2 * time.Hour)
	_, found, err := repo.Get(ctx, key, later)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Put(ctx, ports.IdempotencyRecord{
		Key: key, RequestHash: "b", TransactionID: "txn-2", CreatedAt: later, ExpiresAt: later.Add(time.Hour),
	}))
	record, found, err := repo.Get(ctx, key, later)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "txn-2", record.TransactionID)
}

func TestReserveEventAgainstPostgres(t *testing.T) {
	repo, _ := integrationRepository(t)
	ctx := context.Background()
	eventID := uuid.NewString()
	expires := time.Now().UTC().Add(time.Hour)

	duplicate, err := repo.ReserveEvent(ctx, eventID, "hash", expires)
	require.NoError(t, err)
	assert.False(t, duplicate)

	duplicate, err = repo.ReserveEvent(ctx, eventID, "hash", expires)
	require.NoError(t, err)
	assert.True(t, duplicate)

	_, err = repo.ReserveEvent(ctx, eventID, "other", expires)
	require.ErrorIs(t, err, domainerrors.ErrIdempotencyKeyConflict)
}
