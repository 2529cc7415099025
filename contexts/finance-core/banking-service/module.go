package banking

import (
	"log/slog"
	"time"

	httpadapter "unity/contexts/finance-core/banking-service/adapters/http"
	"unity/contexts/finance-core/banking-service/adapters/memory"
	"unity/contexts/finance-core/banking-service/application/commands"
	"unity/contexts/finance-core/banking-service/application/queries"
	"unity/contexts/finance-core/banking-service/application/workers"
	"unity/contexts/finance-core/banking-service/domain/services"
	"unity/contexts/finance-core/banking-service/ports"
)

// Module is the banking-service composition root exposed to runtime wiring.
type Module struct {
	Handler                httpadapter.Handler
	OutboxRelay            workers.OutboxRelay
	UserRegisteredConsumer workers.UserRegisteredConsumer
	Store                  *memory.Store
}

// Dependencies captures all runtime ports/config required by NewModule.
type Dependencies struct {
	Accounts       ports.AccountRepository
	Transactions   ports.TransactionRepository
	Idempotency    ports.IdempotencyStore
	Locker         ports.AccountLocker
	Outbox         ports.OutboxRepository
	Dedup          ports.EventDedupStore
	Publisher      ports.EventPublisher
	Subscriber     ports.EventSubscriber
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	BankName       string
	IdempotencyTTL time.Duration
	OutboxBatch    int
	Logger         *slog.Logger
}

// NewModule wires banking use-cases, workers and the transport handler.
func NewModule(deps Dependencies) Module {
	openAccount := commands.OpenAccountUseCase{
		Accounts:    deps.Accounts,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Issuer:      services.Issuer{},
		BankName:    deps.BankName,
		Logger:      deps.Logger,
	}
	transfer := commands.TransferUseCase{
		Accounts:       deps.Accounts,
		Transactions:   deps.Transactions,
		Idempotency:    deps.Idempotency,
		Locker:         deps.Locker,
		Clock:          deps.Clock,
		IDGenerator:    deps.IDGenerator,
		HomeBankName:   deps.BankName,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	deposit := commands.DepositUseCase{
		Accounts:     deps.Accounts,
		Transactions: deps.Transactions,
		Locker:       deps.Locker,
		Clock:        deps.Clock,
		IDGenerator:  deps.IDGenerator,
		Logger:       deps.Logger,
	}

	handler := httpadapter.Handler{
		OpenAccount:  openAccount,
		Transfer:     transfer,
		Deposit:      deposit,
		GetDashboard: queries.GetDashboardUseCase{Accounts: deps.Accounts, Transactions: deps.Transactions},
		GetProfile:   queries.GetProfileUseCase{Accounts: deps.Accounts},
		ListTransactions: queries.ListTransactionsUseCase{
			Accounts:     deps.Accounts,
			Transactions: deps.Transactions,
		},
		Logger: deps.Logger,
	}

	return Module{
		Handler: handler,
		OutboxRelay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.OutboxBatch,
			Logger:    deps.Logger,
		},
		UserRegisteredConsumer: workers.UserRegisteredConsumer{
			Subscriber:  deps.Subscriber,
			Dedup:       deps.Dedup,
			OpenAccount: openAccount,
			Clock:       deps.Clock,
			Logger:      deps.Logger,
		},
	}
}

// NewInMemoryModule builds a development/testing module with in-memory adapters.
func NewInMemoryModule(publisher ports.EventPublisher, subscriber ports.EventSubscriber, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Accounts:       store,
		Transactions:   store,
		Idempotency:    store,
		Locker:         store,
		Outbox:         store,
		Dedup:          store,
		Publisher:      publisher,
		Subscriber:     subscriber,
		Clock:          store,
		IDGenerator:    store,
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
