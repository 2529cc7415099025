package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	banking "unity/contexts/finance-core/banking-service"
	bankingmemory "unity/contexts/finance-core/banking-service/adapters/memory"
	bankingmongo "unity/contexts/finance-core/banking-service/adapters/mongo"
	bankingpostgres "unity/contexts/finance-core/banking-service/adapters/postgres"
	bankingredis "unity/contexts/finance-core/banking-service/adapters/redis"
	bankingports "unity/contexts/finance-core/banking-service/ports"
	auth "unity/contexts/identity-access/auth-service"
	"unity/contexts/identity-access/auth-service/adapters/identity"
	authmemory "unity/contexts/identity-access/auth-service/adapters/memory"
	authmongo "unity/contexts/identity-access/auth-service/adapters/mongo"
	authpostgres "unity/contexts/identity-access/auth-service/adapters/postgres"
	authredis "unity/contexts/identity-access/auth-service/adapters/redis"
	authports "unity/contexts/identity-access/auth-service/ports"
	"unity/internal/platform/cache"
	"unity/internal/platform/config"
	"unity/internal/platform/db"
	"unity/internal/platform/docstore"
	"unity/internal/platform/logging"
	"unity/internal/platform/messaging"

	"go.mongodb.org/mongo-driver/mongo"
)

// Runtime owns every infrastructure handle and the two service modules
// built on top of them. API, worker and CLI processes all start from here.
type Runtime struct {
	Config  config.Config
	Logger  *slog.Logger
	Auth    auth.Module
	Banking banking.Module
	Bus     *messaging.Bus

	postgres *db.Postgres
	mongo    *docstore.Mongo
	redis    *cache.Redis
	rabbit   *messaging.RabbitMQ
	syncLog  func() error
}

func NewRuntime(ctx context.Context, cfg config.Config, process string) (*Runtime, error) {
	logger, syncLog, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: cfg.ServiceName,
	})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger.With("process", process),
		Bus:     messaging.NewBus(logger),
		syncLog: syncLog,
	}
	if err := rt.connect(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := rt.buildModules(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := rt.Migrate(ctx); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *Runtime) connect(ctx context.Context) error {
	cfg := rt.Config
	var err error
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		rt.postgres, err = db.Connect(ctx, db.Options{DSN: cfg.PostgresDSN})
	case config.StorageMongo:
		rt.mongo, err = docstore.Connect(ctx, docstore.Options{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	}
	if err != nil {
		return err
	}

	if cfg.RedisAddr != "" {
		rt.redis, err = cache.Connect(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
	}

	if cfg.BrokerDriver == config.BrokerRabbitMQ {
		rt.rabbit, err = messaging.DialRabbitMQ(cfg.AMQPURL, cfg.AMQPExchange, rt.Logger)
		if err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) buildModules() error {
	cfg := rt.Config
	publisher := rt.publisher()

	authDeps := auth.Dependencies{
		Publisher:   publisher,
		Hasher:      identity.BcryptHasher{},
		Tokens:      identity.JWTIssuer{Secret: []byte(cfg.JWTSecret), Issuer: cfg.ServiceName},
		SessionTTL:  cfg.SessionTTL,
		OutboxBatch: cfg.OutboxBatchSize,
		Logger:      rt.Logger,
	}
	bankingDeps := banking.Dependencies{
		Publisher:      publisher,
		Subscriber:     rt.Bus,
		BankName:       cfg.BankName,
		IdempotencyTTL: cfg.IdempotencyTTL,
		OutboxBatch:    cfg.OutboxBatchSize,
		Logger:         rt.Logger,
	}

	var authStore *authmemory.Store
	var bankingStore *bankingmemory.Store
	switch cfg.StorageDriver {
	case config.StorageMemory:
		authStore = authmemory.NewStore()
		bankingStore = bankingmemory.NewStore()
		setAuthStorage(&authDeps, authStore, authStore)
		setBankingStorage(&bankingDeps, bankingStore)
		authDeps.Clock, authDeps.IDGenerator = authStore, authStore
		bankingDeps.Clock, bankingDeps.IDGenerator = bankingStore, bankingStore
	case config.StoragePostgres:
		authRepo := authpostgres.NewRepository(rt.postgres.DB, rt.Logger)
		setAuthStorage(&authDeps, authRepo, authRepo)
		setBankingStorage(&bankingDeps, bankingpostgres.NewRepository(rt.postgres.DB, rt.Logger))
		authDeps.Clock, authDeps.IDGenerator = authpostgres.SystemClock{}, authpostgres.UUIDGenerator{}
		bankingDeps.Clock, bankingDeps.IDGenerator = bankingpostgres.SystemClock{}, bankingpostgres.UUIDGenerator{}
	case config.StorageMongo:
		authRepo := authmongo.NewRepository(rt.mongo.Database, rt.Logger)
		setAuthStorage(&authDeps, authRepo, authRepo)
		setBankingStorage(&bankingDeps, bankingmongo.NewRepository(rt.mongo.Database, rt.Logger))
		authDeps.Clock, authDeps.IDGenerator = authpostgres.SystemClock{}, authpostgres.UUIDGenerator{}
		bankingDeps.Clock, bankingDeps.IDGenerator = bankingpostgres.SystemClock{}, bankingpostgres.UUIDGenerator{}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	if rt.redis != nil {
		authDeps.Revocations = authredis.NewSessionRevocations(rt.redis.Client)
		bankingDeps.Locker = bankingredis.NewAccountLocker(rt.redis.Locks, bankingredis.DefaultLockOptions(), rt.Logger)
	} else {
		// Process-local fallbacks; a single API replica is assumed.
		if authStore == nil {
			authStore = authmemory.NewStore()
		}
		if bankingStore == nil {
			bankingStore = bankingmemory.NewStore()
		}
		authDeps.Revocations = authStore
		bankingDeps.Locker = bankingStore
	}

	rt.Auth = auth.NewModule(authDeps)
	rt.Banking = banking.NewModule(bankingDeps)
	if cfg.StorageDriver == config.StorageMemory {
		rt.Auth.Store = authStore
		rt.Banking.Store = bankingStore
	}
	return nil
}

type bankingStorage interface {
	bankingports.AccountRepository
	bankingports.TransactionRepository
	bankingports.IdempotencyStore
	bankingports.OutboxRepository
	bankingports.EventDedupStore
}

func setBankingStorage(deps *banking.Dependencies, store bankingStorage) {
	deps.Accounts = store
	deps.Transactions = store
	deps.Idempotency = store
	deps.Outbox = store
	deps.Dedup = store
}

func setAuthStorage(deps *auth.Dependencies, credentials authports.CredentialRepository, outbox authports.OutboxRepository) {
	deps.Credentials = credentials
	deps.Outbox = outbox
}

func (rt *Runtime) publisher() messaging.Publisher {
	if rt.rabbit != nil {
		return messaging.Fanout{rt.rabbit, rt.Bus}
	}
	return rt.Bus
}

// Migrate creates tables or indexes for the configured storage driver.
func (rt *Runtime) Migrate(ctx context.Context) error {
	switch rt.Config.StorageDriver {
	case config.StoragePostgres:
		return rt.postgres.Migrate(ctx, authpostgres.Migrate, bankingpostgres.Migrate)
	case config.StorageMongo:
		for _, indexes := range []map[string][]mongo.IndexModel{authmongo.Indexes(), bankingmongo.Indexes()} {
			for collection, models := range indexes {
				if err := rt.mongo.EnsureIndexes(ctx, collection, models...); err != nil {
					return err
				}
			}
		}
	}
	rt.Logger.Info("storage migrated",
		"event", "bootstrap_storage_migrated",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"driver", rt.Config.StorageDriver,
	)
	return nil
}

func (rt *Runtime) Close() error {
	var errs []error
	if rt.rabbit != nil {
		errs = append(errs, rt.rabbit.Close())
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.mongo != nil {
		errs = append(errs, rt.mongo.Close(context.Background()))
	}
	if rt.postgres != nil {
		errs = append(errs, rt.postgres.Close())
	}
	if rt.syncLog != nil {
		_ = rt.syncLog()
	}
	return errors.Join(errs...)
}
