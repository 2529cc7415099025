package auth

import (
	"log/slog"
	"time"

	httpadapter "unity/contexts/identity-access/auth-service/adapters/http"
	"unity/contexts/identity-access/auth-service/adapters/identity"
	"unity/contexts/identity-access/auth-service/adapters/memory"
	"unity/contexts/identity-access/auth-service/application/commands"
	"unity/contexts/identity-access/auth-service/application/queries"
	"unity/contexts/identity-access/auth-service/application/workers"
	"unity/contexts/identity-access/auth-service/ports"
)

// Module is the auth-service composition root exposed to runtime wiring.
type Module struct {
	Handler     httpadapter.Handler
	OutboxRelay workers.OutboxRelay
	Store       *memory.Store
}

// Dependencies captures all runtime ports/config required by NewModule.
type Dependencies struct {
	Credentials ports.CredentialRepository
	Revocations ports.SessionRevocations
	Outbox      ports.OutboxRepository
	Publisher   ports.EventPublisher
	Hasher      ports.PasswordHasher
	Tokens      ports.TokenIssuer
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	SessionTTL  time.Duration
	OutboxBatch int
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	handler := httpadapter.Handler{
		Register: commands.RegisterUseCase{
			Credentials: deps.Credentials,
			Hasher:      deps.Hasher,
			Tokens:      deps.Tokens,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			SessionTTL:  deps.SessionTTL,
			Logger:      deps.Logger,
		},
		Login: commands.LoginUseCase{
			Credentials: deps.Credentials,
			Hasher:      deps.Hasher,
			Tokens:      deps.Tokens,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			SessionTTL:  deps.SessionTTL,
			Logger:      deps.Logger,
		},
		Logout: commands.LogoutUseCase{
			Tokens:      deps.Tokens,
			Revocations: deps.Revocations,
			Logger:      deps.Logger,
		},
		Authenticate: queries.AuthenticateUseCase{
			Tokens:      deps.Tokens,
			Revocations: deps.Revocations,
		},
		GetCredential: queries.GetCredentialUseCase{Credentials: deps.Credentials},
		Logger:        deps.Logger,
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
	}
}

// NewInMemoryModule builds a development/testing module with in-memory
// adapters and a bcrypt/JWT identity provider keyed by secret.
func NewInMemoryModule(secret []byte, publisher ports.EventPublisher, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Credentials: store,
		Revocations: store,
		Outbox:      store,
		Publisher:   publisher,
		Hasher:      identity.BcryptHasher{},
		Tokens:      identity.JWTIssuer{Secret: secret},
		Clock:       store,
		IDGenerator: store,
		SessionTTL:  24 * time.Hour,
		Logger:      logger,
	})
	module.Store = store
	return module
}
