package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultServerSelectionTimeout = 5 * time.Second

// Mongo wraps the client and the database every collection lives in.
type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
}

type Options struct {
	URI      string
	Database string
}

func Connect(ctx context.Context, opts Options) (*Mongo, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo database is required")
	}

	clientOptions := options.Client().
		ApplyURI(opts.URI).
		SetServerSelectionTimeout(defaultServerSelectionTimeout)

	connectCtx, cancel := context.WithTimeout(ctx, defaultServerSelectionTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Mongo{Client: client, Database: client.Database(opts.Database)}, nil
}

// EnsureIndexes creates the given indexes on one collection.
func (m *Mongo) EnsureIndexes(ctx context.Context, collection string, indexes ...mongo.IndexModel) error {
	if len(indexes) == 0 {
		return nil
	}
	if _, err := m.Database.Collection(collection).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create indexes on %s: %w", collection, err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}
	return m.Client.Disconnect(ctx)
}
