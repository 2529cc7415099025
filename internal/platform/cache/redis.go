package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// Redis wraps the shared client and the distributed lock factory built on it.
type Redis struct {
	Client *goredislib.Client
	Locks  *redsync.Redsync
}

type Options struct {
	Addr     string
	Password string
	DB       int
}

func Connect(ctx context.Context, opts Options) (*Redis, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := goredislib.NewClient(&goredislib.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewFromClient(client), nil
}

func NewFromClient(client *goredislib.Client) *Redis {
	return &Redis{
		Client: client,
		Locks:  redsync.New(goredis.NewPool(client)),
	}
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
