package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	bankingworkers "unity/contexts/finance-core/banking-service/application/workers"
	authworkers "unity/contexts/identity-access/auth-service/application/workers"
	"unity/internal/platform/config"
	"unity/internal/platform/httpserver"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	runtime *Runtime
	server  *httpserver.Server
	// embedded runs the worker loops inside the API process when storage is
	// in-memory and no other process can see the outbox.
	embedded *WorkerApp
	logger   *slog.Logger
}

type WorkerApp struct {
	runtime        *Runtime
	authRelay      authworkers.OutboxRelay
	bankingRelay   bankingworkers.OutboxRelay
	userRegistered bankingworkers.UserRegisteredConsumer
	relayEnabled   bool
	consumeEnabled bool
	pollInterval   time.Duration
	logger         *slog.Logger
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewAPIApp(ctx, cfg)
}

func NewAPIApp(ctx context.Context, cfg config.Config) (*APIApp, error) {
	rt, err := NewRuntime(ctx, cfg, "api")
	if err != nil {
		return nil, err
	}
	app := &APIApp{
		runtime: rt,
		server:  httpserver.New(rt.Auth, rt.Banking, rt.Logger, normalizeAddr(cfg.HTTPPort)),
		logger:  rt.Logger,
	}
	if cfg.StorageDriver == config.StorageMemory {
		app.embedded = newWorkerApp(rt)
	}
	return app, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWorkerApp(ctx, cfg)
}

func NewWorkerApp(ctx context.Context, cfg config.Config) (*WorkerApp, error) {
	if cfg.StorageDriver == config.StorageMemory {
		return nil, errors.New("worker needs a shared storage driver; in-memory storage runs workers inside the api process")
	}
	rt, err := NewRuntime(ctx, cfg, "worker")
	if err != nil {
		return nil, err
	}
	return newWorkerApp(rt), nil
}

func newWorkerApp(rt *Runtime) *WorkerApp {
	interval := rt.Config.OutboxPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &WorkerApp{
		runtime:        rt,
		authRelay:      rt.Auth.OutboxRelay,
		bankingRelay:   rt.Banking.OutboxRelay,
		userRegistered: rt.Banking.UserRegisteredConsumer,
		relayEnabled:   rt.Config.EnableOutboxRelay,
		consumeEnabled: rt.Config.EnableUserRegisteredConsumer,
		pollInterval:   interval,
		logger:         rt.Logger,
	}
}

// Run serves HTTP until ctx is cancelled, then shuts the server down.
func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"storage_driver", a.runtime.Config.StorageDriver,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(a.server.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	if a.embedded != nil {
		group.Go(func() error { return a.embedded.Run(groupCtx) })
	}
	return group.Wait()
}

func (a *APIApp) Close() error {
	return a.runtime.Close()
}

// Run starts the user.registered consumer and polls both outboxes until ctx
// is cancelled.
func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"relay_enabled", w.relayEnabled,
		"consumer_enabled", w.consumeEnabled,
	)

	if w.consumeEnabled {
		if err := w.userRegistered.Start(ctx); err != nil {
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if w.relayEnabled {
		group.Go(func() error { return w.poll(groupCtx, "auth_outbox_relay", w.authRelay.RunOnce) })
		group.Go(func() error { return w.poll(groupCtx, "banking_outbox_relay", w.bankingRelay.RunOnce) })
	}
	err := group.Wait()
	w.runtime.Bus.Wait()
	return err
}

// poll runs job every interval. Job failures are logged and retried on the
// next tick; only cancellation stops the loop.
func (w *WorkerApp) poll(ctx context.Context, name string, job func(context.Context) error) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		if err := job(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("worker job failed",
				"event", "bootstrap_worker_job_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"job", name,
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	return w.runtime.Close()
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") || strings.Contains(value, ":") {
		return value
	}
	return ":" + value
}
