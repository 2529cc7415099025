package bootstrap

import (
	"context"
	"testing"
	"time"

	httptransport "unity/contexts/identity-access/auth-service/transport/http"
	"unity/internal/platform/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func memoryConfig() config.Config {
	cfg := config.Defaults()
	cfg.HTTPPort = "127.0.0.1:0"
	cfg.LogLevel = "error"
	cfg.OutboxPollInterval = 10 * time.Millisecond
	return cfg
}

func TestWorkerOpensAccountFromUserRegistered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rt, err := NewRuntime(ctx, memoryConfig(), "test")
	require.NoError(t, err)
	defer rt.Close()

	session, err := rt.Auth.Handler.SignupHandler(ctx, httptransport.SignupRequest{
		Name:            "Alice",
		Email:           "alice@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	require.NoError(t, err)

	worker := newWorkerApp(rt)
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := rt.Banking.Store.GetAccount(context.Background(), session.UserID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestAPIAppStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	app, err := NewAPIApp(ctx, memoryConfig())
	require.NoError(t, err)
	defer app.Close()
	require.NotNil(t, app.embedded)

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("api app did not stop")
	}
}

func TestWorkerRejectsMemoryStorage(t *testing.T) {
	_, err := NewWorkerApp(context.Background(), memoryConfig())
	require.Error(t, err)
}

func TestNormalizeAddr(t *testing.T) {
	assert.Equal(t, ":8080", normalizeAddr(""))
	assert.Equal(t, ":9090", normalizeAddr("9090"))
	assert.Equal(t, "127.0.0.1:0", normalizeAddr("127.0.0.1:0"))
}
