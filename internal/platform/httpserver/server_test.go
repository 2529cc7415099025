package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	banking "unity/contexts/finance-core/banking-service"
	bankinghttp "unity/contexts/finance-core/banking-service/transport/http"
	auth "unity/contexts/identity-access/auth-service"
	authhttp "unity/contexts/identity-access/auth-service/transport/http"
)

type testEnv struct {
	server  *Server
	banking banking.Module
}

func newTestEnv() testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bankingModule := banking.NewInMemoryModule(nil, nil, logger)
	return testEnv{
		server:  New(auth.NewInMemoryModule([]byte("test-secret"), nil, logger), bankingModule, logger, ":0"),
		banking: bankingModule,
	}
}

func (e testEnv) do(t *testing.T, method string, path string, token string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func (e testEnv) signup(t *testing.T, email string) authhttp.SessionResponse {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/v1/signup", "",
		`{"name":"Alice","email":"`+email+`","password":"secret1","confirm_password":"secret1"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var session authhttp.SessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session
}

func TestSignupOpensAccountAndDashboardLoads(t *testing.T) {
	env := newTestEnv()
	session := env.signup(t, "Alice@Example.com")

	rr := env.do(t, http.MethodGet, "/api/banking/v1/dashboard", session.Token, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var dashboard bankinghttp.DashboardResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &dashboard); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dashboard.Account.Balance.Formatted != "$0.00" {
		t.Fatalf("expected zero balance, got %s", dashboard.Account.Balance.Formatted)
	}
	if dashboard.Account.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %s", dashboard.Account.Email)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id")
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv()
	env.signup(t, "bob@example.com")

	rr := env.do(t, http.MethodPost, "/api/auth/v1/signup", "",
		`{"name":"Bob","email":"bob@example.com","password":"secret1","confirm_password":"secret1"}`, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body bankinghttp.ErrorResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body.Message != "Email already in use" {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv()
	rr := env.do(t, http.MethodPost, "/api/auth/v1/signup", "",
		`{"name":"Bob","email":"bob@example.com","password":"abc","confirm_password":"abc"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestBankingRoutesRequireBearerToken(t *testing.T) {
	env := newTestEnv()
	for _, path := range []string{"/api/banking/v1/dashboard", "/api/banking/v1/profile", "/api/banking/v1/transactions"} {
		rr := env.do(t, http.MethodGet, path, "", "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
	rr := env.do(t, http.MethodGet, "/api/banking/v1/dashboard", "not-a-jwt", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rr.Code)
	}
}

func TestLoginWithWrongPassword(t *testing.T) {
	env := newTestEnv()
	env.signup(t, "carol@example.com")

	rr := env.do(t, http.MethodPost, "/api/auth/v1/login", "", `{"email":"carol@example.com","password":"wrong-pass"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/auth/v1/login", "", `{"email":"carol@example.com","password":"secret1"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv()
	session := env.signup(t, "dave@example.com")

	rr := env.do(t, http.MethodPost, "/api/auth/v1/logout", session.Token, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/api/banking/v1/dashboard", session.Token, "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rr.Code)
	}
}

func TestTransferFlow(t *testing.T) {
	env := newTestEnv()
	session := env.signup(t, "erin@example.com")
	transfer := `{"receiver_name":"Frank","receiver_account":"998877665544","receiver_transit":"54321","receiver_bank":"Other Bank","amount":"$25.50"}`

	rr := env.do(t, http.MethodPost, "/api/banking/v1/transfers", session.Token, transfer, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on empty balance, got %d body=%s", rr.Code, rr.Body.String())
	}

	if _, err := env.banking.Handler.DepositHandler(context.Background(), session.UserID, bankinghttp.DepositRequest{
		Amount:    "100.00",
		RequestID: "seed-1",
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	headers := map[string]string{"Idempotency-Key": "transfer-1"}
	rr = env.do(t, http.MethodPost, "/api/banking/v1/transfers", session.Token, transfer, headers)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var first bankinghttp.TransferResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &first)
	if first.Balance.Formatted != "$74.50" {
		t.Fatalf("expected $74.50, got %s", first.Balance.Formatted)
	}

	rr = env.do(t, http.MethodPost, "/api/banking/v1/transfers", session.Token, transfer, headers)
	var replay bankinghttp.TransferResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &replay)
	if rr.Code != http.StatusOK || !replay.Replayed || replay.Transaction.TransactionID != first.Transaction.TransactionID {
		t.Fatalf("expected replay of %s, got %d body=%s", first.Transaction.TransactionID, rr.Code, rr.Body.String())
	}

	conflicting := `{"receiver_name":"Frank","receiver_account":"998877665544","receiver_transit":"54321","receiver_bank":"Other Bank","amount":"1.00"}`
	rr = env.do(t, http.MethodPost, "/api/banking/v1/transfers", session.Token, conflicting, headers)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 idempotency conflict, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/banking/v1/transactions?filter=completed&q=frank", session.Token, "", nil)
	var history bankinghttp.ListTransactionsResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &history)
	if rr.Code != http.StatusOK || len(history.Transactions) != 1 {
		t.Fatalf("expected one matching transaction, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestTransferValidationErrors(t *testing.T) {
	env := newTestEnv()
	session := env.signup(t, "gina@example.com")

	rr := env.do(t, http.MethodPost, "/api/banking/v1/transfers", session.Token, `{"receiver_name":"Frank"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/api/banking/v1/transfers", session.Token, `{not json`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/banking/v1/transactions?filter=bogus", session.Token, "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad filter, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/banking/v1/transactions?limit=abc", session.Token, "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv()
	rr := env.do(t, http.MethodGet, "/healthz", "", "", map[string]string{"X-Request-Id": "req-1"})
	if rr.Code != http.StatusOK || rr.Header().Get("X-Request-Id") != "req-1" {
		t.Fatalf("unexpected health response %d %q", rr.Code, rr.Header().Get("X-Request-Id"))
	}
}
