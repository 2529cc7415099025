package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	banking "unity/contexts/finance-core/banking-service"
	bankingerrors "unity/contexts/finance-core/banking-service/domain/errors"
	bankinghttp "unity/contexts/finance-core/banking-service/transport/http"
	auth "unity/contexts/identity-access/auth-service"
	autherrors "unity/contexts/identity-access/auth-service/domain/errors"
	authhttp "unity/contexts/identity-access/auth-service/transport/http"
	_ "unity/internal/platform/httpserver/docs"

	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger"
)

const maxBodyBytes = 1 << 20

type ctxKey int

const requestIDKey ctxKey = iota

type Server struct {
	mux     *http.ServeMux
	http    *http.Server
	logger  *slog.Logger
	addr    string
	auth    auth.Module
	banking banking.Module
}

func New(authModule auth.Module, bankingModule banking.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		auth:    authModule,
		banking: bankingModule,
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed mux wrapped in request-id and access logging.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/auth/v1/signup", s.handleSignup)
	s.mux.HandleFunc("POST /api/auth/v1/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/v1/logout", s.handleLogout)

	s.mux.HandleFunc("GET /api/banking/v1/dashboard", s.authenticated(s.handleDashboard))
	s.mux.HandleFunc("GET /api/banking/v1/profile", s.authenticated(s.handleProfile))
	s.mux.HandleFunc("POST /api/banking/v1/transfers", s.authenticated(s.handleTransfer))
	s.mux.HandleFunc("GET /api/banking/v1/transactions", s.authenticated(s.handleListTransactions))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req authhttp.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.auth.Handler.SignupHandler(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	// The worker opens the account from user.registered as well; opening it
	// here keeps the first dashboard load from racing the relay.
	if _, err := s.banking.Handler.OpenAccountHandler(r.Context(), resp.UserID, resp.Name, resp.Email); err != nil {
		s.logger.Warn("inline account opening failed",
			"event", "http_signup_open_account_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"request_id", requestIDFrom(r.Context()),
			"user_id", resp.UserID,
			"error", err.Error(),
		)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authhttp.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.auth.Handler.LoginHandler(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "bearer token is required")
		return
	}
	resp, err := s.auth.Handler.LogoutHandler(r.Context(), token)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, userID string) {
	resp, err := s.banking.Handler.DashboardHandler(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, userID string) {
	resp, err := s.banking.Handler.ProfileHandler(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, userID string) {
	var req bankinghttp.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.banking.Handler.TransferHandler(
		r.Context(),
		userID,
		strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		req,
	)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	query := r.URL.Query()
	limit := 0
	if limitRaw := query.Get("limit"); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	resp, err := s.banking.Handler.ListTransactionsHandler(r.Context(), userID, query.Get("filter"), query.Get("q"), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// authenticated resolves the bearer token to a user id before calling next.
func (s *Server) authenticated(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "bearer token is required")
			return
		}
		userID, err := s.auth.Handler.AuthenticateToken(r.Context(), token)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(recorder, r.WithContext(ctx))

		s.logger.Info("http request served",
			"event", "http_request_served",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"event", "http_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"request_id", requestIDFrom(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeError(w, status, code, "internal server error")
		return
	}
	if errors.Is(err, bankingerrors.ErrAccountLocked) {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, autherrors.ErrMissingFields),
		errors.Is(err, autherrors.ErrInvalidEmail),
		errors.Is(err, autherrors.ErrPasswordTooShort),
		errors.Is(err, autherrors.ErrPasswordMismatch):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, autherrors.ErrEmailAlreadyInUse):
		return http.StatusConflict, "email_in_use"
	case errors.Is(err, autherrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, autherrors.ErrInvalidToken),
		errors.Is(err, autherrors.ErrSessionExpired),
		errors.Is(err, autherrors.ErrSessionRevoked),
		errors.Is(err, autherrors.ErrUnauthenticated),
		errors.Is(err, bankingerrors.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"

	case errors.Is(err, bankingerrors.ErrInvalidTransferRequest),
		errors.Is(err, bankingerrors.ErrInvalidAmount),
		errors.Is(err, bankingerrors.ErrSelfTransfer),
		errors.Is(err, bankingerrors.ErrInvalidAccount),
		errors.Is(err, bankingerrors.ErrInvalidDeposit):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, bankingerrors.ErrInvalidHistoryFilter):
		return http.StatusBadRequest, "invalid_filter"
	case errors.Is(err, bankingerrors.ErrAccountNotFound),
		errors.Is(err, bankingerrors.ErrTransactionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, bankingerrors.ErrIdempotencyKeyConflict):
		return http.StatusConflict, "idempotency_conflict"
	case errors.Is(err, bankingerrors.ErrDuplicateRequestID),
		errors.Is(err, bankingerrors.ErrConcurrentUpdate),
		errors.Is(err, bankingerrors.ErrAccountAlreadyOpen):
		return http.StatusConflict, "conflict"
	case errors.Is(err, bankingerrors.ErrAccountLocked):
		return http.StatusConflict, "account_busy"
	case errors.Is(err, bankingerrors.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func requestIDFrom(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, bankinghttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
