package httpadapter

import (
	"context"
	"log/slog"

	application "unity/contexts/identity-access/auth-service/application"
	"unity/contexts/identity-access/auth-service/application/commands"
	"unity/contexts/identity-access/auth-service/application/queries"
	httptransport "unity/contexts/identity-access/auth-service/transport/http"
)

// Handler maps HTTP DTOs to application commands/queries.
type Handler struct {
	Register      commands.RegisterUseCase
	Login         commands.LoginUseCase
	Logout        commands.LogoutUseCase
	Authenticate  queries.AuthenticateUseCase
	GetCredential queries.GetCredentialUseCase
	Logger        *slog.Logger
}

// SignupHandler godoc
// @Summary Sign up
// @Description Registers credentials, opens the bank account and returns a session token.
// @Tags auth-service
// @Accept json
// @Produce json
// @Param request body httptransport.SignupRequest true "Signup payload"
// @Success 201 {object} httptransport.SessionResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /api/auth/v1/signup [post]
func (h Handler) SignupHandler(ctx context.Context, request httptransport.SignupRequest) (httptransport.SessionResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	result, err := h.Register.Execute(ctx, commands.RegisterCommand{
		Name:            request.Name,
		Email:           request.Email,
		Password:        request.Password,
		ConfirmPassword: request.ConfirmPassword,
	})
	if err != nil {
		logger.Warn("http auth signup rejected",
			"event", "auth_http_signup_rejected",
			"module", "identity-access/auth-service",
			"layer", "transport",
			"error", err.Error(),
		)
		return httptransport.SessionResponse{}, err
	}
	return httptransport.SessionResponse{
		UserID:    result.Credential.UserID,
		Name:      result.Credential.Name,
		Email:     result.Credential.Email,
		Token:     result.Token,
		TokenType: "Bearer",
		ExpiresAt: result.Session.ExpiresAt,
	}, nil
}

// LoginHandler godoc
// @Summary Log in
// @Tags auth-service
// @Accept json
// @Produce json
// @Param request body httptransport.LoginRequest true "Login payload"
// @Success 200 {object} httptransport.SessionResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Router /api/auth/v1/login [post]
func (h Handler) LoginHandler(ctx context.Context, request httptransport.LoginRequest) (httptransport.SessionResponse, error) {
	result, err := h.Login.Execute(ctx, commands.LoginCommand{
		Email:    request.Email,
		Password: request.Password,
	})
	if err != nil {
		return httptransport.SessionResponse{}, err
	}
	return httptransport.SessionResponse{
		UserID:    result.Credential.UserID,
		Name:      result.Credential.Name,
		Email:     result.Credential.Email,
		Token:     result.Token,
		TokenType: "Bearer",
		ExpiresAt: result.Session.ExpiresAt,
	}, nil
}

// LogoutHandler godoc
// @Summary Log out
// @Tags auth-service
// @Produce json
// @Security BearerAuth
// @Success 200 {object} httptransport.LogoutResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Router /api/auth/v1/logout [post]
func (h Handler) LogoutHandler(ctx context.Context, token string) (httptransport.LogoutResponse, error) {
	if err := h.Logout.Execute(ctx, token); err != nil {
		return httptransport.LogoutResponse{}, err
	}
	return httptransport.LogoutResponse{Status: "logged_out"}, nil
}

// AuthenticateToken resolves the bearer token to a user id for the
// middleware guarding banking routes.
func (h Handler) AuthenticateToken(ctx context.Context, token string) (string, error) {
	session, err := h.Authenticate.Execute(ctx, token)
	if err != nil {
		return "", err
	}
	return session.UserID, nil
}
