package handler

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

// AuthService defines registration and login operations.
type AuthService interface {
	Register(ctx context.Context, p model.RegisterParams) (model.Account, model.SessionTokens, error)
	LoginPassword(ctx context.Context, p model.LoginParams) (model.LoginResult, error)
	LoginTOTP(ctx context.Context, challenge, code string, client model.ClientInfo) (model.SessionTokens, error)
}

// Auth handles the unauthenticated login endpoints.
type Auth struct {
	authService    AuthService
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuth creates a new Auth handler.
func NewAuth(authService AuthService, contextManager model.ContextManager, logger *logger.Logger) *Auth {
	return &Auth{
		authService:    authService,
		contextManager: contextManager,
		logger:         logger,
	}
}

// AuthServiceDesc describes the authkeeper.v1.Auth service.
var AuthServiceDesc = serviceDesc(AuthServiceName,
	method(AuthServiceName, "Register", (*Auth).Register),
	method(AuthServiceName, "LoginPassword", (*Auth).LoginPassword),
	method(AuthServiceName, "LoginTOTP", (*Auth).LoginTOTP),
)

// Register creates an account and signs it in.
func (h *Auth) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "username", "password"); err != nil {
		return nil, err
	}
	client := h.contextManager.ClientFromContext(ctx)

	h.logger.Debug("Auth handler: processing registration request",
		"username", str(req, "username"),
		"ip", client.IP)

	account, tokens, err := h.authService.Register(ctx, model.RegisterParams{
		Username:    str(req, "username"),
		DisplayName: str(req, "display_name"),
		Password:    str(req, "password"),
		Child:       boolean(req, "child"),
		Captcha:     str(req, "captcha"),
		Client:      client,
	})
	if err != nil {
		h.logger.Info("Auth handler: registration failed",
			"username", str(req, "username"),
			"error", err.Error())
		return nil, handleError(err)
	}

	h.logger.Info("Auth handler: registration completed",
		"account_id", account.ID)

	return respond(map[string]any{
		"account": accountView(account),
		"session": tokensView(tokens),
	})
}

// LoginPassword checks a login and password. Accounts with a second factor
// get a challenge token instead of a session.
func (h *Auth) LoginPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "login", "password"); err != nil {
		return nil, err
	}

	result, err := h.authService.LoginPassword(ctx, model.LoginParams{
		Login:    str(req, "login"),
		Password: str(req, "password"),
		Client:   h.contextManager.ClientFromContext(ctx),
	})
	if err != nil {
		return nil, handleError(err)
	}

	if result.MFARequired() {
		return respond(map[string]any{
			"mfa_required": true,
			"challenge":    result.ChallengeToken,
		})
	}

	h.logger.Info("Auth handler: login completed",
		"account_id", result.Tokens.Session.AccountID,
		"session_id", result.Tokens.Session.ID)

	return respond(map[string]any{
		"mfa_required": false,
		"session":      tokensView(result.Tokens),
	})
}

// LoginTOTP finishes a login with a TOTP or recovery code.
func (h *Auth) LoginTOTP(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "challenge", "code"); err != nil {
		return nil, err
	}

	tokens, err := h.authService.LoginTOTP(ctx, str(req, "challenge"), str(req, "code"), h.contextManager.ClientFromContext(ctx))
	if err != nil {
		return nil, handleError(err)
	}

	h.logger.Info("Auth handler: second factor login completed",
		"account_id", tokens.Session.AccountID,
		"session_id", tokens.Session.ID)

	return respond(map[string]any{"session": tokensView(tokens)})
}
