package handler

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

// EmailService defines the email action token endpoints.
type EmailService interface {
	Info(ctx context.Context, secret string) (model.EmailToken, error)
	Execute(ctx context.Context, p model.EmailExecution) (model.EmailToken, error)
	RequestPasswordReset(ctx context.Context, email, remoteIP string) error
}

// Emails handles the links sent by email. The token is the credential.
type Emails struct {
	emailService   EmailService
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewEmails creates a new Emails handler.
func NewEmails(emailService EmailService, contextManager model.ContextManager, logger *logger.Logger) *Emails {
	return &Emails{
		emailService:   emailService,
		contextManager: contextManager,
		logger:         logger,
	}
}

// EmailsServiceDesc describes the authkeeper.v1.Emails service.
var EmailsServiceDesc = serviceDesc(EmailsServiceName,
	method(EmailsServiceName, "Info", (*Emails).Info),
	method(EmailsServiceName, "Execute", (*Emails).Execute),
	method(EmailsServiceName, "RequestPasswordReset", (*Emails).RequestPasswordReset),
)

// Info tells the client which action a token performs.
func (h *Emails) Info(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "token"); err != nil {
		return nil, err
	}

	tok, err := h.emailService.Info(ctx, str(req, "token"))
	if err != nil {
		return nil, handleError(err)
	}
	return respond(map[string]any{
		"action":     string(tok.Action),
		"email":      tok.Email,
		"expires_at": formatTime(tok.ExpiresAt),
	})
}

// Execute consumes a token and applies its action.
func (h *Emails) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "token"); err != nil {
		return nil, err
	}
	lockMode, err := integer(req, "lock_mode")
	if err != nil {
		return nil, err
	}

	tok, err := h.emailService.Execute(ctx, model.EmailExecution{
		Token:    str(req, "token"),
		Password: str(req, "password"),
		LockMode: lockMode,
	})
	if err != nil {
		h.logger.Info("Emails handler: execute failed", "error", err.Error())
		return nil, handleError(err)
	}

	h.logger.Info("Emails handler: action executed",
		"account_id", tok.AccountID,
		"action", string(tok.Action))
	return respond(map[string]any{"action": string(tok.Action)})
}

// RequestPasswordReset answers the same way whether or not the address
// belongs to an account.
func (h *Emails) RequestPasswordReset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "email"); err != nil {
		return nil, err
	}

	client := h.contextManager.ClientFromContext(ctx)
	if err := h.emailService.RequestPasswordReset(ctx, str(req, "email"), client.IP); err != nil {
		return nil, handleError(err)
	}
	return empty(), nil
}
