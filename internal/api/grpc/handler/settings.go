package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

// SettingsService defines credential changes made by the account owner.
type SettingsService interface {
	ChangePassword(ctx context.Context, p model.Principal, extra model.ExtraAuth, newPassword string) error
	ChangeEmail(ctx context.Context, p model.Principal, extra model.ExtraAuth, newEmail string) error
	NewTOTPSecret(ctx context.Context, p model.Principal) (string, string, error)
	AddAuthenticator(ctx context.Context, p model.Principal, extra model.ExtraAuth, name, secret, code string) (string, []string, error)
	RemoveAuthenticator(ctx context.Context, p model.Principal, extra model.ExtraAuth, id string) error
	RefreshRecoveryCodes(ctx context.Context, p model.Principal, extra model.ExtraAuth) ([]string, error)
}

// Settings handles account settings. Mutations take the current password
// or a code in "current_password" / "totp".
type Settings struct {
	settingsService SettingsService
	contextManager  model.ContextManager
	logger          *logger.Logger
}

// NewSettings creates a new Settings handler.
func NewSettings(settingsService SettingsService, contextManager model.ContextManager, logger *logger.Logger) *Settings {
	return &Settings{
		settingsService: settingsService,
		contextManager:  contextManager,
		logger:          logger,
	}
}

// SettingsServiceDesc describes the authkeeper.v1.Settings service.
var SettingsServiceDesc = serviceDesc(SettingsServiceName,
	method(SettingsServiceName, "Account", (*Settings).Account),
	method(SettingsServiceName, "ChangePassword", (*Settings).ChangePassword),
	method(SettingsServiceName, "ChangeEmail", (*Settings).ChangeEmail),
	method(SettingsServiceName, "NewTOTPSecret", (*Settings).NewTOTPSecret),
	method(SettingsServiceName, "AddAuthenticator", (*Settings).AddAuthenticator),
	method(SettingsServiceName, "RemoveAuthenticator", (*Settings).RemoveAuthenticator),
	method(SettingsServiceName, "RefreshRecoveryCodes", (*Settings).RefreshRecoveryCodes),
)

func (h *Settings) principal(ctx context.Context) (model.Principal, error) {
	p, ok := h.contextManager.GetPrincipalFromContext(ctx)
	if !ok {
		return model.Principal{}, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return p, nil
}

func (h *Settings) Account(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.principal(ctx)
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{"account": accountView(p.Account)})
}

func (h *Settings) ChangePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := required(req, "new_password"); err != nil {
		return nil, err
	}

	if err := h.settingsService.ChangePassword(ctx, p, extraAuth(req), str(req, "new_password")); err != nil {
		h.logger.Info("Settings handler: password change failed",
			"account_id", p.Account.ID,
			"error", err.Error())
		return nil, handleError(err)
	}

	h.logger.Info("Settings handler: password changed", "account_id", p.Account.ID)
	return empty(), nil
}

// ChangeEmail sends a verification link to the new address.
func (h *Settings) ChangeEmail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := required(req, "email"); err != nil {
		return nil, err
	}

	if err := h.settingsService.ChangeEmail(ctx, p, extraAuth(req), str(req, "email")); err != nil {
		return nil, handleError(err)
	}
	return empty(), nil
}

func (h *Settings) NewTOTPSecret(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.principal(ctx)
	if err != nil {
		return nil, err
	}

	secret, url, err := h.settingsService.NewTOTPSecret(ctx, p)
	if err != nil {
		return nil, handleError(err)
	}
	return respond(map[string]any{"secret": secret, "url": url})
}

// AddAuthenticator enrolls a TOTP secret confirmed by a current code. The
// recovery codes are only present on the first enrollment.
func (h *Settings) AddAuthenticator(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := required(req, "name", "secret", "code"); err != nil {
		return nil, err
	}

	id, recovery, err := h.settingsService.AddAuthenticator(ctx, p, extraAuth(req), str(req, "name"), str(req, "secret"), str(req, "code"))
	if err != nil {
		return nil, handleError(err)
	}

	h.logger.Info("Settings handler: authenticator added",
		"account_id", p.Account.ID,
		"authenticator_id", id)
	return respond(map[string]any{"id": id, "recovery_codes": list(recovery)})
}

func (h *Settings) RemoveAuthenticator(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := required(req, "id"); err != nil {
		return nil, err
	}

	if err := h.settingsService.RemoveAuthenticator(ctx, p, extraAuth(req), str(req, "id")); err != nil {
		return nil, handleError(err)
	}
	return empty(), nil
}

func (h *Settings) RefreshRecoveryCodes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.principal(ctx)
	if err != nil {
		return nil, err
	}

	recovery, err := h.settingsService.RefreshRecoveryCodes(ctx, p, extraAuth(req))
	if err != nil {
		return nil, handleError(err)
	}
	return respond(map[string]any{"recovery_codes": list(recovery)})
}
