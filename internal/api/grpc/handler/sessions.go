package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

// SessionService defines operations on the caller's sessions.
type SessionService interface {
	Refresh(ctx context.Context, session model.Session, client model.ClientInfo) (model.SessionTokens, error)
	Revoke(ctx context.Context, session model.Session) error
	RevokeAllExcept(ctx context.Context, accountID, keepID int64) error
	List(ctx context.Context, accountID int64) ([]model.Session, error)
	Get(ctx context.Context, accountID, sessionID int64) (model.Session, error)
}

// Gatekeeper decides which credential a privileged operation needs.
type Gatekeeper interface {
	RequireAuthSecret(principal model.Principal) error
}

// Sessions handles session management for an authenticated caller.
type Sessions struct {
	sessionService SessionService
	gate           Gatekeeper
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewSessions creates a new Sessions handler.
func NewSessions(sessionService SessionService, gate Gatekeeper, contextManager model.ContextManager, logger *logger.Logger) *Sessions {
	return &Sessions{
		sessionService: sessionService,
		gate:           gate,
		contextManager: contextManager,
		logger:         logger,
	}
}

// SessionsServiceDesc describes the authkeeper.v1.Sessions service.
var SessionsServiceDesc = serviceDesc(SessionsServiceName,
	method(SessionsServiceName, "Current", (*Sessions).Current),
	method(SessionsServiceName, "Refresh", (*Sessions).Refresh),
	method(SessionsServiceName, "Revoke", (*Sessions).Revoke),
	method(SessionsServiceName, "List", (*Sessions).List),
	method(SessionsServiceName, "Get", (*Sessions).Get),
	method(SessionsServiceName, "RevokeByID", (*Sessions).RevokeByID),
	method(SessionsServiceName, "RevokeOthers", (*Sessions).RevokeOthers),
)

func (h *Sessions) principal(ctx context.Context) (model.Principal, error) {
	p, ok := h.contextManager.GetPrincipalFromContext(ctx)
	if !ok {
		return model.Principal{}, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return p, nil
}

// privileged returns the principal when it authenticated with the auth secret.
func (h *Sessions) privileged(ctx context.Context) (model.Principal, error) {
	p, err := h.principal(ctx)
	if err != nil {
		return model.Principal{}, err
	}
	if err := h.gate.RequireAuthSecret(p); err != nil {
		return model.Principal{}, handleError(err)
	}
	return p, nil
}

// Current describes the calling session and its account.
func (h *Sessions) Current(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.principal(ctx)
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{
		"session": sessionView(p.Session),
		"account": accountView(p.Account),
	})
}

// Refresh rotates both secrets of the calling session.
func (h *Sessions) Refresh(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.privileged(ctx)
	if err != nil {
		return nil, err
	}

	tokens, err := h.sessionService.Refresh(ctx, p.Session, h.contextManager.ClientFromContext(ctx))
	if err != nil {
		h.logger.Info("Sessions handler: refresh failed",
			"session_id", p.Session.ID,
			"error", err.Error())
		return nil, handleError(err)
	}

	return respond(map[string]any{"session": tokensView(tokens)})
}

// Revoke signs out the calling session.
func (h *Sessions) Revoke(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.privileged(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.sessionService.Revoke(ctx, p.Session); err != nil {
		h.logger.Error("Sessions handler: revoke failed",
			"session_id", p.Session.ID,
			"error", err.Error())
		return nil, handleError(err)
	}
	return empty(), nil
}

func (h *Sessions) List(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.principal(ctx)
	if err != nil {
		return nil, err
	}

	sessions, err := h.sessionService.List(ctx, p.Account.ID)
	if err != nil {
		return nil, handleError(err)
	}

	views := make([]any, len(sessions))
	for i, s := range sessions {
		view := sessionView(s)
		view["current"] = s.ID == p.Session.ID
		views[i] = view
	}
	return respond(map[string]any{"sessions": views})
}

func (h *Sessions) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.principal(ctx)
	if err != nil {
		return nil, err
	}
	sessionID, err := idField(req, "id")
	if err != nil {
		return nil, err
	}

	s, err := h.sessionService.Get(ctx, p.Account.ID, sessionID)
	if err != nil {
		return nil, handleError(err)
	}
	return respond(map[string]any{"session": sessionView(s)})
}

// RevokeByID signs out another session of the same account.
func (h *Sessions) RevokeByID(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.privileged(ctx)
	if err != nil {
		return nil, err
	}
	sessionID, err := idField(req, "id")
	if err != nil {
		return nil, err
	}

	s, err := h.sessionService.Get(ctx, p.Account.ID, sessionID)
	if err != nil {
		return nil, handleError(err)
	}
	if err := h.sessionService.Revoke(ctx, s); err != nil {
		return nil, handleError(err)
	}

	h.logger.Info("Sessions handler: session revoked",
		"account_id", p.Account.ID,
		"session_id", sessionID)
	return empty(), nil
}

// RevokeOthers signs out every session except the calling one.
func (h *Sessions) RevokeOthers(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.privileged(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.sessionService.RevokeAllExcept(ctx, p.Account.ID, p.Session.ID); err != nil {
		return nil, handleError(err)
	}
	return empty(), nil
}
