package handler

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dtroode/authkeeper-server/internal/logger"
)

// AdminService defines operations for trusted internal callers.
type AdminService interface {
	SendEmail(ctx context.Context, username, template string) error
	LockAccount(ctx context.Context, username string, mode int) error
	ScheduleDeletion(ctx context.Context, username string, immediate bool) (time.Time, error)
	CancelDeletion(ctx context.Context, username string) error
}

// Internal handles administrative calls from other backend services.
type Internal struct {
	adminService AdminService
	logger       *logger.Logger
}

// NewInternal creates a new Internal handler.
func NewInternal(adminService AdminService, logger *logger.Logger) *Internal {
	return &Internal{adminService: adminService, logger: logger}
}

// InternalServiceDesc describes the authkeeper.v1.Internal service.
var InternalServiceDesc = serviceDesc(InternalServiceName,
	method(InternalServiceName, "SendEmail", (*Internal).SendEmail),
	method(InternalServiceName, "LockAccount", (*Internal).LockAccount),
	method(InternalServiceName, "ScheduleDeletion", (*Internal).ScheduleDeletion),
	method(InternalServiceName, "CancelDeletion", (*Internal).CancelDeletion),
)

func (h *Internal) SendEmail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "username", "template"); err != nil {
		return nil, err
	}
	if err := h.adminService.SendEmail(ctx, str(req, "username"), str(req, "template")); err != nil {
		return nil, handleError(err)
	}
	return empty(), nil
}

// LockAccount sets the lock mode; 0 unlocks.
func (h *Internal) LockAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "username"); err != nil {
		return nil, err
	}
	mode, err := integer(req, "mode")
	if err != nil {
		return nil, err
	}

	if err := h.adminService.LockAccount(ctx, str(req, "username"), mode); err != nil {
		return nil, handleError(err)
	}

	h.logger.Info("Internal handler: lock status changed",
		"username", str(req, "username"),
		"mode", mode)
	return empty(), nil
}

func (h *Internal) ScheduleDeletion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "username"); err != nil {
		return nil, err
	}

	at, err := h.adminService.ScheduleDeletion(ctx, str(req, "username"), boolean(req, "immediate"))
	if err != nil {
		return nil, handleError(err)
	}
	return respond(map[string]any{"delete_after": formatTime(at)})
}

func (h *Internal) CancelDeletion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "username"); err != nil {
		return nil, err
	}
	if err := h.adminService.CancelDeletion(ctx, str(req, "username")); err != nil {
		return nil, handleError(err)
	}
	return empty(), nil
}
