package handler

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/authkeeper-server/internal/model"
)

// handleError maps domain errors to gRPC statuses. Credential failures get
// fixed messages so callers learn nothing about which check failed.
func handleError(err error) error {
	if st, ok := status.FromError(err); ok {
		return st.Err()
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, model.ErrInvalidCode):
		return status.Error(codes.Unauthenticated, "invalid code")
	case errors.Is(err, model.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "invalid or expired token")
	case errors.Is(err, model.ErrSessionInvalid):
		return status.Error(codes.Unauthenticated, "invalid session")
	case errors.Is(err, model.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, model.ErrExpired):
		return status.Error(codes.Unauthenticated, "expired")
	case errors.Is(err, model.ErrLocked):
		return status.Error(codes.PermissionDenied, "account locked")
	case errors.Is(err, model.ErrUsernameTaken):
		return status.Error(codes.AlreadyExists, "username already taken")
	case errors.Is(err, model.ErrEmailTaken):
		return status.Error(codes.AlreadyExists, "email already taken")
	case errors.Is(err, model.ErrConflict):
		return status.Error(codes.Aborted, "concurrent modification, retry")
	case errors.Is(err, model.ErrInvalidCaptcha):
		return status.Error(codes.InvalidArgument, "invalid captcha")
	case errors.Is(err, model.ErrIllegalInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, model.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "too many attempts, try again later")
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}
