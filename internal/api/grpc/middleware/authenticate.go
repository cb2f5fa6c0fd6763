package middleware

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

// Authorizer resolves a session secret into a principal.
type Authorizer interface {
	Authorize(ctx context.Context, secret string) (model.Principal, error)
}

// Authenticate validates bearer secrets and injects the principal into context.
type Authenticate struct {
	authorizer     Authorizer
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(authorizer Authorizer, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{authorizer: authorizer, contextManager: contextManager, logger: logger}
}

// AuthFunc reads "authorization: Bearer <secret>", authorizes it and returns
// a context carrying the principal.
func (m *Authenticate) AuthFunc(ctx context.Context) (context.Context, error) {
	secret := bearer(ctx)
	if secret == "" {
		return nil, status.Error(codes.Unauthenticated, "missing authorization token")
	}

	principal, err := m.authorizer.Authorize(ctx, secret)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrLocked):
			return nil, status.Error(codes.PermissionDenied, "account locked")
		case errors.Is(err, model.ErrUnauthorized):
			return nil, status.Error(codes.Unauthenticated, "invalid authorization token")
		default:
			m.logger.Error("Authenticate middleware: failed to authorize",
				"error", err.Error())
			return nil, status.Error(codes.Internal, "internal server error")
		}
	}

	return m.contextManager.SetPrincipalToContext(ctx, principal), nil
}

func bearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	headers := md.Get("authorization")
	if len(headers) == 0 {
		return ""
	}
	h := strings.TrimSpace(headers[0])
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[len("Bearer "):])
}
