package model

import (
	"context"
)

// ContextManager carries request-scoped identity through a context.
type ContextManager interface {
	SetPrincipalToContext(ctx context.Context, principal Principal) context.Context
	GetPrincipalFromContext(ctx context.Context) (Principal, bool)
	ClientFromContext(ctx context.Context) ClientInfo
}
