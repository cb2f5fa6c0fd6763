package middleware

import (
	"context"
	"crypto/subtle"
	"net/netip"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	grpcctx "github.com/dtroode/authkeeper-server/internal/api/grpc/context"
	"github.com/dtroode/authkeeper-server/internal/logger"
)

const internalKeyHeader = "x-internal-key"

// InternalGuard admits callers of the internal API by source address and
// shared key.
type InternalGuard struct {
	secret  []byte
	allowed []netip.Prefix
	logger  *logger.Logger
}

// NewInternalGuard creates the guard. An empty secret refuses every call;
// an empty allowlist admits any address.
func NewInternalGuard(secret string, allowed []netip.Prefix, logger *logger.Logger) *InternalGuard {
	return &InternalGuard{secret: []byte(secret), allowed: allowed, logger: logger}
}

func (g *InternalGuard) AuthFunc(ctx context.Context) (context.Context, error) {
	if len(g.secret) == 0 {
		return nil, status.Error(codes.Unavailable, "internal api disabled")
	}

	ip, ok := grpcctx.PeerIP(ctx)
	if len(g.allowed) > 0 && (!ok || !g.admitted(ip)) {
		g.logger.Warn("InternalGuard middleware: address not allowed", "ip", ip.String())
		return nil, status.Error(codes.PermissionDenied, "address not allowed")
	}

	var key string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(internalKeyHeader); len(v) > 0 {
			key = v[0]
		}
	}
	if subtle.ConstantTimeCompare([]byte(key), g.secret) != 1 {
		g.logger.Warn("InternalGuard middleware: bad key", "ip", ip.String())
		return nil, status.Error(codes.PermissionDenied, "invalid internal key")
	}

	return ctx, nil
}

func (g *InternalGuard) admitted(ip netip.Addr) bool {
	for _, p := range g.allowed {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
