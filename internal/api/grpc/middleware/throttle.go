package middleware

import (
	"context"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/authkeeper-server/internal/logger"
)

// Throttle caps the request rate of the whole process.
type Throttle struct {
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewThrottle allows rps requests per second with the given burst. A
// non-positive rps disables the limit.
func NewThrottle(rps float64, burst int, logger *logger.Logger) *Throttle {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttle{limiter: rate.NewLimiter(limit, burst), logger: logger}
}

// HandleGRPC rejects requests above the limit with ResourceExhausted.
func (t *Throttle) HandleGRPC(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if !t.limiter.Allow() {
		t.logger.Warn("Throttle middleware: request dropped", "method", info.FullMethod)
		return nil, status.Error(codes.ResourceExhausted, "server busy")
	}
	return handler(ctx, req)
}
