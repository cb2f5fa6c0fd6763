package router

import (
	"context"
	"net/netip"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	"google.golang.org/grpc"

	"github.com/dtroode/authkeeper-server/internal/api/grpc/handler"
	"github.com/dtroode/authkeeper-server/internal/api/grpc/middleware"
	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

// Gate authorizes bearer secrets and guards privileged session calls.
type Gate interface {
	middleware.Authorizer
	handler.Gatekeeper
}

// Services are the operations exposed over gRPC.
type Services struct {
	Auth     handler.AuthService
	Sessions handler.SessionService
	Gate     Gate
	Settings handler.SettingsService
	Emails   handler.EmailService
	Admin    handler.AdminService
}

// Options tune the interceptor chain.
type Options struct {
	InternalSecret  string
	InternalAllowed []netip.Prefix
	ThrottleRPS     float64
	ThrottleBurst   int
}

// Router registers the authkeeper services and their middleware on a gRPC
// server.
type Router struct {
	services       Services
	options        Options
	contextManager model.ContextManager
	logger         *logger.Logger
}

// New creates new gRPC Router instance.
func New(services Services, options Options, contextManager model.ContextManager, logger *logger.Logger) *Router {
	return &Router{
		services:       services,
		options:        options,
		contextManager: contextManager,
		logger:         logger,
	}
}

func prefixMatch(services ...string) func(context.Context, interceptors.CallMeta) bool {
	return func(_ context.Context, c interceptors.CallMeta) bool {
		for _, s := range services {
			if strings.HasPrefix(c.FullMethod(), "/"+s+"/") {
				return true
			}
		}
		return false
	}
}

// Register builds the gRPC server. Sessions and Settings require a bearer
// session secret; Internal requires the internal key.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.logger, r.contextManager)
	throttle := middleware.NewThrottle(r.options.ThrottleRPS, r.options.ThrottleBurst, r.logger)
	authenticate := middleware.NewAuthenticate(r.services.Gate, r.contextManager, r.logger)
	guard := middleware.NewInternalGuard(r.options.InternalSecret, r.options.InternalAllowed, r.logger)

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logging.HandleGRPC,
			throttle.HandleGRPC,
			selector.UnaryServerInterceptor(
				auth.UnaryServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(prefixMatch(handler.SessionsServiceName, handler.SettingsServiceName)),
			),
			selector.UnaryServerInterceptor(
				auth.UnaryServerInterceptor(guard.AuthFunc),
				selector.MatchFunc(prefixMatch(handler.InternalServiceName)),
			),
		),
	)

	r.registerAuthRoutes(s)
	r.registerSessionRoutes(s)
	r.registerSettingsRoutes(s)
	r.registerEmailRoutes(s)
	r.registerInternalRoutes(s)

	return s
}

func (r *Router) registerAuthRoutes(server *grpc.Server) {
	server.RegisterService(&handler.AuthServiceDesc, handler.NewAuth(r.services.Auth, r.contextManager, r.logger))
}

func (r *Router) registerSessionRoutes(server *grpc.Server) {
	h := handler.NewSessions(r.services.Sessions, r.services.Gate, r.contextManager, r.logger)
	server.RegisterService(&handler.SessionsServiceDesc, h)
}

func (r *Router) registerSettingsRoutes(server *grpc.Server) {
	server.RegisterService(&handler.SettingsServiceDesc, handler.NewSettings(r.services.Settings, r.contextManager, r.logger))
}

func (r *Router) registerEmailRoutes(server *grpc.Server) {
	server.RegisterService(&handler.EmailsServiceDesc, handler.NewEmails(r.services.Emails, r.contextManager, r.logger))
}

func (r *Router) registerInternalRoutes(server *grpc.Server) {
	server.RegisterService(&handler.InternalServiceDesc, handler.NewInternal(r.services.Admin, r.logger))
}
