package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	grpcctx "github.com/dtroode/authkeeper-server/internal/api/grpc/context"
	"github.com/dtroode/authkeeper-server/internal/api/grpc/router"
	grpcServer "github.com/dtroode/authkeeper-server/internal/api/grpc/server"
	"github.com/dtroode/authkeeper-server/internal/config"
	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
	"github.com/dtroode/authkeeper-server/internal/repository/memory"
	"github.com/dtroode/authkeeper-server/internal/repository/postgres"
	"github.com/dtroode/authkeeper-server/internal/repository/redis"
	"github.com/dtroode/authkeeper-server/internal/server"
	"github.com/dtroode/authkeeper-server/internal/service"
	"github.com/dtroode/authkeeper-server/internal/snowflake"
	"github.com/dtroode/authkeeper-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel, cfg.LogFormat)

	db, err := postgres.NewConection(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("failed to connect to redis", "error", err)
	}
	defer rdb.Close()

	ephemeral, err := memory.Open(ctx, "authkeeper")
	if err != nil {
		logger.Fatal("failed to open ephemeral store", "error", err)
	}
	defer ephemeral.Close()

	ids, err := snowflake.New(cfg.NodeID)
	if err != nil {
		logger.Fatal("failed to create id generator", "error", err)
	}
	if cfg.NodeID == snowflake.AutoNode {
		node, pid := ids.Instance()
		logger.Warn("NODE_ID unset, id bits derived from host name; give each replica its own NODE_ID",
			"node", node, "pid_bits", pid)
	}
	hasher, err := service.NewPasswordHasher(service.KDFParams{
		Time:   cfg.KDF.Time,
		MemKiB: cfg.KDF.MemKiB,
		Par:    cfg.KDF.Par,
	})
	if err != nil {
		logger.Fatal("invalid password hashing parameters", "error", err)
	}

	accountRepo := postgres.NewAccountRepository(db)
	sessionCache := redis.NewSessionCache(postgres.NewSessionRepository(db), rdb, cfg.Session.MainTTL, logger)
	emailTokenRepo := postgres.NewEmailTokenRepository(db)
	rateLimits := memory.NewRateLimitRepository(ephemeral)
	challengeRepo := memory.NewChallengeRepository(ephemeral)
	publisher := redis.NewRevocationPublisher(rdb, cfg.Redis.RevocationChannel)

	accountService := service.NewAccount(accountRepo, hasher, ids, logger)
	sessionService := service.NewSession(sessionCache, publisher, ids, service.SessionTTL{
		Auth: cfg.Session.AuthTTL,
		Main: cfg.Session.MainTTL,
	}, logger)
	challengeService := service.NewChallenge(challengeRepo, token.NewJWT(cfg.JWT.Secret), cfg.MFA.ChallengeTTL, logger)
	emailTokenService := service.NewEmailToken(emailTokenRepo, logger)
	emailActionService := service.NewEmailAction(emailTokenService, accountService, sessionService, rateLimits,
		service.NewLogMailer(logger), cfg.Email.CallbackURL, logger)
	gate := service.NewGate(sessionService, accountService, rateLimits, logger)
	authService := service.NewAuth(accountService, sessionService, challengeService, rateLimits,
		service.NewCaptcha(nil, logger), logger)
	settingsService := service.NewSettings(accountService, sessionService, emailActionService, gate, logger)
	adminService := service.NewAdmin(accountService, sessionService, emailActionService, logger)

	var wg sync.WaitGroup

	sweeper := memory.NewSweeper(cfg.SweepInterval, logger.Component("sweeper"), map[string]memory.Expirer{
		"rate_limits":    rateLimits,
		"mfa_challenges": challengeRepo,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	subscriber := redis.NewRevocationSubscriber(rdb, cfg.Redis.RevocationChannel,
		func(ctx context.Context, event model.RevocationEvent) error {
			return sessionCache.Evict(ctx, event.SessionID)
		}, logger.Component("revocations"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := subscriber.Run(ctx, nil); err != nil {
			logger.Error("revocation subscriber stopped", "error", err)
		}
	}()

	ctxMgr := grpcctx.NewManager(cfg.TrustedProxies)
	r := router.New(router.Services{
		Auth:     authService,
		Sessions: sessionService,
		Gate:     gate,
		Settings: settingsService,
		Emails:   emailActionService,
		Admin:    adminService,
	}, router.Options{
		InternalSecret:  cfg.Internal.Secret,
		InternalAllowed: cfg.Internal.AllowedCIDRs,
		ThrottleRPS:     cfg.Throttle.RPS,
		ThrottleBurst:   cfg.Throttle.Burst,
	}, ctxMgr, logger)
	srv := grpcServer.NewGRPCServer(r.Register(), fmt.Sprintf(":%s", cfg.GRPC.Port))

	var sl model.ListenerFactory

	if cfg.GRPC.EnableHTTPS {
		sl = server.NewTLSListener(cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName)
	} else {
		logger.Warn("TLS disabled, session secrets travel in plaintext")
		sl = server.NewPlainListener()
	}

	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		err := s.Start(sl)
		if err != nil {
			logger.Error("failed to start server", "error", err)
			stop()
		}
	}(srv)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", srv.Address())
	}

	wg.Wait()
	emailActionService.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
