package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
	"github.com/dtroode/authkeeper-server/internal/token"
)

// Gate turns a bearer secret into a principal.
type Gate struct {
	sessions *Session
	accounts *Account
	limiter  model.RateLimiter
	logger   *logger.Logger
}

func NewGate(sessions *Session, accounts *Account, limiter model.RateLimiter, logger *logger.Logger) *Gate {
	return &Gate{
		sessions: sessions,
		accounts: accounts,
		limiter:  limiter,
		logger:   logger,
	}
}

// Authorize accepts an auth or main secret. Locked accounts are refused.
func (g *Gate) Authorize(ctx context.Context, secret string) (model.Principal, error) {
	prefix, ok := token.KindOf(secret)
	if !ok {
		return model.Principal{}, model.ErrUnauthorized
	}

	var (
		session model.Session
		kind    model.CredentialKind
		err     error
	)
	switch prefix {
	case token.AuthPrefix:
		session, err = g.sessions.LookupByAuthSecret(ctx, secret)
		kind = model.CredentialAuth
	default:
		session, err = g.sessions.LookupByMainSecret(ctx, secret)
		kind = model.CredentialMain
	}
	if err != nil {
		return model.Principal{}, err
	}

	account, err := g.accounts.Get(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Principal{}, model.ErrSessionInvalid
		}
		return model.Principal{}, err
	}
	if account.IsLocked() {
		return model.Principal{}, model.ErrLocked
	}

	return model.Principal{
		Session:    session,
		Account:    account,
		Credential: kind,
	}, nil
}

// RequireAuthSecret refuses principals that authenticated with the main
// secret.
func (g *Gate) RequireAuthSecret(principal model.Principal) error {
	if principal.Credential != model.CredentialAuth {
		return fmt.Errorf("auth secret required: %w", model.ErrUnauthorized)
	}
	return nil
}

// CheckExtraAuth accepts the current password or a TOTP/recovery code.
// Failures count against the same buckets as login.
func (g *Gate) CheckExtraAuth(ctx context.Context, account model.Account, extra model.ExtraAuth) error {
	if extra.Password == "" && extra.TOTP == "" {
		return fmt.Errorf("password or code required: %w", model.ErrUnauthorized)
	}

	if extra.Password != "" {
		ok, err := g.attempt(ctx, model.BucketFailedPassword, account.Username, func() (bool, error) {
			return g.accounts.VerifyPassword(account, extra.Password), nil
		})
		if err != nil || ok {
			return err
		}
	}

	if extra.TOTP != "" {
		ok, err := g.attempt(ctx, model.BucketFailedMFA, strconv.FormatInt(account.ID, 10), func() (bool, error) {
			return g.accounts.VerifyTOTP(ctx, account, extra.TOTP)
		})
		if err != nil || ok {
			return err
		}
	}

	return model.ErrUnauthorized
}

func (g *Gate) attempt(ctx context.Context, bucket, key string, verify func() (bool, error)) (bool, error) {
	limited, err := g.limiter.Check(ctx, bucket, key)
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if limited {
		return false, model.ErrRateLimited
	}

	ok, err := verify()
	if err != nil || ok {
		return ok, err
	}

	allowed, err := g.limiter.Consume(ctx, bucket, key, failedAttemptLimit, failedAttemptWindow)
	if err != nil {
		return false, fmt.Errorf("failed to record failed attempt: %w", err)
	}
	if !allowed {
		return false, model.ErrRateLimited
	}
	return false, nil
}
