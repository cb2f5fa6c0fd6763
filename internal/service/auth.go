package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

// Bucket policy for failed credentials and registrations.
const (
	failedAttemptLimit  = 5
	failedAttemptWindow = time.Minute
	registerLimit       = 5
	registerWindow      = time.Hour
)

// Auth runs registration and the two-step login.
type Auth struct {
	accounts   *Account
	sessions   *Session
	challenges *Challenge
	limiter    model.RateLimiter
	captcha    *Captcha
	logger     *logger.Logger
}

func NewAuth(
	accounts *Account,
	sessions *Session,
	challenges *Challenge,
	limiter model.RateLimiter,
	captcha *Captcha,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		accounts:   accounts,
		sessions:   sessions,
		challenges: challenges,
		limiter:    limiter,
		captcha:    captcha,
		logger:     logger,
	}
}

// Register creates an account and logs it in.
func (a *Auth) Register(ctx context.Context, p model.RegisterParams) (model.Account, model.SessionTokens, error) {
	a.logger.Debug("Auth service: registering account",
		"username", p.Username,
		"ip", p.Client.IP)

	if err := a.captcha.Check(ctx, p.Captcha, p.Client.IP); err != nil {
		return model.Account{}, model.SessionTokens{}, err
	}

	if p.Client.IP != "" {
		allowed, err := a.limiter.Consume(ctx, model.BucketRegister, p.Client.IP, registerLimit, registerWindow)
		if err != nil {
			return model.Account{}, model.SessionTokens{}, fmt.Errorf("failed to check rate limit: %w", err)
		}
		if !allowed {
			a.logger.Info("Auth service: registration rate limited", "ip", p.Client.IP)
			return model.Account{}, model.SessionTokens{}, model.ErrRateLimited
		}
	}

	account, err := a.accounts.Create(ctx, p.Username, p.DisplayName, p.Password, p.Child)
	if err != nil {
		return model.Account{}, model.SessionTokens{}, err
	}

	tokens, err := a.sessions.Issue(ctx, account.ID, p.Client)
	if err != nil {
		return model.Account{}, model.SessionTokens{}, err
	}

	return account, tokens, nil
}

// LoginPassword checks the password. Unknown logins and wrong passwords
// fail the same way and cost the same time. Accounts with a second factor
// get a challenge token instead of a session.
func (a *Auth) LoginPassword(ctx context.Context, p model.LoginParams) (model.LoginResult, error) {
	key := strings.ToLower(strings.TrimSpace(p.Login))
	if key == "" {
		return model.LoginResult{}, fmt.Errorf("login is empty: %w", model.ErrIllegalInput)
	}

	limited, err := a.limiter.Check(ctx, model.BucketFailedPassword, key)
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if limited {
		a.logger.Info("Auth service: password login rate limited", "login", key)
		return model.LoginResult{}, model.ErrRateLimited
	}

	account, err := a.accounts.GetByLogin(ctx, key)
	switch {
	case errors.Is(err, model.ErrNotFound):
		a.accounts.BurnPasswordCheck(p.Password)
		return model.LoginResult{}, a.failPassword(ctx, key)
	case err != nil:
		return model.LoginResult{}, err
	}

	if !a.accounts.VerifyPassword(account, p.Password) {
		return model.LoginResult{}, a.failPassword(ctx, key)
	}

	if account.IsLocked() {
		a.logger.Info("Auth service: login to locked account", "account_id", account.ID)
		return model.LoginResult{}, model.ErrLocked
	}

	if account.HasMFA() {
		challenge, err := a.challenges.IssueChallenge(ctx, account)
		if err != nil {
			return model.LoginResult{}, err
		}
		a.logger.Debug("Auth service: second factor required", "account_id", account.ID)
		return model.LoginResult{ChallengeToken: challenge}, nil
	}

	tokens, err := a.sessions.Issue(ctx, account.ID, p.Client)
	if err != nil {
		return model.LoginResult{}, err
	}

	return model.LoginResult{Tokens: tokens}, nil
}

// LoginTOTP finishes a login with a TOTP or recovery code.
func (a *Auth) LoginTOTP(ctx context.Context, challenge, code string, client model.ClientInfo) (model.SessionTokens, error) {
	accountID, err := a.challenges.ResolveChallenge(ctx, challenge)
	if err != nil {
		return model.SessionTokens{}, err
	}
	key := strconv.FormatInt(accountID, 10)

	limited, err := a.limiter.Check(ctx, model.BucketFailedMFA, key)
	if err != nil {
		return model.SessionTokens{}, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if limited {
		a.logger.Info("Auth service: mfa login rate limited", "account_id", accountID)
		return model.SessionTokens{}, model.ErrRateLimited
	}

	account, err := a.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.SessionTokens{}, model.ErrInvalidToken
		}
		return model.SessionTokens{}, err
	}
	if account.IsLocked() {
		return model.SessionTokens{}, model.ErrLocked
	}

	ok, err := a.accounts.VerifyTOTP(ctx, account, code)
	if err != nil {
		return model.SessionTokens{}, err
	}
	if !ok {
		allowed, err := a.limiter.Consume(ctx, model.BucketFailedMFA, key, failedAttemptLimit, failedAttemptWindow)
		if err != nil {
			return model.SessionTokens{}, fmt.Errorf("failed to record failed attempt: %w", err)
		}
		if !allowed {
			return model.SessionTokens{}, model.ErrRateLimited
		}
		return model.SessionTokens{}, model.ErrInvalidCode
	}

	if err := a.challenges.Consume(ctx, challenge); err != nil {
		return model.SessionTokens{}, err
	}

	return a.sessions.Issue(ctx, account.ID, client)
}

func (a *Auth) failPassword(ctx context.Context, key string) error {
	allowed, err := a.limiter.Consume(ctx, model.BucketFailedPassword, key, failedAttemptLimit, failedAttemptWindow)
	if err != nil {
		return fmt.Errorf("failed to record failed attempt: %w", err)
	}
	if !allowed {
		return model.ErrRateLimited
	}
	return model.ErrUnauthorized
}
