package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/authkeeper-server/internal/mocks"
	"github.com/dtroode/authkeeper-server/internal/model"
	"github.com/dtroode/authkeeper-server/internal/testutil"
)

// enrollTOTP adds an authenticator and returns its secret.
func enrollTOTP(t *testing.T, env *testEnv, a model.Account) string {
	t.Helper()
	secret, _, err := env.accounts.GenerateTOTPSecret(a)
	require.NoError(t, err)
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = env.accounts.AddTOTPAuthenticator(context.Background(), a, "phone", secret, code)
	require.NoError(t, err)
	return secret
}

// wrongCode returns a six digit code outside the accepted window.
func wrongCode(t *testing.T, secret string) string {
	t.Helper()
	valid := map[string]bool{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		c, err := totp.GenerateCode(secret, time.Now().Add(d))
		require.NoError(t, err)
		valid[c] = true
	}
	for i := 0; ; i++ {
		c := fmt.Sprintf("%06d", i)
		if !valid[c] {
			return c
		}
	}
}

func TestAuth_Register(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	a, tokens, err := env.auth.Register(ctx, model.RegisterParams{
		Username: "Alice",
		Password: "correcthorse",
		Client:   model.ClientInfo{IP: "10.0.0.1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, a.ID, tokens.Session.AccountID)

	_, _, err = env.auth.Register(ctx, model.RegisterParams{Username: "alice", Password: "x", Client: model.ClientInfo{IP: "10.0.0.1"}})
	require.ErrorIs(t, err, model.ErrUsernameTaken)
}

func TestAuth_Register_RateLimitedPerIP(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < registerLimit; i++ {
		_, _, err := env.auth.Register(ctx, model.RegisterParams{
			Username: fmt.Sprintf("user%d", i),
			Password: "pw",
			Client:   model.ClientInfo{IP: "10.0.0.9"},
		})
		require.NoError(t, err)
	}

	_, _, err := env.auth.Register(ctx, model.RegisterParams{Username: "late", Password: "pw", Client: model.ClientInfo{IP: "10.0.0.9"}})
	require.ErrorIs(t, err, model.ErrRateLimited)

	_, _, err = env.auth.Register(ctx, model.RegisterParams{Username: "late", Password: "pw", Client: model.ClientInfo{IP: "10.0.0.10"}})
	require.NoError(t, err)
}

func TestAuth_Register_Captcha(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := testutil.MakeNoopLogger()

	verifier := mocks.NewCaptchaVerifier(t)
	verifier.On("Verify", mock.Anything, "bad", "10.0.0.1").Return(false, nil)
	verifier.On("Verify", mock.Anything, "err", "10.0.0.1").Return(false, errors.New("vendor down"))

	a := NewAuth(nil, nil, nil, nil, NewCaptcha(verifier, log), log)

	_, _, err := a.Register(ctx, model.RegisterParams{Username: "x", Password: "x", Captcha: "bad", Client: model.ClientInfo{IP: "10.0.0.1"}})
	require.ErrorIs(t, err, model.ErrInvalidCaptcha)

	_, _, err = a.Register(ctx, model.RegisterParams{Username: "x", Password: "x", Captcha: "err", Client: model.ClientInfo{IP: "10.0.0.1"}})
	require.ErrorIs(t, err, model.ErrInternal)
}

func TestAuth_LoginPassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "correcthorse")
	env.setEmail(t, a.ID, "alice@example.com")

	res, err := env.auth.LoginPassword(ctx, model.LoginParams{Login: "ALICE", Password: "correcthorse"})
	require.NoError(t, err)
	assert.False(t, res.MFARequired())
	assert.Equal(t, a.ID, res.Tokens.Session.AccountID)

	res, err = env.auth.LoginPassword(ctx, model.LoginParams{Login: "alice@example.com", Password: "correcthorse"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Tokens.AuthSecret)

	_, errWrong := env.auth.LoginPassword(ctx, model.LoginParams{Login: "alice", Password: "nope"})
	_, errMissing := env.auth.LoginPassword(ctx, model.LoginParams{Login: "mallory", Password: "nope"})
	require.ErrorIs(t, errWrong, model.ErrUnauthorized)
	require.ErrorIs(t, errMissing, model.ErrUnauthorized)
	assert.Equal(t, errWrong.Error(), errMissing.Error(), "unknown login and wrong password look the same")

	_, err = env.auth.LoginPassword(ctx, model.LoginParams{Login: "  ", Password: "x"})
	require.ErrorIs(t, err, model.ErrIllegalInput)
}

func TestAuth_LoginPassword_RateLimited(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	env.createAccount(t, "alice", "correcthorse")

	for i := 0; i < failedAttemptLimit; i++ {
		_, err := env.auth.LoginPassword(ctx, model.LoginParams{Login: "alice", Password: "wrong"})
		require.ErrorIs(t, err, model.ErrUnauthorized, "attempt %d", i+1)
	}

	_, err := env.auth.LoginPassword(ctx, model.LoginParams{Login: "Alice", Password: "correcthorse"})
	require.ErrorIs(t, err, model.ErrRateLimited, "the bucket is keyed by lowercase login")
}

func TestAuth_LoginPassword_Locked(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "correcthorse")
	require.NoError(t, env.accounts.ChangeLockStatus(ctx, a.ID, model.LockBanned))

	_, err := env.auth.LoginPassword(ctx, model.LoginParams{Login: "alice", Password: "wrong"})
	require.ErrorIs(t, err, model.ErrUnauthorized, "lock status is not revealed before the password")

	_, err = env.auth.LoginPassword(ctx, model.LoginParams{Login: "alice", Password: "correcthorse"})
	require.ErrorIs(t, err, model.ErrLocked)
}

func TestAuth_LoginWithTOTP(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "correcthorse")
	secret := enrollTOTP(t, env, a)

	res, err := env.auth.LoginPassword(ctx, model.LoginParams{Login: "alice", Password: "correcthorse"})
	require.NoError(t, err)
	require.True(t, res.MFARequired())
	assert.Empty(t, res.Tokens.AuthSecret, "no session before the second factor")

	_, err = env.auth.LoginTOTP(ctx, res.ChallengeToken, wrongCode(t, secret), model.ClientInfo{})
	require.ErrorIs(t, err, model.ErrInvalidCode)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	tokens, err := env.auth.LoginTOTP(ctx, res.ChallengeToken, code, model.ClientInfo{Name: "cli"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, tokens.Session.AccountID)
	assert.Equal(t, "cli", tokens.Session.Client.Name)

	_, err = env.auth.LoginTOTP(ctx, res.ChallengeToken, code, model.ClientInfo{})
	require.ErrorIs(t, err, model.ErrInvalidToken, "a challenge finishes one login")
}

func TestAuth_LoginWithRecoveryCode(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "correcthorse")
	enrollTOTP(t, env, a)
	codes, err := env.accounts.RefreshRecoveryCodes(ctx, env.reload(t, a.ID))
	require.NoError(t, err)

	res, err := env.auth.LoginPassword(ctx, model.LoginParams{Login: "alice", Password: "correcthorse"})
	require.NoError(t, err)
	_, err = env.auth.LoginTOTP(ctx, res.ChallengeToken, codes[0], model.ClientInfo{})
	require.NoError(t, err)

	res, err = env.auth.LoginPassword(ctx, model.LoginParams{Login: "alice", Password: "correcthorse"})
	require.NoError(t, err)
	_, err = env.auth.LoginTOTP(ctx, res.ChallengeToken, codes[0], model.ClientInfo{})
	require.ErrorIs(t, err, model.ErrInvalidCode, "recovery codes are single use")
}

func TestAuth_MFAScenario_SixthAttemptRateLimited(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	a, _, err := env.auth.Register(ctx, model.RegisterParams{Username: "alice", Password: "correcthorse"})
	require.NoError(t, err)
	secret := enrollTOTP(t, env, a)

	res, err := env.auth.LoginPassword(ctx, model.LoginParams{Login: "alice", Password: "correcthorse"})
	require.NoError(t, err)
	require.True(t, res.MFARequired())

	bad := wrongCode(t, secret)
	for i := 0; i < 5; i++ {
		_, err := env.auth.LoginTOTP(ctx, res.ChallengeToken, bad, model.ClientInfo{})
		require.ErrorIs(t, err, model.ErrInvalidCode, "attempt %d", i+1)
	}

	_, err = env.auth.LoginTOTP(ctx, res.ChallengeToken, bad, model.ClientInfo{})
	require.ErrorIs(t, err, model.ErrRateLimited)

	good, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = env.auth.LoginTOTP(ctx, res.ChallengeToken, good, model.ClientInfo{})
	require.ErrorIs(t, err, model.ErrRateLimited, "even a correct code waits for the window")
}

func TestAuth_LoginTOTP_BadChallenge(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.auth.LoginTOTP(context.Background(), "not-a-token", "123456", model.ClientInfo{})
	require.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestAuth_LimiterError(t *testing.T) {
	t.Parallel()
	log := testutil.MakeNoopLogger()

	limiter := mocks.NewRateLimiter(t)
	limiter.On("Check", mock.Anything, model.BucketFailedPassword, "alice").Return(false, errors.New("sqlite busy"))

	a := NewAuth(nil, nil, nil, limiter, NewCaptcha(nil, log), log)
	_, err := a.LoginPassword(context.Background(), model.LoginParams{Login: "alice", Password: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrUnauthorized)
}
