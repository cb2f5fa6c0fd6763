package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/authkeeper-server/internal/model"
)

func TestGate_Authorize(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")

	tokens, err := env.sessions.Issue(ctx, a.ID, model.ClientInfo{})
	require.NoError(t, err)

	p, err := env.gate.Authorize(ctx, tokens.AuthSecret)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialAuth, p.Credential)
	assert.Equal(t, a.ID, p.Account.ID)
	assert.Equal(t, tokens.Session.ID, p.Session.ID)
	require.NoError(t, env.gate.RequireAuthSecret(p))

	p, err = env.gate.Authorize(ctx, tokens.MainSecret)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialMain, p.Credential)
	require.ErrorIs(t, env.gate.RequireAuthSecret(p), model.ErrUnauthorized)

	for _, bad := range []string{"", "garbage", "auth_", "main_nope", "Bearer " + tokens.AuthSecret} {
		_, err := env.gate.Authorize(ctx, bad)
		require.ErrorIs(t, err, model.ErrUnauthorized, bad)
	}
}

func TestGate_Authorize_Locked(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")

	tokens, err := env.sessions.Issue(ctx, a.ID, model.ClientInfo{})
	require.NoError(t, err)
	require.NoError(t, env.accounts.ChangeLockStatus(ctx, a.ID, model.LockRestricted))

	_, err = env.gate.Authorize(ctx, tokens.AuthSecret)
	require.ErrorIs(t, err, model.ErrLocked)

	require.NoError(t, env.accounts.ChangeLockStatus(ctx, a.ID, model.LockNone))
	_, err = env.gate.Authorize(ctx, tokens.AuthSecret)
	require.NoError(t, err)
}

func TestGate_Authorize_AfterRevoke(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")

	tokens, err := env.sessions.Issue(ctx, a.ID, model.ClientInfo{})
	require.NoError(t, err)
	require.NoError(t, env.sessions.Revoke(ctx, tokens.Session))

	_, err = env.gate.Authorize(ctx, tokens.AuthSecret)
	require.ErrorIs(t, err, model.ErrSessionInvalid)
	_, err = env.gate.Authorize(ctx, tokens.MainSecret)
	require.ErrorIs(t, err, model.ErrSessionInvalid)
}

func TestGate_CheckExtraAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")
	secret := enrollTOTP(t, env, a)
	a = env.reload(t, a.ID)

	require.NoError(t, env.gate.CheckExtraAuth(ctx, a, model.ExtraAuth{Password: "pw"}))

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, env.gate.CheckExtraAuth(ctx, a, model.ExtraAuth{TOTP: code}))
	require.NoError(t, env.gate.CheckExtraAuth(ctx, a, model.ExtraAuth{Password: "wrong", TOTP: code}))

	require.ErrorIs(t, env.gate.CheckExtraAuth(ctx, a, model.ExtraAuth{}), model.ErrUnauthorized)
	require.ErrorIs(t, env.gate.CheckExtraAuth(ctx, a, model.ExtraAuth{Password: "wrong"}), model.ErrUnauthorized)
}

func TestGate_CheckExtraAuth_RateLimited(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")

	for i := 0; i < failedAttemptLimit; i++ {
		require.ErrorIs(t, env.gate.CheckExtraAuth(ctx, a, model.ExtraAuth{Password: "wrong"}), model.ErrUnauthorized)
	}
	require.ErrorIs(t, env.gate.CheckExtraAuth(ctx, a, model.ExtraAuth{Password: "pw"}), model.ErrRateLimited)
}
