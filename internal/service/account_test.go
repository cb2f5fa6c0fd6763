package service

import (
	"context"
	"errors"
	"strings"
	"sync"
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

func TestValidateUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{name: "plain", username: "alice"},
		{name: "all allowed symbols", username: "A.b-c_d e9"},
		{name: "max length", username: strings.Repeat("a", 20)},
		{name: "empty", username: "", wantErr: model.ErrIllegalInput},
		{name: "too long", username: strings.Repeat("a", 21), wantErr: model.ErrIllegalInput},
		{name: "at sign", username: "al@ce", wantErr: model.ErrIllegalCharacters},
		{name: "non ascii", username: "алиса", wantErr: model.ErrIllegalInput},
		{name: "leading space", username: " alice", wantErr: model.ErrIllegalCharacters},
		{name: "slash", username: "a/b", wantErr: model.ErrIllegalCharacters},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateUsername(tt.username)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAccount_Create(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.accounts.Create(ctx, "Alice", "", "correcthorse", false)
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, "Alice", a.DisplayName)
	require.NotNil(t, a.PasswordHash)
	assert.NotContains(t, *a.PasswordHash, "correcthorse")
	assert.NotZero(t, a.ID)

	_, err = env.accounts.Create(ctx, "ALICE", "", "other", false)
	require.ErrorIs(t, err, model.ErrUsernameTaken)
	require.ErrorIs(t, err, model.ErrConflict)

	_, err = env.accounts.Create(ctx, "bob", "", "", false)
	require.ErrorIs(t, err, model.ErrIllegalInput)

	_, err = env.accounts.Create(ctx, "b@b", "", "pw", false)
	require.ErrorIs(t, err, model.ErrIllegalCharacters)
}

func TestAccount_Create_ConcurrentSameUsername(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.accounts.Create(context.Background(), "carol", "", "pw", false)
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, model.ErrConflict)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestAccount_Create_StoreError(t *testing.T) {
	t.Parallel()

	store := mocks.NewAccountStore(t)
	store.On("Create", mock.Anything, mock.Anything).Return(model.Account{}, errors.New("db down"))

	s := NewAccount(store, newTestHasher(t), &seqIDs{}, testutil.MakeNoopLogger())
	_, err := s.Create(context.Background(), "dave", "", "pw", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create account")
}

func TestAccount_VerifyPassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	a := env.createAccount(t, "alice", "correcthorse")

	assert.True(t, env.accounts.VerifyPassword(a, "correcthorse"))
	assert.False(t, env.accounts.VerifyPassword(a, ""))
	assert.False(t, env.accounts.VerifyPassword(a, "Correcthorse"))

	a.PasswordHash = nil
	assert.False(t, env.accounts.VerifyPassword(a, "correcthorse"))
}

func TestAccount_UpdatePassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "old")

	require.NoError(t, env.accounts.UpdatePassword(ctx, a, "new"))
	a = env.reload(t, a.ID)
	assert.True(t, env.accounts.VerifyPassword(a, "new"))
	assert.False(t, env.accounts.VerifyPassword(a, "old"))

	require.ErrorIs(t, env.accounts.UpdatePassword(ctx, a, ""), model.ErrIllegalInput)
}

func TestAccount_TOTPLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")

	secret, uri, err := env.accounts.GenerateTOTPSecret(a)
	require.NoError(t, err)
	assert.Contains(t, uri, "otpauth://totp/")

	_, err = env.accounts.AddTOTPAuthenticator(ctx, a, "phone", secret, "000000")
	require.ErrorIs(t, err, model.ErrInvalidCode)
	assert.False(t, env.reload(t, a.ID).HasMFA(), "a rejected code must not write")

	_, err = env.accounts.AddTOTPAuthenticator(ctx, a, "phone", "not base32!", "123456")
	require.ErrorIs(t, err, model.ErrIllegalInput)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	id, err := env.accounts.AddTOTPAuthenticator(ctx, a, "phone", secret, code)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	a = env.reload(t, a.ID)
	require.Len(t, a.Authenticators, 1)
	assert.Equal(t, "phone", a.Authenticators[0].Name)

	ok, err := env.accounts.VerifyTOTP(ctx, a, code)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.accounts.VerifyTOTP(ctx, a, "")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := env.accounts.RemoveTOTPAuthenticator(ctx, a, "missing")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = env.accounts.RemoveTOTPAuthenticator(ctx, a, id)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, env.reload(t, a.ID).HasMFA())
}

func TestAccount_RecoveryCodes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")

	codes, err := env.accounts.RefreshRecoveryCodes(ctx, a)
	require.NoError(t, err)
	require.Len(t, codes, 8)

	a = env.reload(t, a.ID)
	for _, c := range codes {
		assert.NotContains(t, a.RecoveryCodes, c, "plaintext must not be stored")
	}

	ok, err := env.accounts.VerifyTOTP(ctx, a, strings.ToUpper(codes[0]))
	require.NoError(t, err)
	assert.True(t, ok)

	// The stale snapshot still lists the used code; the version check reloads.
	ok, err = env.accounts.VerifyTOTP(ctx, a, codes[0])
	require.NoError(t, err)
	assert.False(t, ok)

	a = env.reload(t, a.ID)
	assert.Len(t, a.RecoveryCodes, 7)

	fresh, err := env.accounts.RefreshRecoveryCodes(ctx, a)
	require.NoError(t, err)
	ok, err = env.accounts.VerifyTOTP(ctx, env.reload(t, a.ID), codes[1])
	require.NoError(t, err)
	assert.False(t, ok, "old set is replaced")
	ok, err = env.accounts.VerifyTOTP(ctx, env.reload(t, a.ID), fresh[1])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccount_RecoveryCode_ConcurrentUseWinsOnce(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")

	codes, err := env.accounts.RefreshRecoveryCodes(ctx, a)
	require.NoError(t, err)
	a = env.reload(t, a.ID)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := env.accounts.VerifyTOTP(ctx, a, codes[3])
			if err != nil {
				return
			}
			if ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestAccount_Mutate_RetriesOnConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := mocks.NewAccountStore(t)
	s := NewAccount(store, newTestHasher(t), &seqIDs{}, testutil.MakeNoopLogger())

	stale := model.Account{ID: 7, Version: 1}
	fresh := model.Account{ID: 7, Version: 2}

	store.On("Update", mock.Anything, mock.MatchedBy(func(a model.Account) bool { return a.Version == 1 })).
		Return(model.Account{}, model.ErrVersionConflict).Once()
	store.On("GetByID", mock.Anything, int64(7)).Return(fresh, nil).Once()
	store.On("Update", mock.Anything, mock.MatchedBy(func(a model.Account) bool { return a.Version == 2 && a.Locked == 2 })).
		Return(model.Account{ID: 7, Version: 3, Locked: 2}, nil).Once()

	updated, err := s.mutate(ctx, stale, func(a *model.Account) error {
		a.Locked = model.LockBanned
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Version)
}

func TestAccount_Mutate_GivesUp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := mocks.NewAccountStore(t)
	s := NewAccount(store, newTestHasher(t), &seqIDs{}, testutil.MakeNoopLogger())

	store.On("Update", mock.Anything, mock.Anything).Return(model.Account{}, model.ErrVersionConflict).Times(maxUpdateAttempts)
	store.On("GetByID", mock.Anything, int64(7)).Return(model.Account{ID: 7}, nil).Times(maxUpdateAttempts - 1)

	_, err := s.mutate(ctx, model.Account{ID: 7}, func(*model.Account) error { return nil })
	require.ErrorIs(t, err, model.ErrVersionConflict)
}

func TestAccount_ChangeLockStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")

	require.NoError(t, env.accounts.ChangeLockStatus(ctx, a.ID, model.LockRestricted))
	assert.True(t, env.reload(t, a.ID).IsLocked())

	require.NoError(t, env.accounts.ChangeLockStatus(ctx, a.ID, model.LockRestricted))
	require.NoError(t, env.accounts.ChangeLockStatus(ctx, a.ID, model.LockNone))
	assert.False(t, env.reload(t, a.ID).IsLocked())

	require.ErrorIs(t, env.accounts.ChangeLockStatus(ctx, a.ID, 3), model.ErrIllegalInput)
	require.ErrorIs(t, env.accounts.ChangeLockStatus(ctx, 999, 1), model.ErrNotFound)
}

func TestAccount_UpdateEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")
	b := env.createAccount(t, "bob", "pw")

	env.setEmail(t, a.ID, "alice@example.com")

	taken := "ALICE@example.com"
	require.ErrorIs(t, env.accounts.UpdateEmail(ctx, b.ID, &taken), model.ErrEmailTaken)

	bad := "not an email"
	require.ErrorIs(t, env.accounts.UpdateEmail(ctx, b.ID, &bad), model.ErrIllegalInput)

	require.NoError(t, env.accounts.UpdateEmail(ctx, a.ID, nil))
	assert.Empty(t, env.reload(t, a.ID).VerifiedEmail())
}

func TestAccount_GetByLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")
	env.setEmail(t, a.ID, "alice@example.com")

	got, err := env.accounts.GetByLogin(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = env.accounts.GetByLogin(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = env.accounts.GetByLogin(ctx, "nobody")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestAccount_Deletion(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createAccount(t, "alice", "pw")

	before := time.Now()
	at, err := env.accounts.ScheduleDeletion(ctx, a.ID, false)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(7*24*time.Hour), at, time.Minute)
	require.NotNil(t, env.reload(t, a.ID).DeleteAfter)

	at, err = env.accounts.ScheduleDeletion(ctx, a.ID, true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), at, time.Minute)

	require.NoError(t, env.accounts.CancelDeletion(ctx, a.ID))
	assert.Nil(t, env.reload(t, a.ID).DeleteAfter)
	require.NoError(t, env.accounts.CancelDeletion(ctx, a.ID))
}
