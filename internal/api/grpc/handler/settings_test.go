package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	grpccontext "github.com/dtroode/authkeeper-server/internal/api/grpc/context"
	"github.com/dtroode/authkeeper-server/internal/mocks"
	"github.com/dtroode/authkeeper-server/internal/model"
	"github.com/dtroode/authkeeper-server/internal/testutil"
)

func newSettingsHandler(t *testing.T) (*Settings, *mocks.SettingsService) {
	svc := mocks.NewSettingsService(t)
	return NewSettings(svc, grpccontext.NewManager(nil), testutil.MakeNoopLogger()), svc
}

func TestSettings_Account(t *testing.T) {
	t.Parallel()
	h, _ := newSettingsHandler(t)

	out, err := h.Account(withPrincipal(mainPrincipal), empty())
	require.NoError(t, err)
	assert.Equal(t, "1", out.Fields["account"].GetStructValue().Fields["id"].GetStringValue())

	_, err = h.Account(context.Background(), empty())
	assert.Equal(t, codes.Unauthenticated, codeOf(err))
}

func TestSettings_ChangePassword(t *testing.T) {
	t.Parallel()
	h, svc := newSettingsHandler(t)
	ctx := withPrincipal(mainPrincipal)

	svc.On("ChangePassword", mock.Anything, mainPrincipal, model.ExtraAuth{Password: "old"}, "new").Return(nil)
	svc.On("ChangePassword", mock.Anything, mainPrincipal, model.ExtraAuth{TOTP: "000000"}, "new").Return(model.ErrRateLimited)

	_, err := h.ChangePassword(ctx, mustStruct(t, map[string]any{"current_password": "old", "new_password": "new"}))
	require.NoError(t, err)

	_, err = h.ChangePassword(ctx, mustStruct(t, map[string]any{"totp": "000000", "new_password": "new"}))
	assert.Equal(t, codes.ResourceExhausted, codeOf(err))

	_, err = h.ChangePassword(ctx, mustStruct(t, map[string]any{"current_password": "old"}))
	assert.Equal(t, codes.InvalidArgument, codeOf(err))
}

func TestSettings_ChangeEmail(t *testing.T) {
	t.Parallel()
	h, svc := newSettingsHandler(t)
	ctx := withPrincipal(mainPrincipal)

	svc.On("ChangeEmail", mock.Anything, mainPrincipal, model.ExtraAuth{Password: "pw"}, "b@example.com").Return(model.ErrEmailTaken)

	_, err := h.ChangeEmail(ctx, mustStruct(t, map[string]any{"current_password": "pw", "email": "b@example.com"}))
	assert.Equal(t, codes.AlreadyExists, codeOf(err))
}

func TestSettings_Authenticators(t *testing.T) {
	t.Parallel()
	h, svc := newSettingsHandler(t)
	ctx := withPrincipal(mainPrincipal)
	extra := model.ExtraAuth{Password: "pw"}

	svc.On("NewTOTPSecret", mock.Anything, mainPrincipal).Return("SECRET", "otpauth://totp/x", nil)
	svc.On("AddAuthenticator", mock.Anything, mainPrincipal, extra, "phone", "SECRET", "123456").
		Return("auth-1", []string{"c1", "c2"}, nil)
	svc.On("RemoveAuthenticator", mock.Anything, mainPrincipal, extra, "nope").
		Return(model.ErrNotFound)
	svc.On("RefreshRecoveryCodes", mock.Anything, mainPrincipal, extra).
		Return([]string{"c3"}, nil)

	out, err := h.NewTOTPSecret(ctx, empty())
	require.NoError(t, err)
	assert.Equal(t, "SECRET", out.Fields["secret"].GetStringValue())

	out, err = h.AddAuthenticator(ctx, mustStruct(t, map[string]any{
		"current_password": "pw",
		"name":             "phone",
		"secret":           "SECRET",
		"code":             "123456",
	}))
	require.NoError(t, err)
	assert.Equal(t, "auth-1", out.Fields["id"].GetStringValue())
	assert.Len(t, out.Fields["recovery_codes"].GetListValue().GetValues(), 2)

	_, err = h.RemoveAuthenticator(ctx, mustStruct(t, map[string]any{"current_password": "pw", "id": "nope"}))
	assert.Equal(t, codes.NotFound, codeOf(err))

	out, err = h.RefreshRecoveryCodes(ctx, mustStruct(t, map[string]any{"current_password": "pw"}))
	require.NoError(t, err)
	assert.Equal(t, "c3", out.Fields["recovery_codes"].GetListValue().GetValues()[0].GetStringValue())
}
