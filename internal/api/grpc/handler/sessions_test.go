package handler

import (
	"context"
	"errors"
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

var (
	authPrincipal = model.Principal{
		Session:    model.Session{ID: 10, AccountID: 1},
		Account:    model.Account{ID: 1, Username: "alice"},
		Credential: model.CredentialAuth,
	}
	mainPrincipal = model.Principal{
		Session:    model.Session{ID: 10, AccountID: 1},
		Account:    model.Account{ID: 1, Username: "alice"},
		Credential: model.CredentialMain,
	}
)

func newSessionsHandler(t *testing.T) (*Sessions, *mocks.SessionService, *mocks.Gatekeeper) {
	svc := mocks.NewSessionService(t)
	gate := mocks.NewGatekeeper(t)
	return NewSessions(svc, gate, grpccontext.NewManager(nil), testutil.MakeNoopLogger()), svc, gate
}

func TestSessions_RequiresPrincipal(t *testing.T) {
	t.Parallel()
	h, _, _ := newSessionsHandler(t)

	_, err := h.Current(context.Background(), empty())
	assert.Equal(t, codes.Unauthenticated, codeOf(err))
	_, err = h.Refresh(context.Background(), empty())
	assert.Equal(t, codes.Unauthenticated, codeOf(err))
}

func TestSessions_Current(t *testing.T) {
	t.Parallel()
	h, _, _ := newSessionsHandler(t)

	out, err := h.Current(withPrincipal(mainPrincipal), empty())
	require.NoError(t, err)
	assert.Equal(t, "10", out.Fields["session"].GetStructValue().Fields["id"].GetStringValue())
	assert.Equal(t, "alice", out.Fields["account"].GetStructValue().Fields["username"].GetStringValue())
}

func TestSessions_Refresh(t *testing.T) {
	t.Parallel()
	h, svc, gate := newSessionsHandler(t)

	gate.On("RequireAuthSecret", authPrincipal).Return(nil)
	gate.On("RequireAuthSecret", mainPrincipal).Return(model.ErrUnauthorized)
	svc.On("Refresh", mock.Anything, authPrincipal.Session, model.ClientInfo{}).
		Return(model.SessionTokens{Session: model.Session{ID: 10}, AuthSecret: "auth_new"}, nil)

	out, err := h.Refresh(withPrincipal(authPrincipal), empty())
	require.NoError(t, err)
	assert.Equal(t, "auth_new", out.Fields["session"].GetStructValue().Fields["auth_secret"].GetStringValue())

	_, err = h.Refresh(withPrincipal(mainPrincipal), empty())
	assert.Equal(t, codes.Unauthenticated, codeOf(err), "the main secret cannot rotate a session")
}

func TestSessions_Revoke(t *testing.T) {
	t.Parallel()
	h, svc, gate := newSessionsHandler(t)

	gate.On("RequireAuthSecret", authPrincipal).Return(nil)
	svc.On("Revoke", mock.Anything, authPrincipal.Session).Return(nil).Once()
	svc.On("Revoke", mock.Anything, authPrincipal.Session).Return(errors.New("db down")).Once()

	_, err := h.Revoke(withPrincipal(authPrincipal), empty())
	require.NoError(t, err)

	_, err = h.Revoke(withPrincipal(authPrincipal), empty())
	assert.Equal(t, codes.Internal, codeOf(err))
}

func TestSessions_List(t *testing.T) {
	t.Parallel()
	h, svc, _ := newSessionsHandler(t)

	svc.On("List", mock.Anything, int64(1)).Return([]model.Session{
		{ID: 10, Client: model.ClientInfo{Name: "cli"}},
		{ID: 11, Client: model.ClientInfo{Name: "web"}},
	}, nil)

	out, err := h.List(withPrincipal(mainPrincipal), empty())
	require.NoError(t, err)

	list := out.Fields["sessions"].GetListValue().GetValues()
	require.Len(t, list, 2)
	assert.True(t, list[0].GetStructValue().Fields["current"].GetBoolValue())
	assert.False(t, list[1].GetStructValue().Fields["current"].GetBoolValue())
	assert.Equal(t, "web", list[1].GetStructValue().Fields["client_name"].GetStringValue())
}

func TestSessions_Get(t *testing.T) {
	t.Parallel()
	h, svc, _ := newSessionsHandler(t)

	svc.On("Get", mock.Anything, int64(1), int64(11)).Return(model.Session{ID: 11}, nil)
	svc.On("Get", mock.Anything, int64(1), int64(12)).Return(model.Session{}, model.ErrNotFound)

	out, err := h.Get(withPrincipal(mainPrincipal), mustStruct(t, map[string]any{"id": "11"}))
	require.NoError(t, err)
	assert.Equal(t, "11", out.Fields["session"].GetStructValue().Fields["id"].GetStringValue())

	_, err = h.Get(withPrincipal(mainPrincipal), mustStruct(t, map[string]any{"id": "12"}))
	assert.Equal(t, codes.NotFound, codeOf(err))

	_, err = h.Get(withPrincipal(mainPrincipal), mustStruct(t, map[string]any{"id": 11}))
	assert.Equal(t, codes.InvalidArgument, codeOf(err), "numeric ids are rejected")
}

func TestSessions_RevokeByID(t *testing.T) {
	t.Parallel()
	h, svc, gate := newSessionsHandler(t)

	other := model.Session{ID: 11, AccountID: 1}
	gate.On("RequireAuthSecret", authPrincipal).Return(nil)
	svc.On("Get", mock.Anything, int64(1), int64(11)).Return(other, nil)
	svc.On("Revoke", mock.Anything, other).Return(nil)
	svc.On("Get", mock.Anything, int64(1), int64(99)).Return(model.Session{}, model.ErrNotFound)

	_, err := h.RevokeByID(withPrincipal(authPrincipal), mustStruct(t, map[string]any{"id": "11"}))
	require.NoError(t, err)

	_, err = h.RevokeByID(withPrincipal(authPrincipal), mustStruct(t, map[string]any{"id": "99"}))
	assert.Equal(t, codes.NotFound, codeOf(err), "another account's session looks missing")
}

func TestSessions_RevokeOthers(t *testing.T) {
	t.Parallel()
	h, svc, gate := newSessionsHandler(t)

	gate.On("RequireAuthSecret", authPrincipal).Return(nil)
	svc.On("RevokeAllExcept", mock.Anything, int64(1), int64(10)).Return(nil)

	_, err := h.RevokeOthers(withPrincipal(authPrincipal), empty())
	require.NoError(t, err)
}
