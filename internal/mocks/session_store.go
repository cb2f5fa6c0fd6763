package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/authkeeper-server/internal/model"
)

// SessionStore is a mock of model.SessionStore.
type SessionStore struct {
	mock.Mock
}

func NewSessionStore(t testingT) *SessionStore {
	m := &SessionStore{}
	register(&m.Mock, t)
	return m
}

func (m *SessionStore) Create(ctx context.Context, session model.Session) error {
	return errAt(m.Called(ctx, session), 0)
}

func (m *SessionStore) GetByID(ctx context.Context, id int64) (model.Session, error) {
	ret := m.Called(ctx, id)
	return ret.Get(0).(model.Session), errAt(ret, 1)
}

func (m *SessionStore) GetByAuthDigest(ctx context.Context, digest []byte) (model.Session, error) {
	ret := m.Called(ctx, digest)
	return ret.Get(0).(model.Session), errAt(ret, 1)
}

func (m *SessionStore) GetByMainDigest(ctx context.Context, digest []byte) (model.Session, error) {
	ret := m.Called(ctx, digest)
	return ret.Get(0).(model.Session), errAt(ret, 1)
}

func (m *SessionStore) ListByAccount(ctx context.Context, accountID int64) ([]model.Session, error) {
	ret := m.Called(ctx, accountID)
	sessions, _ := ret.Get(0).([]model.Session)
	return sessions, errAt(ret, 1)
}

func (m *SessionStore) Rotate(ctx context.Context, current model.Session, next model.Session) (model.Session, error) {
	ret := m.Called(ctx, current, next)
	if fn, ok := ret.Get(0).(func(context.Context, model.Session, model.Session) (model.Session, error)); ok {
		return fn(ctx, current, next)
	}
	return ret.Get(0).(model.Session), errAt(ret, 1)
}

func (m *SessionStore) Delete(ctx context.Context, id int64) (model.Session, error) {
	ret := m.Called(ctx, id)
	return ret.Get(0).(model.Session), errAt(ret, 1)
}

func (m *SessionStore) DeleteAllByAccount(ctx context.Context, accountID int64, keepID int64) ([]model.Session, error) {
	ret := m.Called(ctx, accountID, keepID)
	sessions, _ := ret.Get(0).([]model.Session)
	return sessions, errAt(ret, 1)
}
