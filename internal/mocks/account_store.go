package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/authkeeper-server/internal/model"
)

// AccountStore is a mock of model.AccountStore.
type AccountStore struct {
	mock.Mock
}

func NewAccountStore(t testingT) *AccountStore {
	m := &AccountStore{}
	register(&m.Mock, t)
	return m
}

func (m *AccountStore) Create(ctx context.Context, account model.Account) (model.Account, error) {
	ret := m.Called(ctx, account)
	if fn, ok := ret.Get(0).(func(context.Context, model.Account) (model.Account, error)); ok {
		return fn(ctx, account)
	}
	return ret.Get(0).(model.Account), errAt(ret, 1)
}

func (m *AccountStore) GetByID(ctx context.Context, id int64) (model.Account, error) {
	ret := m.Called(ctx, id)
	return ret.Get(0).(model.Account), errAt(ret, 1)
}

func (m *AccountStore) GetByUsername(ctx context.Context, username string) (model.Account, error) {
	ret := m.Called(ctx, username)
	return ret.Get(0).(model.Account), errAt(ret, 1)
}

func (m *AccountStore) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	ret := m.Called(ctx, email)
	return ret.Get(0).(model.Account), errAt(ret, 1)
}

func (m *AccountStore) Update(ctx context.Context, account model.Account) (model.Account, error) {
	ret := m.Called(ctx, account)
	if fn, ok := ret.Get(0).(func(context.Context, model.Account) (model.Account, error)); ok {
		return fn(ctx, account)
	}
	return ret.Get(0).(model.Account), errAt(ret, 1)
}
