package mocks

import (
	"context"
	"net"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/authkeeper-server/internal/model"
)

// EmailTokenStore is a mock of model.EmailTokenStore.
type EmailTokenStore struct {
	mock.Mock
}

func NewEmailTokenStore(t testingT) *EmailTokenStore {
	m := &EmailTokenStore{}
	register(&m.Mock, t)
	return m
}

func (m *EmailTokenStore) Create(ctx context.Context, token model.EmailToken) error {
	return errAt(m.Called(ctx, token), 0)
}

func (m *EmailTokenStore) GetByDigest(ctx context.Context, digest []byte) (model.EmailToken, error) {
	ret := m.Called(ctx, digest)
	return ret.Get(0).(model.EmailToken), errAt(ret, 1)
}

func (m *EmailTokenStore) DeleteByDigest(ctx context.Context, digest []byte) (bool, error) {
	ret := m.Called(ctx, digest)
	return ret.Bool(0), errAt(ret, 1)
}

func (m *EmailTokenStore) RevokeByAccountAction(ctx context.Context, accountID int64, action model.EmailAction) error {
	return errAt(m.Called(ctx, accountID, action), 0)
}

// ChallengeStore is a mock of model.ChallengeStore.
type ChallengeStore struct {
	mock.Mock
}

func NewChallengeStore(t testingT) *ChallengeStore {
	m := &ChallengeStore{}
	register(&m.Mock, t)
	return m
}

func (m *ChallengeStore) Save(ctx context.Context, challenge model.Challenge) error {
	return errAt(m.Called(ctx, challenge), 0)
}

func (m *ChallengeStore) Get(ctx context.Context, id string) (model.Challenge, error) {
	ret := m.Called(ctx, id)
	return ret.Get(0).(model.Challenge), errAt(ret, 1)
}

func (m *ChallengeStore) Delete(ctx context.Context, id string) error {
	return errAt(m.Called(ctx, id), 0)
}

// RateLimiter is a mock of model.RateLimiter.
type RateLimiter struct {
	mock.Mock
}

func NewRateLimiter(t testingT) *RateLimiter {
	m := &RateLimiter{}
	register(&m.Mock, t)
	return m
}

func (m *RateLimiter) Check(ctx context.Context, bucket, identifier string) (bool, error) {
	ret := m.Called(ctx, bucket, identifier)
	return ret.Bool(0), errAt(ret, 1)
}

func (m *RateLimiter) Consume(ctx context.Context, bucket, identifier string, limit int, ttl time.Duration) (bool, error) {
	ret := m.Called(ctx, bucket, identifier, limit, ttl)
	return ret.Bool(0), errAt(ret, 1)
}

// RevocationPublisher is a mock of model.RevocationPublisher.
type RevocationPublisher struct {
	mock.Mock
}

func NewRevocationPublisher(t testingT) *RevocationPublisher {
	m := &RevocationPublisher{}
	register(&m.Mock, t)
	return m
}

func (m *RevocationPublisher) PublishRevocation(ctx context.Context, event model.RevocationEvent) error {
	return errAt(m.Called(ctx, event), 0)
}

// Mailer is a mock of model.Mailer.
type Mailer struct {
	mock.Mock
}

func NewMailer(t testingT) *Mailer {
	m := &Mailer{}
	register(&m.Mock, t)
	return m
}

func (m *Mailer) Send(ctx context.Context, email string, template string, fields map[string]string, token string) error {
	return errAt(m.Called(ctx, email, template, fields, token), 0)
}

// CaptchaVerifier is a mock of model.CaptchaVerifier.
type CaptchaVerifier struct {
	mock.Mock
}

func NewCaptchaVerifier(t testingT) *CaptchaVerifier {
	m := &CaptchaVerifier{}
	register(&m.Mock, t)
	return m
}

func (m *CaptchaVerifier) Verify(ctx context.Context, response, remoteIP string) (bool, error) {
	ret := m.Called(ctx, response, remoteIP)
	return ret.Bool(0), errAt(ret, 1)
}

// ContextManager is a mock of model.ContextManager.
type ContextManager struct {
	mock.Mock
}

func NewContextManager(t testingT) *ContextManager {
	m := &ContextManager{}
	register(&m.Mock, t)
	return m
}

func (m *ContextManager) SetPrincipalToContext(ctx context.Context, principal model.Principal) context.Context {
	ret := m.Called(ctx, principal)
	return ret.Get(0).(context.Context)
}

func (m *ContextManager) GetPrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	ret := m.Called(ctx)
	return ret.Get(0).(model.Principal), ret.Bool(1)
}

func (m *ContextManager) ClientFromContext(ctx context.Context) model.ClientInfo {
	ret := m.Called(ctx)
	return ret.Get(0).(model.ClientInfo)
}

// ListenerFactory is a mock of model.ListenerFactory.
type ListenerFactory struct {
	mock.Mock
}

func NewListenerFactory(t testingT) *ListenerFactory {
	m := &ListenerFactory{}
	register(&m.Mock, t)
	return m
}

func (m *ListenerFactory) Listen(protocol, addr string) (net.Listener, error) {
	ret := m.Called(protocol, addr)
	ln, _ := ret.Get(0).(net.Listener)
	return ln, errAt(ret, 1)
}
