package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/authkeeper-server/internal/model"
)

// AuthService is a mock of handler.AuthService.
type AuthService struct {
	mock.Mock
}

func NewAuthService(t testingT) *AuthService {
	m := &AuthService{}
	register(&m.Mock, t)
	return m
}

func (m *AuthService) Register(ctx context.Context, p model.RegisterParams) (model.Account, model.SessionTokens, error) {
	ret := m.Called(ctx, p)
	return ret.Get(0).(model.Account), ret.Get(1).(model.SessionTokens), errAt(ret, 2)
}

func (m *AuthService) LoginPassword(ctx context.Context, p model.LoginParams) (model.LoginResult, error) {
	ret := m.Called(ctx, p)
	return ret.Get(0).(model.LoginResult), errAt(ret, 1)
}

func (m *AuthService) LoginTOTP(ctx context.Context, challenge, code string, client model.ClientInfo) (model.SessionTokens, error) {
	ret := m.Called(ctx, challenge, code, client)
	return ret.Get(0).(model.SessionTokens), errAt(ret, 1)
}

// SessionService is a mock of handler.SessionService.
type SessionService struct {
	mock.Mock
}

func NewSessionService(t testingT) *SessionService {
	m := &SessionService{}
	register(&m.Mock, t)
	return m
}

func (m *SessionService) Refresh(ctx context.Context, session model.Session, client model.ClientInfo) (model.SessionTokens, error) {
	ret := m.Called(ctx, session, client)
	return ret.Get(0).(model.SessionTokens), errAt(ret, 1)
}

func (m *SessionService) Revoke(ctx context.Context, session model.Session) error {
	return errAt(m.Called(ctx, session), 0)
}

func (m *SessionService) RevokeAllExcept(ctx context.Context, accountID, keepID int64) error {
	return errAt(m.Called(ctx, accountID, keepID), 0)
}

func (m *SessionService) List(ctx context.Context, accountID int64) ([]model.Session, error) {
	ret := m.Called(ctx, accountID)
	sessions, _ := ret.Get(0).([]model.Session)
	return sessions, errAt(ret, 1)
}

func (m *SessionService) Get(ctx context.Context, accountID, sessionID int64) (model.Session, error) {
	ret := m.Called(ctx, accountID, sessionID)
	return ret.Get(0).(model.Session), errAt(ret, 1)
}

// Gatekeeper is a mock of handler.Gatekeeper.
type Gatekeeper struct {
	mock.Mock
}

func NewGatekeeper(t testingT) *Gatekeeper {
	m := &Gatekeeper{}
	register(&m.Mock, t)
	return m
}

func (m *Gatekeeper) RequireAuthSecret(principal model.Principal) error {
	return errAt(m.Called(principal), 0)
}

// SettingsService is a mock of handler.SettingsService.
type SettingsService struct {
	mock.Mock
}

func NewSettingsService(t testingT) *SettingsService {
	m := &SettingsService{}
	register(&m.Mock, t)
	return m
}

func (m *SettingsService) ChangePassword(ctx context.Context, p model.Principal, extra model.ExtraAuth, newPassword string) error {
	return errAt(m.Called(ctx, p, extra, newPassword), 0)
}

func (m *SettingsService) ChangeEmail(ctx context.Context, p model.Principal, extra model.ExtraAuth, newEmail string) error {
	return errAt(m.Called(ctx, p, extra, newEmail), 0)
}

func (m *SettingsService) NewTOTPSecret(ctx context.Context, p model.Principal) (string, string, error) {
	ret := m.Called(ctx, p)
	return ret.String(0), ret.String(1), errAt(ret, 2)
}

func (m *SettingsService) AddAuthenticator(ctx context.Context, p model.Principal, extra model.ExtraAuth, name, secret, code string) (string, []string, error) {
	ret := m.Called(ctx, p, extra, name, secret, code)
	codes, _ := ret.Get(1).([]string)
	return ret.String(0), codes, errAt(ret, 2)
}

func (m *SettingsService) RemoveAuthenticator(ctx context.Context, p model.Principal, extra model.ExtraAuth, id string) error {
	return errAt(m.Called(ctx, p, extra, id), 0)
}

func (m *SettingsService) RefreshRecoveryCodes(ctx context.Context, p model.Principal, extra model.ExtraAuth) ([]string, error) {
	ret := m.Called(ctx, p, extra)
	codes, _ := ret.Get(0).([]string)
	return codes, errAt(ret, 1)
}

// EmailService is a mock of handler.EmailService.
type EmailService struct {
	mock.Mock
}

func NewEmailService(t testingT) *EmailService {
	m := &EmailService{}
	register(&m.Mock, t)
	return m
}

func (m *EmailService) Info(ctx context.Context, secret string) (model.EmailToken, error) {
	ret := m.Called(ctx, secret)
	return ret.Get(0).(model.EmailToken), errAt(ret, 1)
}

func (m *EmailService) Execute(ctx context.Context, p model.EmailExecution) (model.EmailToken, error) {
	ret := m.Called(ctx, p)
	return ret.Get(0).(model.EmailToken), errAt(ret, 1)
}

func (m *EmailService) RequestPasswordReset(ctx context.Context, email, remoteIP string) error {
	return errAt(m.Called(ctx, email, remoteIP), 0)
}

// AdminService is a mock of handler.AdminService.
type AdminService struct {
	mock.Mock
}

func NewAdminService(t testingT) *AdminService {
	m := &AdminService{}
	register(&m.Mock, t)
	return m
}

func (m *AdminService) SendEmail(ctx context.Context, username, template string) error {
	return errAt(m.Called(ctx, username, template), 0)
}

func (m *AdminService) LockAccount(ctx context.Context, username string, mode int) error {
	return errAt(m.Called(ctx, username, mode), 0)
}

func (m *AdminService) ScheduleDeletion(ctx context.Context, username string, immediate bool) (time.Time, error) {
	ret := m.Called(ctx, username, immediate)
	return ret.Get(0).(time.Time), errAt(ret, 1)
}

func (m *AdminService) CancelDeletion(ctx context.Context, username string) error {
	return errAt(m.Called(ctx, username), 0)
}

// Authorizer is a mock of middleware.Authorizer.
type Authorizer struct {
	mock.Mock
}

func NewAuthorizer(t testingT) *Authorizer {
	m := &Authorizer{}
	register(&m.Mock, t)
	return m
}

func (m *Authorizer) Authorize(ctx context.Context, secret string) (model.Principal, error) {
	ret := m.Called(ctx, secret)
	return ret.Get(0).(model.Principal), errAt(ret, 1)
}
