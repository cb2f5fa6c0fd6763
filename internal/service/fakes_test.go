package service

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dtroode/authkeeper-server/internal/model"
	"github.com/dtroode/authkeeper-server/internal/repository/memory"
	"github.com/dtroode/authkeeper-server/internal/testutil"
	"github.com/dtroode/authkeeper-server/internal/token"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) Next() int64 { return s.n.Add(1) }

func cloneAccount(a model.Account) model.Account {
	a.Authenticators = slices.Clone(a.Authenticators)
	a.RecoveryCodes = slices.Clone(a.RecoveryCodes)
	return a
}

// fakeAccounts mirrors the postgres repository: case-insensitive unique
// username and email, versioned updates.
type fakeAccounts struct {
	mu   sync.Mutex
	byID map[int64]model.Account
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[int64]model.Account{}}
}

func (f *fakeAccounts) Create(_ context.Context, a model.Account) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, other := range f.byID {
		if strings.EqualFold(other.Username, a.Username) {
			return model.Account{}, model.ErrUsernameTaken
		}
	}
	a.Version = 1
	f.byID[a.ID] = cloneAccount(a)
	return cloneAccount(a), nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id int64) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if strings.EqualFold(a.Username, username) {
			return cloneAccount(a), nil
		}
	}
	return model.Account{}, model.ErrNotFound
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email != nil && strings.EqualFold(*a.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return model.Account{}, model.ErrNotFound
}

func (f *fakeAccounts) Update(_ context.Context, a model.Account) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.byID[a.ID]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	if cur.Version != a.Version {
		return model.Account{}, model.ErrVersionConflict
	}
	if a.Email != nil {
		for id, other := range f.byID {
			if id != a.ID && other.Email != nil && strings.EqualFold(*other.Email, *a.Email) {
				return model.Account{}, model.ErrEmailTaken
			}
		}
	}
	a.Version++
	f.byID[a.ID] = cloneAccount(a)
	return cloneAccount(a), nil
}

// fakeSessions mirrors the postgres session repository.
type fakeSessions struct {
	mu   sync.Mutex
	byID map[int64]model.Session
	now  func() time.Time

	// committed runs after a create or rotate is stored, outside the lock.
	committed func(model.Session)
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: map[int64]model.Session{}, now: time.Now}
}

func (f *fakeSessions) Create(_ context.Context, s model.Session) error {
	f.mu.Lock()
	f.byID[s.ID] = s
	f.mu.Unlock()
	f.afterCommit(s)
	return nil
}

func (f *fakeSessions) afterCommit(s model.Session) {
	if f.committed != nil {
		f.committed(s)
	}
}

func (f *fakeSessions) GetByID(_ context.Context, id int64) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return model.Session{}, model.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) find(match func(model.Session) bool) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if match(s) {
			return s, nil
		}
	}
	return model.Session{}, model.ErrNotFound
}

func (f *fakeSessions) GetByAuthDigest(_ context.Context, d []byte) (model.Session, error) {
	return f.find(func(s model.Session) bool { return bytes.Equal(s.AuthDigest, d) })
}

func (f *fakeSessions) GetByMainDigest(_ context.Context, d []byte) (model.Session, error) {
	return f.find(func(s model.Session) bool { return bytes.Equal(s.MainDigest, d) })
}

func (f *fakeSessions) ListByAccount(_ context.Context, accountID int64) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, s := range f.byID {
		if s.AccountID == accountID && s.ValidAt(f.now()) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b model.Session) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *fakeSessions) Rotate(_ context.Context, current, next model.Session) (model.Session, error) {
	f.mu.Lock()
	s, ok := f.byID[current.ID]
	if !ok || !bytes.Equal(s.AuthDigest, current.AuthDigest) || !s.ValidAt(f.now()) {
		f.mu.Unlock()
		return model.Session{}, model.ErrNotFound
	}
	f.byID[next.ID] = next
	f.mu.Unlock()
	f.afterCommit(next)
	return next, nil
}

func (f *fakeSessions) Delete(_ context.Context, id int64) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return model.Session{}, model.ErrNotFound
	}
	delete(f.byID, id)
	return s, nil
}

func (f *fakeSessions) DeleteAllByAccount(_ context.Context, accountID, keepID int64) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for id, s := range f.byID {
		if s.AccountID == accountID && id != keepID {
			out = append(out, s)
			delete(f.byID, id)
		}
	}
	return out, nil
}

type fakeEmailTokens struct {
	mu       sync.Mutex
	byDigest map[string]model.EmailToken
}

func newFakeEmailTokens() *fakeEmailTokens {
	return &fakeEmailTokens{byDigest: map[string]model.EmailToken{}}
}

func (f *fakeEmailTokens) Create(_ context.Context, t model.EmailToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byDigest[string(t.Digest)] = t
	return nil
}

func (f *fakeEmailTokens) GetByDigest(_ context.Context, d []byte) (model.EmailToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byDigest[string(d)]
	if !ok {
		return model.EmailToken{}, model.ErrNotFound
	}
	return t, nil
}

func (f *fakeEmailTokens) DeleteByDigest(_ context.Context, d []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byDigest[string(d)]
	delete(f.byDigest, string(d))
	return ok, nil
}

func (f *fakeEmailTokens) RevokeByAccountAction(_ context.Context, accountID int64, action model.EmailAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, t := range f.byDigest {
		if t.AccountID == accountID && t.Action == action {
			t.Revoked = true
			f.byDigest[k] = t
		}
	}
	return nil
}

type sentMail struct {
	Email    string
	Template string
	Fields   map[string]string
	Token    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(_ context.Context, email, template string, fields map[string]string, tok string) error {
	if err := CheckTemplate(template, fields); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Email: email, Template: template, Fields: fields, Token: tok})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.RevocationEvent
}

func (p *recordingPublisher) PublishRevocation(_ context.Context, e model.RevocationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// testEnv wires every service over fakes, with the real in-memory stores
// for rate limits and challenges.
type testEnv struct {
	accountStore *fakeAccounts
	sessionStore *fakeSessions
	tokenStore   *fakeEmailTokens
	mailer       *recordingMailer
	publisher    *recordingPublisher
	limiter      *memory.RateLimitRepository

	accounts   *Account
	sessions   *Session
	challenges *Challenge
	tokens     *EmailToken
	emails     *EmailAction
	gate       *Gate
	auth       *Auth
	settings   *Settings
	admin      *Admin
}

var envSeq atomic.Int64

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := testutil.MakeNoopLogger()

	db, err := memory.Open(ctx, fmt.Sprintf("service_%d", envSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := &testEnv{
		accountStore: newFakeAccounts(),
		sessionStore: newFakeSessions(),
		tokenStore:   newFakeEmailTokens(),
		mailer:       &recordingMailer{},
		publisher:    &recordingPublisher{},
		limiter:      memory.NewRateLimitRepository(db),
	}

	ids := &seqIDs{}
	e.accounts = NewAccount(e.accountStore, newTestHasher(t), ids, log)
	e.sessions = NewSession(e.sessionStore, e.publisher, ids, SessionTTL{Auth: 91 * 24 * time.Hour, Main: time.Hour}, log)
	e.challenges = NewChallenge(memory.NewChallengeRepository(db), token.NewJWT("test-secret"), 10*time.Minute, log)
	e.tokens = NewEmailToken(e.tokenStore, log)
	e.emails = NewEmailAction(e.tokens, e.accounts, e.sessions, e.limiter, e.mailer, "https://example.test/email", log)
	e.gate = NewGate(e.sessions, e.accounts, e.limiter, log)
	e.auth = NewAuth(e.accounts, e.sessions, e.challenges, e.limiter, NewCaptcha(nil, log), log)
	e.settings = NewSettings(e.accounts, e.sessions, e.emails, e.gate, log)
	e.admin = NewAdmin(e.accounts, e.sessions, e.emails, log)

	return e
}

func (e *testEnv) createAccount(t *testing.T, username, password string) model.Account {
	t.Helper()
	a, err := e.accounts.Create(context.Background(), username, "", password, false)
	require.NoError(t, err)
	return a
}

func (e *testEnv) reload(t *testing.T, id int64) model.Account {
	t.Helper()
	a, err := e.accountStore.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (e *testEnv) setEmail(t *testing.T, id int64, email string) model.Account {
	t.Helper()
	require.NoError(t, e.accounts.UpdateEmail(context.Background(), id, &email))
	return e.reload(t, id)
}
