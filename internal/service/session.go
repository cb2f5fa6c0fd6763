package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
	"github.com/dtroode/authkeeper-server/internal/token"
)

// SessionTTL bounds the two session secrets.
type SessionTTL struct {
	Auth time.Duration
	Main time.Duration
}

// Session issues, rotates and revokes sessions.
type Session struct {
	store     model.SessionStore
	publisher model.RevocationPublisher
	ids       IDGenerator
	ttl       SessionTTL
	logger    *logger.Logger
	now       func() time.Time
}

func NewSession(store model.SessionStore, publisher model.RevocationPublisher, ids IDGenerator, ttl SessionTTL, logger *logger.Logger) *Session {
	return &Session{
		store:     store,
		publisher: publisher,
		ids:       ids,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// Issue creates a session for accountID and returns its plaintext secrets.
// The secrets are not retrievable afterwards.
func (s *Session) Issue(ctx context.Context, accountID int64, client model.ClientInfo) (model.SessionTokens, error) {
	authSecret, mainSecret, err := newSecretPair()
	if err != nil {
		return model.SessionTokens{}, err
	}

	now := s.now()
	session := model.Session{
		ID:            s.ids.Next(),
		AccountID:     accountID,
		AuthDigest:    token.Digest(authSecret),
		MainDigest:    token.Digest(mainSecret),
		Client:        client,
		RefreshedAt:   now,
		MainExpiresAt: now.Add(s.ttl.Main),
		ExpiresAt:     now.Add(s.ttl.Auth),
	}

	if err := s.store.Create(ctx, session); err != nil {
		s.logger.Error("Session service: failed to create session",
			"account_id", accountID,
			"error", err.Error())
		return model.SessionTokens{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Session service: session issued",
		"account_id", accountID,
		"session_id", session.ID)

	return model.SessionTokens{
		Session:    session,
		AuthSecret: authSecret,
		MainSecret: mainSecret,
	}, nil
}

// LookupByAuthSecret returns the unexpired session owning secret.
func (s *Session) LookupByAuthSecret(ctx context.Context, secret string) (model.Session, error) {
	if prefix, ok := token.KindOf(secret); !ok || prefix != token.AuthPrefix {
		return model.Session{}, model.ErrSessionInvalid
	}

	session, err := s.store.GetByAuthDigest(ctx, token.Digest(secret))
	if err != nil {
		return model.Session{}, lookupError(err)
	}
	if !session.ValidAt(s.now()) {
		return model.Session{}, model.ErrSessionInvalid
	}
	return session, nil
}

// LookupByMainSecret returns the session whose main secret is still within
// its short lifetime.
func (s *Session) LookupByMainSecret(ctx context.Context, secret string) (model.Session, error) {
	if prefix, ok := token.KindOf(secret); !ok || prefix != token.MainPrefix {
		return model.Session{}, model.ErrSessionInvalid
	}

	session, err := s.store.GetByMainDigest(ctx, token.Digest(secret))
	if err != nil {
		return model.Session{}, lookupError(err)
	}
	if !session.MainValidAt(s.now()) {
		return model.Session{}, model.ErrSessionInvalid
	}
	return session, nil
}

// Refresh rotates both secrets of session. It fails with ErrSessionInvalid
// when the session expired or another refresh already rotated it.
func (s *Session) Refresh(ctx context.Context, session model.Session, client model.ClientInfo) (model.SessionTokens, error) {
	now := s.now()
	if !session.ValidAt(now) {
		return model.SessionTokens{}, model.ErrSessionInvalid
	}

	authSecret, mainSecret, err := newSecretPair()
	if err != nil {
		return model.SessionTokens{}, err
	}

	next := session
	next.AuthDigest = token.Digest(authSecret)
	next.MainDigest = token.Digest(mainSecret)
	next.RefreshedAt = now
	next.MainExpiresAt = now.Add(s.ttl.Main)
	next.ExpiresAt = now.Add(s.ttl.Auth)
	if client != (model.ClientInfo{}) {
		next.Client = client
	}

	rotated, err := s.store.Rotate(ctx, session, next)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Info("Session service: refresh lost to a concurrent rotation or revoke",
				"session_id", session.ID)
			return model.SessionTokens{}, model.ErrSessionInvalid
		}
		s.logger.Error("Session service: failed to rotate session",
			"session_id", session.ID,
			"error", err.Error())
		return model.SessionTokens{}, fmt.Errorf("failed to rotate session: %w", err)
	}

	s.logger.Debug("Session service: session refreshed", "session_id", session.ID)

	return model.SessionTokens{
		Session:    rotated,
		AuthSecret: authSecret,
		MainSecret: mainSecret,
	}, nil
}

// Revoke deletes the session. Revoking a missing session is not an error.
func (s *Session) Revoke(ctx context.Context, session model.Session) error {
	deleted, err := s.store.Delete(ctx, session.ID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Error("Session service: failed to delete session",
			"session_id", session.ID,
			"error", err.Error())
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	s.publish(ctx, deleted)

	s.logger.Info("Session service: session revoked",
		"account_id", deleted.AccountID,
		"session_id", deleted.ID)

	return nil
}

// RevokeAll deletes every session of the account.
func (s *Session) RevokeAll(ctx context.Context, accountID int64) error {
	return s.RevokeAllExcept(ctx, accountID, 0)
}

// RevokeAllExcept deletes every session of the account but keepID.
func (s *Session) RevokeAllExcept(ctx context.Context, accountID, keepID int64) error {
	deleted, err := s.store.DeleteAllByAccount(ctx, accountID, keepID)
	if err != nil {
		s.logger.Error("Session service: failed to delete sessions",
			"account_id", accountID,
			"error", err.Error())
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	for _, session := range deleted {
		s.publish(ctx, session)
	}

	s.logger.Info("Session service: sessions revoked",
		"account_id", accountID,
		"count", len(deleted))

	return nil
}

// List returns the live sessions of the account.
func (s *Session) List(ctx context.Context, accountID int64) ([]model.Session, error) {
	sessions, err := s.store.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Get returns a live session of the account. Sessions of other accounts
// are reported as not found.
func (s *Session) Get(ctx context.Context, accountID, sessionID int64) (model.Session, error) {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	if session.AccountID != accountID || !session.ValidAt(s.now()) {
		return model.Session{}, model.ErrNotFound
	}
	return session, nil
}

func (s *Session) publish(ctx context.Context, session model.Session) {
	err := s.publisher.PublishRevocation(ctx, model.RevocationEvent{
		SessionID: session.ID,
		AccountID: session.AccountID,
	})
	if err != nil {
		s.logger.Warn("Session service: failed to publish revocation",
			"session_id", session.ID,
			"error", err.Error())
	}
}

func newSecretPair() (string, string, error) {
	authSecret, err := token.NewSessionSecret(token.AuthPrefix)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate auth secret: %w", err)
	}
	mainSecret, err := token.NewSessionSecret(token.MainPrefix)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate main secret: %w", err)
	}
	return authSecret, mainSecret, nil
}

func lookupError(err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return model.ErrSessionInvalid
	}
	return fmt.Errorf("failed to look up session: %w", err)
}
