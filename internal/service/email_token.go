package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
	"github.com/dtroode/authkeeper-server/internal/token"
)

// EmailToken issues and resolves single-use email action tokens.
type EmailToken struct {
	store  model.EmailTokenStore
	logger *logger.Logger
	now    func() time.Time
}

func NewEmailToken(store model.EmailTokenStore, logger *logger.Logger) *EmailToken {
	return &EmailToken{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Issue stores a token for action bound to targetEmail and returns the
// plaintext. Earlier tokens of the same account and action stop working.
func (s *EmailToken) Issue(ctx context.Context, account model.Account, targetEmail string, action model.EmailAction, ttl time.Duration) (string, error) {
	secret, err := token.NewEmailSecret()
	if err != nil {
		return "", fmt.Errorf("failed to generate email token: %w", err)
	}

	if err := s.store.RevokeByAccountAction(ctx, account.ID, action); err != nil {
		return "", fmt.Errorf("failed to revoke previous email tokens: %w", err)
	}

	now := s.now()
	err = s.store.Create(ctx, model.EmailToken{
		ID:        uuid.NewString(),
		Digest:    token.Digest(secret),
		AccountID: account.ID,
		Email:     targetEmail,
		Action:    action,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		s.logger.Error("EmailToken service: failed to create token",
			"account_id", account.ID,
			"action", action,
			"error", err.Error())
		return "", fmt.Errorf("failed to create email token: %w", err)
	}

	s.logger.Info("EmailToken service: token issued",
		"account_id", account.ID,
		"action", action)

	return secret, nil
}

// Resolve returns the stored token. Missing, expired and revoked tokens are
// all ErrInvalidToken.
func (s *EmailToken) Resolve(ctx context.Context, secret string) (model.EmailToken, error) {
	if secret == "" {
		return model.EmailToken{}, model.ErrInvalidToken
	}

	t, err := s.store.GetByDigest(ctx, token.Digest(secret))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.EmailToken{}, model.ErrInvalidToken
		}
		return model.EmailToken{}, fmt.Errorf("failed to get email token: %w", err)
	}
	if t.Revoked || !t.ExpiresAt.After(s.now()) {
		return model.EmailToken{}, model.ErrInvalidToken
	}

	return t, nil
}

// Revoke deletes the token with digest. It is idempotent.
func (s *EmailToken) Revoke(ctx context.Context, digest []byte) error {
	if _, err := s.store.DeleteByDigest(ctx, digest); err != nil {
		return fmt.Errorf("failed to revoke email token: %w", err)
	}
	return nil
}

// claim deletes the token and reports whether this caller removed it.
func (s *EmailToken) claim(ctx context.Context, digest []byte) (bool, error) {
	deleted, err := s.store.DeleteByDigest(ctx, digest)
	if err != nil {
		return false, fmt.Errorf("failed to claim email token: %w", err)
	}
	return deleted, nil
}

// RevokeAction voids every pending token of the account for action.
func (s *EmailToken) RevokeAction(ctx context.Context, accountID int64, action model.EmailAction) error {
	if err := s.store.RevokeByAccountAction(ctx, accountID, action); err != nil {
		return fmt.Errorf("failed to revoke email tokens: %w", err)
	}
	return nil
}
