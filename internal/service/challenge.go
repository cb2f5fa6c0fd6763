package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

// Challenge tracks logins that passed the password step and wait for a
// second factor.
type Challenge struct {
	store  model.ChallengeStore
	signer model.ChallengeSigner
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time
}

func NewChallenge(store model.ChallengeStore, signer model.ChallengeSigner, ttl time.Duration, logger *logger.Logger) *Challenge {
	return &Challenge{
		store:  store,
		signer: signer,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// IssueChallenge records a pending challenge for account and returns the
// signed token naming it.
func (s *Challenge) IssueChallenge(ctx context.Context, account model.Account) (string, error) {
	if !account.HasMFA() {
		return "", fmt.Errorf("account has no second factor: %w", model.ErrIllegalInput)
	}

	now := s.now()
	challenge := model.Challenge{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.store.Save(ctx, challenge); err != nil {
		s.logger.Error("Challenge service: failed to save challenge",
			"account_id", account.ID,
			"error", err.Error())
		return "", fmt.Errorf("failed to save challenge: %w", err)
	}

	signed, err := s.signer.SignChallenge(account.ID, challenge.ID, challenge.ExpiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge: %w", err)
	}

	return signed, nil
}

// ResolveChallenge returns the account a live challenge belongs to. It does
// not consume the challenge.
func (s *Challenge) ResolveChallenge(ctx context.Context, tok string) (int64, error) {
	challenge, err := s.resolve(ctx, tok)
	if err != nil {
		return 0, err
	}
	return challenge.AccountID, nil
}

// Consume deletes the challenge so the token cannot be used again.
func (s *Challenge) Consume(ctx context.Context, tok string) error {
	challenge, err := s.resolve(ctx, tok)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, challenge.ID); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

func (s *Challenge) resolve(ctx context.Context, tok string) (model.Challenge, error) {
	accountID, id, err := s.signer.ParseChallenge(tok)
	if err != nil {
		s.logger.Debug("Challenge service: rejected challenge token", "error", err.Error())
		return model.Challenge{}, model.ErrInvalidToken
	}

	challenge, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Challenge{}, model.ErrInvalidToken
		}
		return model.Challenge{}, fmt.Errorf("failed to get challenge: %w", err)
	}
	if challenge.AccountID != accountID || !challenge.ExpiresAt.After(s.now()) {
		return model.Challenge{}, model.ErrInvalidToken
	}

	return challenge, nil
}
