package model

import (
	"context"
	"time"
)

// ChallengeStore keeps pending second-factor challenges.
type ChallengeStore interface {
	Save(ctx context.Context, challenge Challenge) error
	Get(ctx context.Context, id string) (Challenge, error)
	Delete(ctx context.Context, id string) error
}

// ChallengeSigner signs and verifies MFA challenge tokens.
type ChallengeSigner interface {
	SignChallenge(accountID int64, id string, expiresAt time.Time) (string, error)
	ParseChallenge(token string) (accountID int64, id string, err error)
}

// Challenge means the password was verified and a second factor is pending.
type Challenge struct {
	ID        string
	AccountID int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}
