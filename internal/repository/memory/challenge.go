package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dtroode/authkeeper-server/internal/model"
)

var _ model.ChallengeStore = (*ChallengeRepository)(nil)

type ChallengeRepository struct {
	db  *DB
	now func() time.Time
}

func NewChallengeRepository(db *DB) *ChallengeRepository {
	return &ChallengeRepository{db: db, now: time.Now}
}

func (r *ChallengeRepository) Save(ctx context.Context, challenge model.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_challenges (id, account_id, issued_at, expires_at) VALUES (?, ?, ?, ?)`,
		challenge.ID, challenge.AccountID, challenge.IssuedAt.UnixMilli(), challenge.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	return nil
}

// Get returns ErrNotFound for absent and expired challenges alike.
func (r *ChallengeRepository) Get(ctx context.Context, id string) (model.Challenge, error) {
	var (
		c                   model.Challenge
		issuedAt, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, issued_at, expires_at FROM mfa_challenges WHERE id = ?`, id,
	).Scan(&c.ID, &c.AccountID, &issuedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Challenge{}, model.ErrNotFound
		}
		return model.Challenge{}, fmt.Errorf("failed to get challenge: %w", err)
	}
	if expiresAt <= r.now().UnixMilli() {
		return model.Challenge{}, model.ErrNotFound
	}

	c.IssuedAt = time.UnixMilli(issuedAt)
	c.ExpiresAt = time.UnixMilli(expiresAt)
	return c, nil
}

func (r *ChallengeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM mfa_challenges WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

func (r *ChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM mfa_challenges WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep challenges: %w", err)
	}
	return res.RowsAffected()
}
