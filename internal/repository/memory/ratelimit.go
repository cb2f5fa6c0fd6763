package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dtroode/authkeeper-server/internal/model"
)

var _ model.RateLimiter = (*RateLimitRepository)(nil)

// RateLimitRepository implements fixed-window attempt counters.
type RateLimitRepository struct {
	db  *DB
	now func() time.Time
}

func NewRateLimitRepository(db *DB) *RateLimitRepository {
	return &RateLimitRepository{db: db, now: time.Now}
}

// Check reports whether the bucket is exhausted. It never modifies state.
func (r *RateLimitRepository) Check(ctx context.Context, bucket, identifier string) (bool, error) {
	const query = `SELECT remaining, reset_at FROM rate_limits WHERE bucket = ? AND identifier = ?`

	var remaining, resetAt int64
	err := r.db.QueryRowContext(ctx, query, bucket, identifier).Scan(&remaining, &resetAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if resetAt <= r.now().UnixMilli() {
		return false, nil
	}
	return remaining <= 0, nil
}

// Consume takes one attempt from the window, opening a fresh window of
// limit attempts when none is active.
func (r *RateLimitRepository) Consume(ctx context.Context, bucket, identifier string, limit int, ttl time.Duration) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin rate limit tx: %w", err)
	}
	defer tx.Rollback()

	now := r.now().UnixMilli()

	var remaining, resetAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT remaining, reset_at FROM rate_limits WHERE bucket = ? AND identifier = ?`,
		bucket, identifier,
	).Scan(&remaining, &resetAt)

	var allowed bool
	switch {
	case errors.Is(err, sql.ErrNoRows) || (err == nil && resetAt <= now):
		if limit <= 0 {
			return false, nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO rate_limits (bucket, identifier, remaining, reset_at) VALUES (?, ?, ?, ?)`,
			bucket, identifier, limit-1, now+ttl.Milliseconds(),
		)
		allowed = true
	case err != nil:
		return false, fmt.Errorf("failed to read rate limit: %w", err)
	case remaining > 0:
		_, err = tx.ExecContext(ctx,
			`UPDATE rate_limits SET remaining = remaining - 1 WHERE bucket = ? AND identifier = ? AND remaining > 0`,
			bucket, identifier,
		)
		allowed = true
	default:
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to write rate limit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit rate limit: %w", err)
	}
	return allowed, nil
}

// DeleteExpired removes windows whose reset time has passed.
func (r *RateLimitRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE reset_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep rate limits: %w", err)
	}
	return res.RowsAffected()
}
