package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/authkeeper-server/internal/model"
)

var _ model.EmailTokenStore = (*EmailTokenRepository)(nil)

type EmailTokenRepository struct {
	db *Connection
}

func NewEmailTokenRepository(db *Connection) *EmailTokenRepository {
	return &EmailTokenRepository{db: db}
}

func (r *EmailTokenRepository) Create(ctx context.Context, token model.EmailToken) error {
	const query = `
        INSERT INTO email_tokens (id, digest, account_id, email, action, expires_at, revoked, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,FALSE,NOW())
    `

	if token.ID == "" {
		token.ID = uuid.NewString()
	}

	_, err := r.db.Exec(ctx, query, token.ID, token.Digest, token.AccountID, token.Email, string(token.Action), token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create email token: %w", err)
	}
	return nil
}

func (r *EmailTokenRepository) GetByDigest(ctx context.Context, digest []byte) (model.EmailToken, error) {
	const query = `
        SELECT id, digest, account_id, email, action, expires_at, revoked, created_at
        FROM email_tokens WHERE digest = $1
    `

	var (
		t      model.EmailToken
		id     uuid.UUID
		action string
	)
	err := r.db.QueryRow(ctx, query, digest).Scan(
		&id, &t.Digest, &t.AccountID, &t.Email, &action, &t.ExpiresAt, &t.Revoked, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.EmailToken{}, model.ErrNotFound
		}
		return model.EmailToken{}, fmt.Errorf("failed to get email token: %w", err)
	}
	t.ID = id.String()
	t.Action = model.EmailAction(action)

	return t, nil
}

func (r *EmailTokenRepository) DeleteByDigest(ctx context.Context, digest []byte) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM email_tokens WHERE digest = $1`, digest)
	if err != nil {
		return false, fmt.Errorf("failed to delete email token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EmailTokenRepository) RevokeByAccountAction(ctx context.Context, accountID int64, action model.EmailAction) error {
	const query = `
        UPDATE email_tokens SET revoked = TRUE
        WHERE account_id = $1 AND action = $2 AND revoked = FALSE
    `
	if _, err := r.db.Exec(ctx, query, accountID, string(action)); err != nil {
		return fmt.Errorf("failed to revoke email tokens: %w", err)
	}
	return nil
}
