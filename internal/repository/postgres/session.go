package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dtroode/authkeeper-server/internal/model"
)

var _ model.SessionStore = (*SessionRepository)(nil)

const sessionColumns = `id, account_id, auth_digest, main_digest, client, refreshed_at, main_expires_at, expires_at`

// SessionRepository is the authoritative session store.
type SessionRepository struct {
	db *Connection
}

func NewSessionRepository(db *Connection) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session model.Session) error {
	const query = `
        INSERT INTO sessions (id, account_id, auth_digest, main_digest, client, refreshed_at, main_expires_at, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `

	client, err := json.Marshal(session.Client)
	if err != nil {
		return fmt.Errorf("failed to marshal client info: %w", err)
	}

	_, err = r.db.Exec(ctx, query,
		session.ID, session.AccountID, session.AuthDigest, session.MainDigest, client,
		session.RefreshedAt, session.MainExpiresAt, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id int64) (model.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

func (r *SessionRepository) GetByAuthDigest(ctx context.Context, digest []byte) (model.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE auth_digest = $1`, digest)
}

func (r *SessionRepository) GetByMainDigest(ctx context.Context, digest []byte) (model.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE main_digest = $1`, digest)
}

func (r *SessionRepository) ListByAccount(ctx context.Context, accountID int64) ([]model.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE account_id = $1 AND expires_at > NOW() ORDER BY id`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Rotate swaps both secrets in one statement. The auth digest and expiry
// guard make concurrent refreshes of one session mutually exclusive.
func (r *SessionRepository) Rotate(ctx context.Context, current model.Session, next model.Session) (model.Session, error) {
	const query = `
        UPDATE sessions
        SET auth_digest = $3, main_digest = $4, client = $5, refreshed_at = $6, main_expires_at = $7, expires_at = $8
        WHERE id = $1 AND auth_digest = $2 AND expires_at > NOW()
        RETURNING ` + sessionColumns

	client, err := json.Marshal(next.Client)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to marshal client info: %w", err)
	}

	rotated, err := scanSession(r.db.QueryRow(ctx, query,
		current.ID, current.AuthDigest, next.AuthDigest, next.MainDigest, client,
		next.RefreshedAt, next.MainExpiresAt, next.ExpiresAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, model.ErrNotFound
		}
		return model.Session{}, fmt.Errorf("failed to rotate session: %w", err)
	}
	return rotated, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id int64) (model.Session, error) {
	deleted, err := r.getOne(ctx, `DELETE FROM sessions WHERE id = $1 RETURNING `+sessionColumns, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Session{}, err
		}
		return model.Session{}, fmt.Errorf("failed to delete session: %w", err)
	}
	return deleted, nil
}

// DeleteAllByAccount removes every session of the account except keepID
// (zero keeps none) and returns the removed rows.
func (r *SessionRepository) DeleteAllByAccount(ctx context.Context, accountID int64, keepID int64) ([]model.Session, error) {
	const query = `DELETE FROM sessions WHERE account_id = $1 AND id <> $2 RETURNING ` + sessionColumns

	rows, err := r.db.Query(ctx, query, accountID, keepID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete sessions: %w", err)
	}

	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) getOne(ctx context.Context, query string, arg any) (model.Session, error) {
	session, err := scanSession(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, model.ErrNotFound
		}
		return model.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func scanSession(row pgx.Row) (model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID, &s.AccountID, &s.AuthDigest, &s.MainDigest, &s.Client,
		&s.RefreshedAt, &s.MainExpiresAt, &s.ExpiresAt,
	)
	return s, err
}

func collectSessions(rows pgx.Rows) ([]model.Session, error) {
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
