// Package memory keeps short-lived security state (rate-limit windows and
// MFA challenges) in an in-process SQLite database.
package memory

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
    bucket     TEXT    NOT NULL,
    identifier TEXT    NOT NULL,
    remaining  INTEGER NOT NULL,
    reset_at   INTEGER NOT NULL,
    PRIMARY KEY (bucket, identifier)
);
CREATE INDEX IF NOT EXISTS rate_limits_reset_idx ON rate_limits (reset_at);

CREATE TABLE IF NOT EXISTS mfa_challenges (
    id         TEXT    PRIMARY KEY,
    account_id INTEGER NOT NULL,
    issued_at  INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS mfa_challenges_expires_idx ON mfa_challenges (expires_at);
`

// DB is the ephemeral store handle.
type DB struct {
	*sql.DB
}

// Open creates a private in-memory database. A single connection is used
// so read-modify-write transactions are serialized.
func Open(ctx context.Context, name string) (*DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		return nil, fmt.Errorf("failed to open ephemeral store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ephemeral schema: %w", err)
	}

	return &DB{DB: db}, nil
}
