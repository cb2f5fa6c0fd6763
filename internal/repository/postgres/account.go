package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/authkeeper-server/internal/model"
)

var _ model.AccountStore = (*AccountRepository)(nil)

const (
	uniqueViolation = "23505"

	accountColumns = `id, username, display_name, email, password_hash, authenticators, recovery_codes,
			  locked, child, delete_after, version, created_at, updated_at`
)

type AccountRepository struct {
	db *Connection
}

func NewAccountRepository(db *Connection) *AccountRepository {
	return &AccountRepository{
		db: db,
	}
}

func (r *AccountRepository) Create(ctx context.Context, account model.Account) (model.Account, error) {
	authenticators, recoveryCodes, err := marshalCredentials(account)
	if err != nil {
		return model.Account{}, err
	}

	query := `INSERT INTO accounts (id, username, display_name, email, password_hash, authenticators, recovery_codes,
			  locked, child, version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, NOW(), NOW())
			  RETURNING ` + accountColumns

	saved, err := scanAccount(r.db.QueryRow(ctx, query,
		account.ID, account.Username, account.DisplayName, account.Email, account.PasswordHash,
		authenticators, recoveryCodes, account.Locked, account.Child,
	))
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return model.Account{}, conflict
		}
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	return saved, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by id: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(username) = lower($1)`

	account, err := scanAccount(r.db.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by username: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`

	account, err := scanAccount(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by email: %w", err)
	}

	return account, nil
}

// Update writes every mutable column in one statement guarded by the
// version the caller read.
func (r *AccountRepository) Update(ctx context.Context, account model.Account) (model.Account, error) {
	authenticators, recoveryCodes, err := marshalCredentials(account)
	if err != nil {
		return model.Account{}, err
	}

	query := `UPDATE accounts SET display_name = $3, email = $4, password_hash = $5, authenticators = $6,
			  recovery_codes = $7, locked = $8, child = $9, delete_after = $10,
			  version = version + 1, updated_at = NOW()
			  WHERE id = $1 AND version = $2
			  RETURNING ` + accountColumns

	saved, err := scanAccount(r.db.QueryRow(ctx, query,
		account.ID, account.Version, account.DisplayName, account.Email, account.PasswordHash,
		authenticators, recoveryCodes, account.Locked, account.Child, account.DeleteAfter,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, r.missingOrStale(ctx, account.ID)
		}
		if conflict := uniqueConflict(err); conflict != nil {
			return model.Account{}, conflict
		}
		return model.Account{}, fmt.Errorf("failed to update account: %w", err)
	}

	return saved, nil
}

func (r *AccountRepository) missingOrStale(ctx context.Context, id int64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check account existence: %w", err)
	}
	if !exists {
		return model.ErrNotFound
	}
	return model.ErrVersionConflict
}

func scanAccount(row pgx.Row) (model.Account, error) {
	var account model.Account
	err := row.Scan(
		&account.ID, &account.Username, &account.DisplayName, &account.Email, &account.PasswordHash,
		&account.Authenticators, &account.RecoveryCodes, &account.Locked, &account.Child,
		&account.DeleteAfter, &account.Version, &account.CreatedAt, &account.UpdatedAt,
	)
	return account, err
}

func marshalCredentials(account model.Account) ([]byte, []byte, error) {
	authenticators := account.Authenticators
	if authenticators == nil {
		authenticators = []model.TOTPAuthenticator{}
	}
	recoveryCodes := account.RecoveryCodes
	if recoveryCodes == nil {
		recoveryCodes = []string{}
	}

	a, err := json.Marshal(authenticators)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal authenticators: %w", err)
	}
	c, err := json.Marshal(recoveryCodes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal recovery codes: %w", err)
	}
	return a, c, nil
}

func uniqueConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return model.ErrEmailTaken
	case strings.Contains(pgErr.ConstraintName, "username"):
		return model.ErrUsernameTaken
	default:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, model.ErrConflict)
	}
}
