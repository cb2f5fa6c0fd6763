package service

import (
	"context"
	"time"

	"github.com/dtroode/authkeeper-server/internal/logger"
)

// Admin backs the internal API used by trusted operators.
type Admin struct {
	accounts *Account
	sessions *Session
	emails   *EmailAction
	logger   *logger.Logger
}

func NewAdmin(accounts *Account, sessions *Session, emails *EmailAction, logger *logger.Logger) *Admin {
	return &Admin{
		accounts: accounts,
		sessions: sessions,
		emails:   emails,
		logger:   logger,
	}
}

// SendEmail mails template to the user's verified address.
func (s *Admin) SendEmail(ctx context.Context, username, template string) error {
	account, err := s.accounts.GetByLogin(ctx, username)
	if err != nil {
		return err
	}
	return s.emails.SendTemplate(ctx, account, template)
}

// LockAccount sets the lock mode. Existing sessions stay but stop
// authorizing while the account is locked.
func (s *Admin) LockAccount(ctx context.Context, username string, mode int) error {
	account, err := s.accounts.GetByLogin(ctx, username)
	if err != nil {
		return err
	}

	s.logger.Info("Admin service: changing lock status",
		"account_id", account.ID,
		"mode", mode)

	return s.accounts.ChangeLockStatus(ctx, account.ID, mode)
}

// ScheduleDeletion marks the account for deletion and signs it out.
func (s *Admin) ScheduleDeletion(ctx context.Context, username string, immediate bool) (time.Time, error) {
	account, err := s.accounts.GetByLogin(ctx, username)
	if err != nil {
		return time.Time{}, err
	}

	at, err := s.accounts.ScheduleDeletion(ctx, account.ID, immediate)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.sessions.RevokeAll(ctx, account.ID); err != nil {
		return time.Time{}, err
	}

	return at, nil
}

func (s *Admin) CancelDeletion(ctx context.Context, username string) error {
	account, err := s.accounts.GetByLogin(ctx, username)
	if err != nil {
		return err
	}
	return s.accounts.CancelDeletion(ctx, account.ID)
}
