package service

import (
	"context"
	"fmt"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

// Settings changes the caller's own credentials. Every change re-confirms
// the caller through Gate.CheckExtraAuth.
type Settings struct {
	accounts *Account
	sessions *Session
	emails   *EmailAction
	gate     *Gate
	logger   *logger.Logger
}

func NewSettings(accounts *Account, sessions *Session, emails *EmailAction, gate *Gate, logger *logger.Logger) *Settings {
	return &Settings{
		accounts: accounts,
		sessions: sessions,
		emails:   emails,
		gate:     gate,
		logger:   logger,
	}
}

// ChangePassword sets a new password and signs out every other session.
func (s *Settings) ChangePassword(ctx context.Context, p model.Principal, extra model.ExtraAuth, newPassword string) error {
	if err := s.gate.CheckExtraAuth(ctx, p.Account, extra); err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, p.Account, newPassword); err != nil {
		return err
	}
	return s.sessions.RevokeAllExcept(ctx, p.Account.ID, p.Session.ID)
}

func (s *Settings) ChangeEmail(ctx context.Context, p model.Principal, extra model.ExtraAuth, newEmail string) error {
	if err := s.gate.CheckExtraAuth(ctx, p.Account, extra); err != nil {
		return err
	}
	return s.emails.ChangeEmail(ctx, p.Account, newEmail)
}

// NewTOTPSecret proposes a secret for the caller to enroll.
func (s *Settings) NewTOTPSecret(_ context.Context, p model.Principal) (string, string, error) {
	return s.accounts.GenerateTOTPSecret(p.Account)
}

// AddAuthenticator enrolls a TOTP secret. The first authenticator also
// creates recovery codes, returned once.
func (s *Settings) AddAuthenticator(ctx context.Context, p model.Principal, extra model.ExtraAuth, name, secret, code string) (string, []string, error) {
	if err := s.gate.CheckExtraAuth(ctx, p.Account, extra); err != nil {
		return "", nil, err
	}

	id, err := s.accounts.AddTOTPAuthenticator(ctx, p.Account, name, secret, code)
	if err != nil {
		return "", nil, err
	}
	if len(p.Account.RecoveryCodes) > 0 {
		return id, nil, nil
	}

	account, err := s.accounts.Get(ctx, p.Account.ID)
	if err != nil {
		return "", nil, err
	}
	codes, err := s.accounts.RefreshRecoveryCodes(ctx, account)
	if err != nil {
		return "", nil, err
	}
	return id, codes, nil
}

func (s *Settings) RemoveAuthenticator(ctx context.Context, p model.Principal, extra model.ExtraAuth, id string) error {
	if err := s.gate.CheckExtraAuth(ctx, p.Account, extra); err != nil {
		return err
	}

	removed, err := s.accounts.RemoveTOTPAuthenticator(ctx, p.Account, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("authenticator %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *Settings) RefreshRecoveryCodes(ctx context.Context, p model.Principal, extra model.ExtraAuth) ([]string, error) {
	if err := s.gate.CheckExtraAuth(ctx, p.Account, extra); err != nil {
		return nil, err
	}
	if !p.Account.HasMFA() {
		return nil, fmt.Errorf("no authenticator enrolled: %w", model.ErrIllegalInput)
	}
	return s.accounts.RefreshRecoveryCodes(ctx, p.Account)
}
