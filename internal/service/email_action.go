package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

const (
	verifyEmailTTL   = 24 * time.Hour
	revertEmailTTL   = 7 * 24 * time.Hour
	resetPasswordTTL = time.Hour
	verifyChildTTL   = 7 * 24 * time.Hour

	passwordResetLimit  = 3
	passwordResetWindow = time.Hour

	deliveryTimeout = 30 * time.Second
)

// EmailAction sends action links and applies them when followed.
type EmailAction struct {
	tokens      *EmailToken
	accounts    *Account
	sessions    *Session
	limiter     model.RateLimiter
	mailer      model.Mailer
	callbackURL string
	logger      *logger.Logger

	deliveries sync.WaitGroup
}

func NewEmailAction(
	tokens *EmailToken,
	accounts *Account,
	sessions *Session,
	limiter model.RateLimiter,
	mailer model.Mailer,
	callbackURL string,
	logger *logger.Logger,
) *EmailAction {
	return &EmailAction{
		tokens:      tokens,
		accounts:    accounts,
		sessions:    sessions,
		limiter:     limiter,
		mailer:      mailer,
		callbackURL: callbackURL,
		logger:      logger,
	}
}

// Info describes a pending token without using it.
func (s *EmailAction) Info(ctx context.Context, secret string) (model.EmailToken, error) {
	t, err := s.tokens.Resolve(ctx, secret)
	if err != nil {
		return model.EmailToken{}, err
	}
	t.Digest = nil
	return t, nil
}

// Execute claims the token and applies its action. The token is gone
// afterwards even if the action fails.
func (s *EmailAction) Execute(ctx context.Context, p model.EmailExecution) (model.EmailToken, error) {
	t, err := s.tokens.Resolve(ctx, p.Token)
	if err != nil {
		return model.EmailToken{}, err
	}

	switch t.Action {
	case model.ActionResetPassword:
		if p.Password == "" {
			return model.EmailToken{}, fmt.Errorf("new password required: %w", model.ErrIllegalInput)
		}
	case model.ActionVerifyChild:
		if p.LockMode < model.LockNone || p.LockMode > model.LockBanned {
			return model.EmailToken{}, fmt.Errorf("lock mode %d: %w", p.LockMode, model.ErrIllegalInput)
		}
	case model.ActionVerifyEmail, model.ActionRevertEmail:
	default:
		return model.EmailToken{}, fmt.Errorf("unknown action %q: %w", t.Action, model.ErrInvalidToken)
	}

	account, err := s.accounts.Get(ctx, t.AccountID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.EmailToken{}, model.ErrInvalidToken
		}
		return model.EmailToken{}, err
	}

	claimed, err := s.tokens.claim(ctx, t.Digest)
	if err != nil {
		return model.EmailToken{}, err
	}
	if !claimed {
		return model.EmailToken{}, model.ErrInvalidToken
	}

	switch t.Action {
	case model.ActionVerifyEmail:
		err = s.verifyEmail(ctx, account, t.Email)
	case model.ActionRevertEmail:
		err = s.revertEmail(ctx, account, t.Email)
	case model.ActionResetPassword:
		err = s.resetPassword(ctx, account, p.Password)
	case model.ActionVerifyChild:
		err = s.accounts.ChangeLockStatus(ctx, account.ID, p.LockMode)
	}
	if err != nil {
		s.logger.Error("EmailAction service: failed to apply action",
			"account_id", account.ID,
			"action", t.Action,
			"error", err.Error())
		return model.EmailToken{}, err
	}

	s.logger.Info("EmailAction service: action applied",
		"account_id", account.ID,
		"action", t.Action)

	t.Digest = nil
	return t, nil
}

// ChangeEmail mails a verification link to newEmail. The account keeps its
// current email until the link is followed.
func (s *EmailAction) ChangeEmail(ctx context.Context, account model.Account, newEmail string) error {
	if err := ValidateEmail(newEmail); err != nil {
		return err
	}
	if strings.EqualFold(account.VerifiedEmail(), newEmail) {
		return fmt.Errorf("email unchanged: %w", model.ErrIllegalInput)
	}

	owner, err := s.accounts.GetByLogin(ctx, newEmail)
	switch {
	case err == nil && owner.ID != account.ID:
		return model.ErrEmailTaken
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return err
	}

	return s.issueAndSend(ctx, account, newEmail, model.ActionVerifyEmail, verifyEmailTTL, model.TemplateVerifyEmail)
}

// RequestPasswordReset mails a reset link when email belongs to an account.
// The result is the same whether or not it does, and the token and mail are
// produced in the background so response time does not tell either.
func (s *EmailAction) RequestPasswordReset(ctx context.Context, email, remoteIP string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}

	if remoteIP != "" {
		allowed, err := s.limiter.Consume(ctx, model.BucketPasswordReset, remoteIP, passwordResetLimit, passwordResetWindow)
		if err != nil {
			return fmt.Errorf("failed to check rate limit: %w", err)
		}
		if !allowed {
			return model.ErrRateLimited
		}
	}

	account, err := s.accounts.GetByLogin(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		s.logger.Debug("EmailAction service: password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()

		err := s.issueAndSend(bg, account, email, model.ActionResetPassword, resetPasswordTTL, model.TemplateResetPassword)
		if err != nil {
			s.logger.Error("EmailAction service: failed to deliver password reset",
				"account_id", account.ID,
				"error", err.Error())
		}
	}()

	return nil
}

// Wait blocks until background deliveries have finished.
func (s *EmailAction) Wait() {
	s.deliveries.Wait()
}

// SendTemplate mails template to the account's verified address with a
// fresh token for the matching action.
func (s *EmailAction) SendTemplate(ctx context.Context, account model.Account, template string) error {
	email := account.VerifiedEmail()
	if email == "" {
		return fmt.Errorf("account has no verified email: %w", model.ErrIllegalInput)
	}

	var (
		action model.EmailAction
		ttl    time.Duration
	)
	switch template {
	case model.TemplateVerifyEmail:
		action, ttl = model.ActionVerifyEmail, verifyEmailTTL
	case model.TemplateVerifyChild:
		action, ttl = model.ActionVerifyChild, verifyChildTTL
	case model.TemplateResetPassword:
		action, ttl = model.ActionResetPassword, resetPasswordTTL
	default:
		return fmt.Errorf("template %q cannot be sent directly: %w", template, model.ErrIllegalInput)
	}

	return s.issueAndSend(ctx, account, email, action, ttl, template)
}

func (s *EmailAction) verifyEmail(ctx context.Context, account model.Account, email string) error {
	previous := account.VerifiedEmail()

	if err := s.accounts.UpdateEmail(ctx, account.ID, &email); err != nil {
		return err
	}

	if previous == "" || strings.EqualFold(previous, email) {
		return nil
	}

	// The old address can undo the change.
	err := s.issueAndSend(ctx, account, previous, model.ActionRevertEmail, revertEmailTTL, model.TemplateRevertEmail)
	if err != nil {
		s.logger.Error("EmailAction service: failed to send revert link",
			"account_id", account.ID,
			"error", err.Error())
	}
	return nil
}

func (s *EmailAction) revertEmail(ctx context.Context, account model.Account, email string) error {
	if err := s.accounts.UpdateEmail(ctx, account.ID, &email); err != nil {
		return err
	}
	if err := s.tokens.RevokeAction(ctx, account.ID, model.ActionVerifyEmail); err != nil {
		return err
	}
	return s.sessions.RevokeAll(ctx, account.ID)
}

func (s *EmailAction) resetPassword(ctx context.Context, account model.Account, password string) error {
	if err := s.accounts.UpdatePassword(ctx, account, password); err != nil {
		return err
	}
	return s.sessions.RevokeAll(ctx, account.ID)
}

func (s *EmailAction) issueAndSend(
	ctx context.Context,
	account model.Account,
	email string,
	action model.EmailAction,
	ttl time.Duration,
	template string,
) error {
	tok, err := s.tokens.Issue(ctx, account, email, action, ttl)
	if err != nil {
		return err
	}

	link, err := CallbackURL(s.callbackURL, tok)
	if err != nil {
		return err
	}

	fields := map[string]string{
		"username": account.Username,
		"url":      link,
	}
	if err := s.mailer.Send(ctx, email, template, fields, tok); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
