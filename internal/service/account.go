package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
	"github.com/dtroode/authkeeper-server/internal/token"
)

const (
	maxUsernameLen    = 20
	maxDisplayNameLen = 64
	maxAuthenticators = 8
	maxUpdateAttempts = 4
	deletionGrace     = 7 * 24 * time.Hour
	totpIssuer        = "authkeeper"
)

// errUnchanged aborts a mutation without writing.
var errUnchanged = errors.New("unchanged")

// IDGenerator hands out unique int64 identifiers.
type IDGenerator interface {
	Next() int64
}

// Account manages accounts and their credentials.
type Account struct {
	store  model.AccountStore
	hasher *PasswordHasher
	ids    IDGenerator
	logger *logger.Logger
	now    func() time.Time
}

func NewAccount(store model.AccountStore, hasher *PasswordHasher, ids IDGenerator, logger *logger.Logger) *Account {
	return &Account{
		store:  store,
		hasher: hasher,
		ids:    ids,
		logger: logger,
		now:    time.Now,
	}
}

// ValidateUsername checks the allowed charset [A-Za-z0-9-_. ] and length.
func ValidateUsername(username string) error {
	if len(username) == 0 || len(username) > maxUsernameLen {
		return fmt.Errorf("username must be 1-%d characters: %w", maxUsernameLen, model.ErrIllegalInput)
	}
	if strings.TrimSpace(username) != username {
		return fmt.Errorf("username has surrounding spaces: %w", model.ErrIllegalCharacters)
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ' ':
		default:
			return fmt.Errorf("username contains %q: %w", r, model.ErrIllegalCharacters)
		}
	}
	return nil
}

// Create registers a new account. The username is stored lowercase and the
// original spelling is kept as the display name when none is given.
func (s *Account) Create(ctx context.Context, username, displayName, password string, child bool) (model.Account, error) {
	s.logger.Debug("Account service: creating account", "username", username)

	if err := ValidateUsername(username); err != nil {
		return model.Account{}, err
	}
	if displayName == "" {
		displayName = username
	}
	if len(displayName) > maxDisplayNameLen {
		return model.Account{}, fmt.Errorf("display name too long: %w", model.ErrIllegalInput)
	}
	if password == "" {
		return model.Account{}, fmt.Errorf("password is empty: %w", model.ErrIllegalInput)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to hash password: %w", errors.Join(err, model.ErrIllegalInput))
	}

	now := s.now()
	account, err := s.store.Create(ctx, model.Account{
		ID:           s.ids.Next(),
		Username:     strings.ToLower(username),
		DisplayName:  displayName,
		PasswordHash: &hash,
		Child:        child,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			s.logger.Info("Account service: username already taken", "username", username)
			return model.Account{}, err
		}
		s.logger.Error("Account service: failed to create account",
			"username", username,
			"error", err.Error())
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account service: account created",
		"username", account.Username,
		"account_id", account.ID)

	return account, nil
}

// Get loads an account by id.
func (s *Account) Get(ctx context.Context, id int64) (model.Account, error) {
	account, err := s.store.GetByID(ctx, id)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetByLogin loads an account by email when login contains "@", otherwise
// by username.
func (s *Account) GetByLogin(ctx context.Context, login string) (model.Account, error) {
	var (
		account model.Account
		err     error
	)
	if strings.Contains(login, "@") {
		account, err = s.store.GetByEmail(ctx, login)
	} else {
		account, err = s.store.GetByUsername(ctx, login)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to get account by login: %w", err)
	}
	return account, nil
}

// VerifyPassword reports whether candidate matches the stored hash. It is
// false when no password is set.
func (s *Account) VerifyPassword(account model.Account, candidate string) bool {
	if account.PasswordHash == nil {
		s.hasher.Burn(candidate)
		return false
	}
	return s.hasher.Verify(candidate, *account.PasswordHash)
}

// BurnPasswordCheck costs as much as VerifyPassword and always fails.
func (s *Account) BurnPasswordCheck(candidate string) {
	s.hasher.Burn(candidate)
}

func (s *Account) UpdatePassword(ctx context.Context, account model.Account, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("password is empty: %w", model.ErrIllegalInput)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", errors.Join(err, model.ErrIllegalInput))
	}

	_, err = s.mutate(ctx, account, func(a *model.Account) error {
		a.PasswordHash = &hash
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("Account service: password updated", "account_id", account.ID)
	return nil
}

// GenerateTOTPSecret returns a new base32 secret and its otpauth URI. Nothing
// is stored until AddTOTPAuthenticator confirms it.
func (s *Account) GenerateTOTPSecret(account model.Account) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account.Username,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// AddTOTPAuthenticator registers secret after code proves the client holds
// it. It returns the new authenticator id.
func (s *Account) AddTOTPAuthenticator(ctx context.Context, account model.Account, name, secret, code string) (string, error) {
	if name == "" || len(name) > maxDisplayNameLen {
		return "", fmt.Errorf("bad authenticator name: %w", model.ErrIllegalInput)
	}

	ok, err := s.validateTOTP(code, secret)
	if err != nil {
		return "", fmt.Errorf("bad totp secret: %w", model.ErrIllegalInput)
	}
	if !ok {
		return "", model.ErrInvalidCode
	}

	id := uuid.NewString()
	_, err = s.mutate(ctx, account, func(a *model.Account) error {
		if len(a.Authenticators) >= maxAuthenticators {
			return fmt.Errorf("at most %d authenticators: %w", maxAuthenticators, model.ErrIllegalInput)
		}
		a.Authenticators = append(slices.Clone(a.Authenticators), model.TOTPAuthenticator{
			ID:     id,
			Name:   name,
			Secret: secret,
		})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to add authenticator: %w", err)
	}

	s.logger.Info("Account service: authenticator added",
		"account_id", account.ID,
		"authenticator_id", id)

	return id, nil
}

// RemoveTOTPAuthenticator deletes the authenticator with id and reports
// whether it existed.
func (s *Account) RemoveTOTPAuthenticator(ctx context.Context, account model.Account, id string) (bool, error) {
	_, err := s.mutate(ctx, account, func(a *model.Account) error {
		i := slices.IndexFunc(a.Authenticators, func(t model.TOTPAuthenticator) bool { return t.ID == id })
		if i < 0 {
			return errUnchanged
		}
		a.Authenticators = slices.Delete(slices.Clone(a.Authenticators), i, i+1)
		if len(a.Authenticators) == 0 {
			a.RecoveryCodes = nil
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove authenticator: %w", err)
	}

	s.logger.Info("Account service: authenticator removed",
		"account_id", account.ID,
		"authenticator_id", id)

	return true, nil
}

// VerifyTOTP accepts a current code from any authenticator or an unused
// recovery code. A recovery code is removed in the same write that accepts
// it, so it verifies at most once.
func (s *Account) VerifyTOTP(ctx context.Context, account model.Account, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}

	for _, a := range account.Authenticators {
		ok, err := s.validateTOTP(code, a.Secret)
		if err != nil {
			s.logger.Warn("Account service: stored totp secret is invalid",
				"account_id", account.ID,
				"authenticator_id", a.ID)
			continue
		}
		if ok {
			return true, nil
		}
	}

	if len(code) != token.RecoveryCodeLength {
		return false, nil
	}
	digest := token.DigestString(strings.ToLower(code))

	_, err := s.mutate(ctx, account, func(a *model.Account) error {
		i := slices.Index(a.RecoveryCodes, digest)
		if i < 0 {
			return errUnchanged
		}
		a.RecoveryCodes = slices.Delete(slices.Clone(a.RecoveryCodes), i, i+1)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume recovery code: %w", err)
	}

	s.logger.Info("Account service: recovery code used", "account_id", account.ID)
	return true, nil
}

// RefreshRecoveryCodes replaces all recovery codes and returns the new
// plaintext set. Only digests are stored.
func (s *Account) RefreshRecoveryCodes(ctx context.Context, account model.Account) ([]string, error) {
	codes, err := token.NewRecoveryCodes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate recovery codes: %w", err)
	}
	digests := make([]string, len(codes))
	for i, c := range codes {
		digests[i] = token.DigestString(c)
	}

	_, err = s.mutate(ctx, account, func(a *model.Account) error {
		a.RecoveryCodes = digests
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store recovery codes: %w", err)
	}

	return codes, nil
}

// ChangeLockStatus sets the lock mode. It does not revoke sessions.
func (s *Account) ChangeLockStatus(ctx context.Context, accountID int64, mode int) error {
	if mode < model.LockNone || mode > model.LockBanned {
		return fmt.Errorf("lock mode %d: %w", mode, model.ErrIllegalInput)
	}

	account, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, account, func(a *model.Account) error {
		if a.Locked == mode {
			return errUnchanged
		}
		a.Locked = mode
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return fmt.Errorf("failed to change lock status: %w", err)
	}

	s.logger.Info("Account service: lock status changed",
		"account_id", accountID,
		"mode", mode)

	return nil
}

// UpdateEmail sets or clears the verified email.
func (s *Account) UpdateEmail(ctx context.Context, accountID int64, email *string) error {
	if email != nil {
		if err := ValidateEmail(*email); err != nil {
			return err
		}
	}

	account, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, account, func(a *model.Account) error {
		a.Email = email
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}
	return nil
}

// ScheduleDeletion marks the account for removal now or after the grace
// period.
func (s *Account) ScheduleDeletion(ctx context.Context, accountID int64, immediate bool) (time.Time, error) {
	at := s.now()
	if !immediate {
		at = at.Add(deletionGrace)
	}

	account, err := s.Get(ctx, accountID)
	if err != nil {
		return time.Time{}, err
	}
	_, err = s.mutate(ctx, account, func(a *model.Account) error {
		a.DeleteAfter = &at
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to schedule deletion: %w", err)
	}

	s.logger.Info("Account service: deletion scheduled",
		"account_id", accountID,
		"delete_after", at)

	return at, nil
}

func (s *Account) CancelDeletion(ctx context.Context, accountID int64) error {
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, account, func(a *model.Account) error {
		if a.DeleteAfter == nil {
			return errUnchanged
		}
		a.DeleteAfter = nil
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return fmt.Errorf("failed to cancel deletion: %w", err)
	}
	return nil
}

// ValidateEmail accepts a bare address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email address: %w", model.ErrIllegalInput)
	}
	return nil
}

// validateTOTP reports a malformed code as a mismatch and a malformed secret
// as an error.
func (s *Account) validateTOTP(code, secret string) (bool, error) {
	if len(code) != otp.DigitsSix.Length() || strings.Trim(code, "0123456789") != "" {
		return false, nil
	}
	return totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// mutate applies fn and writes the result with a version check. The first
// attempt uses the given snapshot; on conflict the account is reloaded and
// fn runs again on fresh state.
func (s *Account) mutate(ctx context.Context, account model.Account, fn func(*model.Account) error) (model.Account, error) {
	current := account
	for attempt := 1; ; attempt++ {
		next := current
		if err := fn(&next); err != nil {
			return model.Account{}, err
		}
		next.UpdatedAt = s.now()

		updated, err := s.store.Update(ctx, next)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, model.ErrVersionConflict) || attempt == maxUpdateAttempts {
			return model.Account{}, err
		}

		s.logger.Debug("Account service: version conflict, retrying",
			"account_id", account.ID,
			"attempt", attempt)

		current, err = s.store.GetByID(ctx, account.ID)
		if err != nil {
			return model.Account{}, fmt.Errorf("failed to reload account: %w", err)
		}
	}
}
