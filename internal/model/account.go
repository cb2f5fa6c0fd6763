package model

import (
	"context"
	"time"
)

// AccountStore defines persistence operations for accounts.
//
// Update is an optimistic write: it succeeds only when the stored version
// equals account.Version and returns the account with the bumped version.
type AccountStore interface {
	Create(ctx context.Context, account Account) (Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	GetByUsername(ctx context.Context, username string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	Update(ctx context.Context, account Account) (Account, error)
}

// Lock modes stored in Account.Locked.
const (
	LockNone       = 0
	LockRestricted = 1
	LockBanned     = 2
)

// Account represents a registered account with its credentials.
type Account struct {
	ID             int64
	Username       string
	DisplayName    string
	Email          *string
	PasswordHash   *string
	Authenticators []TOTPAuthenticator
	RecoveryCodes  []string
	Locked         int
	Child          bool
	DeleteAfter    *time.Time
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TOTPAuthenticator is a registered time-based one-time password secret.
type TOTPAuthenticator struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// HasMFA reports whether a second factor is registered.
func (a Account) HasMFA() bool {
	return len(a.Authenticators) > 0
}

// IsLocked reports whether the account is locked in any mode.
func (a Account) IsLocked() bool {
	return a.Locked > LockNone
}

// VerifiedEmail returns the account email or an empty string.
func (a Account) VerifiedEmail() string {
	if a.Email == nil {
		return ""
	}
	return *a.Email
}
