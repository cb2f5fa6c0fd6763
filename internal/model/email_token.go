package model

import (
	"context"
	"time"
)

// EmailTokenStore defines persistence operations for email action tokens.
// DeleteByDigest reports whether a row was removed, so exactly one caller
// can claim a token.
type EmailTokenStore interface {
	Create(ctx context.Context, token EmailToken) error
	GetByDigest(ctx context.Context, digest []byte) (EmailToken, error)
	DeleteByDigest(ctx context.Context, digest []byte) (bool, error)
	RevokeByAccountAction(ctx context.Context, accountID int64, action EmailAction) error
}

// EmailAction is the account mutation an email token authorizes.
type EmailAction string

const (
	ActionVerifyEmail   EmailAction = "verify-email"
	ActionResetPassword EmailAction = "reset-password"
	ActionVerifyChild   EmailAction = "verify-child"
	ActionRevertEmail   EmailAction = "revert-email"
)

// EmailToken is a single-use action token. Email is the target captured at
// issue time.
type EmailToken struct {
	ID        string
	Digest    []byte
	AccountID int64
	Email     string
	Action    EmailAction
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Mailer renders and delivers templated emails.
type Mailer interface {
	Send(ctx context.Context, email string, template string, fields map[string]string, token string) error
}

// Email templates known to the mailer.
const (
	TemplateVerifyEmail   = "verify_email"
	TemplateVerifyChild   = "verify_child"
	TemplateResetPassword = "reset_password"
	TemplateRevertEmail   = "revert_email"
)

// EmailExecution carries the inputs an email action may need besides the
// token itself.
type EmailExecution struct {
	Token    string
	Password string
	LockMode int
}
