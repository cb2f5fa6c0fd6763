package model

import (
	"context"
	"time"
)

// SessionStore defines persistence operations for sessions.
//
// Rotate replaces the secrets of current with those of next only while the
// stored auth digest still equals current.AuthDigest and the session has not
// expired; otherwise it returns ErrNotFound. Delete returns the removed row
// or ErrNotFound when nothing was removed.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	GetByID(ctx context.Context, id int64) (Session, error)
	GetByAuthDigest(ctx context.Context, digest []byte) (Session, error)
	GetByMainDigest(ctx context.Context, digest []byte) (Session, error)
	ListByAccount(ctx context.Context, accountID int64) ([]Session, error)
	Rotate(ctx context.Context, current Session, next Session) (Session, error)
	Delete(ctx context.Context, id int64) (Session, error)
	DeleteAllByAccount(ctx context.Context, accountID int64, keepID int64) ([]Session, error)
}

// RevocationPublisher announces revoked sessions to other processes.
type RevocationPublisher interface {
	PublishRevocation(ctx context.Context, event RevocationEvent) error
}

// RevocationEvent is delivered at least once per revoked session.
type RevocationEvent struct {
	SessionID int64 `json:"session_id"`
	AccountID int64 `json:"account_id"`
}

// Session is a logged-in client with two independently rotated secrets.
type Session struct {
	ID            int64      `json:"id"`
	AccountID     int64      `json:"account_id"`
	AuthDigest    []byte     `json:"-"`
	MainDigest    []byte     `json:"-"`
	Client        ClientInfo `json:"client"`
	RefreshedAt   time.Time  `json:"refreshed_at"`
	MainExpiresAt time.Time  `json:"main_expires_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// ValidAt reports whether the session has not expired at t.
func (s Session) ValidAt(t time.Time) bool {
	return s.ExpiresAt.After(t)
}

// MainValidAt reports whether the main secret is usable at t.
func (s Session) MainValidAt(t time.Time) bool {
	return s.ValidAt(t) && s.MainExpiresAt.After(t)
}

// ClientInfo describes the client a session was issued to. It is stored
// for display only.
type ClientInfo struct {
	Name      string `json:"name,omitempty"`
	Type      string `json:"type,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// SessionTokens is the plaintext secret pair returned to the client once.
type SessionTokens struct {
	Session    Session
	AuthSecret string
	MainSecret string
}

// CredentialKind tells which session secret authorized a request.
type CredentialKind int

const (
	CredentialMain CredentialKind = iota
	CredentialAuth
)

// Principal is the authorized caller attached to a request context.
type Principal struct {
	Session    Session
	Account    Account
	Credential CredentialKind
}
