package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// Secret prefixes tag what kind of credential a string is.
const (
	AuthPrefix = "auth_"
	MainPrefix = "main_"
)

const (
	sessionSecretBytes = 32
	emailSecretBytes   = 64

	recoveryAlphabet   = "abcdefghijklmnopqrstuvwxyz0123456789"
	recoveryGroupLen   = 4
	RecoveryCodeLength = recoveryGroupLen*2 + 1
	RecoveryCodeCount  = 8
)

// NewSessionSecret returns a fresh high-entropy secret carrying prefix.
func NewSessionSecret(prefix string) (string, error) {
	s, err := randomString(sessionSecretBytes)
	if err != nil {
		return "", err
	}
	return prefix + s, nil
}

// NewEmailSecret returns a fresh secret for email action links.
func NewEmailSecret() (string, error) {
	return randomString(emailSecretBytes)
}

// Digest returns the lookup key stored in place of a secret.
func Digest(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// DigestString is Digest rendered as unpadded base64url, for text columns
// and cache keys.
func DigestString(secret string) string {
	return base64.RawURLEncoding.EncodeToString(Digest(secret))
}

// KindOf reports which session secret prefix s carries.
func KindOf(s string) (prefix string, ok bool) {
	switch {
	case strings.HasPrefix(s, AuthPrefix):
		return AuthPrefix, true
	case strings.HasPrefix(s, MainPrefix):
		return MainPrefix, true
	default:
		return "", false
	}
}

// NewRecoveryCodes returns RecoveryCodeCount codes formatted as xxxx-xxxx.
func NewRecoveryCodes() ([]string, error) {
	codes := make([]string, 0, RecoveryCodeCount)
	for i := 0; i < RecoveryCodeCount; i++ {
		code, err := newRecoveryCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func newRecoveryCode() (string, error) {
	buf := make([]byte, recoveryGroupLen*2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	var b strings.Builder
	b.Grow(RecoveryCodeLength)
	for i, v := range buf {
		if i == recoveryGroupLen {
			b.WriteByte('-')
		}
		// 252 is the largest multiple of 36 below 256; reroll above it
		for v >= 252 {
			var one [1]byte
			if _, err := rand.Read(one[:]); err != nil {
				return "", fmt.Errorf("failed to read random bytes: %w", err)
			}
			v = one[0]
		}
		b.WriteByte(recoveryAlphabet[int(v)%len(recoveryAlphabet)])
	}
	return b.String(), nil
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
