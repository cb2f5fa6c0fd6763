package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonID        = "argon2id"
	saltLength     = 16
	keyLength      = 32
	maxPasswordLen = 1024
)

var errMalformedHash = errors.New("malformed password hash")

// KDFParams is the argon2id work factor.
type KDFParams struct {
	Time   uint32
	MemKiB uint32
	Par    uint8
}

// PasswordHasher derives and checks argon2id PHC strings.
type PasswordHasher struct {
	params KDFParams
	dummy  string
}

// NewPasswordHasher validates params and prepares a throwaway hash used to
// spend the same time on unknown accounts as on real ones.
func NewPasswordHasher(params KDFParams) (*PasswordHasher, error) {
	if params.Time == 0 || params.MemKiB < 8*1024 || params.Par == 0 {
		return nil, fmt.Errorf("weak kdf params: time=%d mem=%d par=%d", params.Time, params.MemKiB, params.Par)
	}

	h := &PasswordHasher{params: params}
	dummy, err := h.Hash("dummy password for timing")
	if err != nil {
		return nil, err
	}
	h.dummy = dummy

	return h, nil
}

// Hash returns the PHC encoding of password under a fresh salt.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) > maxPasswordLen {
		return "", fmt.Errorf("password longer than %d bytes", maxPasswordLen)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemKiB, h.params.Par, keyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argonID, argon2.Version, h.params.MemKiB, h.params.Time, h.params.Par,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. Malformed hashes never
// match.
func (h *PasswordHasher) Verify(password, encoded string) bool {
	if len(password) > maxPasswordLen {
		return false
	}

	p, salt, key, err := parsePHC(encoded)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, p.Time, p.MemKiB, p.Par, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1
}

// Burn runs one verification against the dummy hash and discards the
// result.
func (h *PasswordHasher) Burn(password string) {
	_ = h.Verify(password, h.dummy)
}

func parsePHC(encoded string) (KDFParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argonID {
		return KDFParams{}, nil, nil, errMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return KDFParams{}, nil, nil, errMalformedHash
	}

	var (
		p   KDFParams
		par uint32
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemKiB, &p.Time, &par); err != nil {
		return KDFParams{}, nil, nil, errMalformedHash
	}
	if p.Time == 0 || p.MemKiB == 0 || par == 0 || par > 255 {
		return KDFParams{}, nil, nil, errMalformedHash
	}
	p.Par = uint8(par)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < saltLength {
		return KDFParams{}, nil, nil, errMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return KDFParams{}, nil, nil, errMalformedHash
	}

	return p, salt, key, nil
}
