package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dtroode/authkeeper-server/internal/model"
)

// Claims represents MFA challenge claims.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// JWT signs MFA challenge tokens with a symmetric HMAC key.
type JWT struct {
	secretKey string
}

var _ model.ChallengeSigner = (*JWT)(nil)

// NewJWT creates a new challenge signer with the provided secret key.
func NewJWT(secretKey string) *JWT {
	return &JWT{secretKey: secretKey}
}

const typeChallenge = "mfa"

// SignChallenge creates a token naming the account and challenge id.
func (j *JWT) SignChallenge(accountID int64, id string, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenType: typeChallenge,
	})

	tokenString, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge token: %w", err)
	}

	return tokenString, nil
}

// ParseChallenge validates signature, expiry and type, then returns the
// account id and challenge id.
func (j *JWT) ParseChallenge(tokenString string) (int64, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(j.secretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, "", fmt.Errorf("challenge token: %w", model.ErrExpired)
		}
		return 0, "", fmt.Errorf("failed to parse challenge token: %w", model.ErrInvalidToken)
	}
	if !token.Valid {
		return 0, "", model.ErrInvalidToken
	}
	if claims.TokenType != typeChallenge {
		return 0, "", fmt.Errorf("token type mismatch %q: %w", claims.TokenType, model.ErrInvalidToken)
	}
	if claims.ID == "" {
		return 0, "", fmt.Errorf("challenge id missing: %w", model.ErrInvalidToken)
	}

	accountID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("bad challenge subject: %w", model.ErrInvalidToken)
	}

	return accountID, claims.ID, nil
}
