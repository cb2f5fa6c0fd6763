package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrLocked         = errors.New("account locked")
	ErrConflict       = errors.New("conflict")
	ErrIllegalInput   = errors.New("illegal input")
	ErrRateLimited    = errors.New("rate limited")
	ErrInvalidCaptcha = errors.New("invalid captcha")
	ErrExpired        = errors.New("expired")
	ErrInternal       = errors.New("internal error")
)

var (
	ErrUsernameTaken     = fmt.Errorf("username already taken: %w", ErrConflict)
	ErrEmailTaken        = fmt.Errorf("email already taken: %w", ErrConflict)
	ErrVersionConflict   = fmt.Errorf("concurrent modification: %w", ErrConflict)
	ErrIllegalCharacters = fmt.Errorf("illegal characters: %w", ErrIllegalInput)
	ErrInvalidCode       = fmt.Errorf("invalid code: %w", ErrUnauthorized)
	ErrInvalidToken      = fmt.Errorf("invalid token: %w", ErrUnauthorized)
	ErrSessionInvalid    = fmt.Errorf("session invalid: %w", ErrUnauthorized)
)
