package service

import (
	"context"
	"fmt"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

// Captcha gates anonymous endpoints. Without a verifier every response
// passes.
type Captcha struct {
	verifier model.CaptchaVerifier
	logger   *logger.Logger
}

// NewCaptcha accepts a nil verifier.
func NewCaptcha(verifier model.CaptchaVerifier, logger *logger.Logger) *Captcha {
	if verifier == nil {
		logger.Warn("Captcha service: no captcha provider configured, all checks pass")
	}
	return &Captcha{verifier: verifier, logger: logger}
}

func (c *Captcha) Check(ctx context.Context, response, remoteIP string) error {
	if c.verifier == nil {
		c.logger.Debug("Captcha service: skipped, no provider", "ip", remoteIP)
		return nil
	}

	ok, err := c.verifier.Verify(ctx, response, remoteIP)
	if err != nil {
		c.logger.Error("Captcha service: provider failed",
			"ip", remoteIP,
			"error", err.Error())
		return fmt.Errorf("failed to verify captcha: %w", model.ErrInternal)
	}
	if !ok {
		return model.ErrInvalidCaptcha
	}
	return nil
}
