package model

import (
	"context"
	"time"
)

// RateLimiter keeps fixed-window attempt counters per bucket and identifier.
type RateLimiter interface {
	Check(ctx context.Context, bucket, identifier string) (limited bool, err error)
	Consume(ctx context.Context, bucket, identifier string, limit int, ttl time.Duration) (allowed bool, err error)
}

// Bucket names.
const (
	BucketFailedPassword = "failed_pswd"
	BucketFailedMFA      = "failed_mfa"
	BucketRegister       = "register"
	BucketPasswordReset  = "password_reset"
)

// CaptchaVerifier validates a client-supplied captcha response.
type CaptchaVerifier interface {
	Verify(ctx context.Context, response, remoteIP string) (bool, error)
}
