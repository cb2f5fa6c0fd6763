package model

// RegisterParams is the input of self-service registration.
type RegisterParams struct {
	Username    string
	DisplayName string
	Password    string
	Child       bool
	Captcha     string
	Client      ClientInfo
}

// LoginParams is the password step of a login. Login is a username or an
// email address.
type LoginParams struct {
	Login    string
	Password string
	Client   ClientInfo
}

// LoginResult holds either a new session or, when the account has a second
// factor, the challenge token to finish with.
type LoginResult struct {
	Tokens         SessionTokens
	ChallengeToken string
}

// MFARequired reports whether the login stopped at the second factor.
func (r LoginResult) MFARequired() bool {
	return r.ChallengeToken != ""
}

// ExtraAuth re-confirms the caller for sensitive settings. Either field may
// satisfy it.
type ExtraAuth struct {
	Password string
	TOTP     string
}
