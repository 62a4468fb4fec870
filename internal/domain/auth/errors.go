package auth

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMFARequired        = errors.New("mfa code required")
	ErrMFAInvalid         = errors.New("invalid mfa code")
	ErrSessionRevoked     = errors.New("session revoked or expired")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
	ErrEmailTaken         = errors.New("email already in use")
	ErrWeakPassword       = errors.New("password must be at least 10 characters and include upper, lower and digit")
)
