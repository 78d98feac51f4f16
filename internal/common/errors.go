// Package common defines shared constants and sentinel errors used across
// the pwkeeper server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")
	ErrorRateLimited  = errors.New("rate limited")

	// Login flow errors.
	ErrorInactiveUser = errors.New("inactive user")
	ErrorInvalidOTP   = errors.New("invalid or missing otp")

	// Password change errors.
	ErrorWrongPassword = errors.New("password is not matched")
	ErrorSamePassword  = errors.New("new password must be different from the old one")

	// Stored secret could not be opened (tampered, truncated or foreign key).
	ErrorDecrypt = errors.New("decryption failed")

	// Auth errors (invalid, malformed or misused token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)

// DetailError attaches the message shown to API clients to one of the
// sentinels above. errors.Is still matches the sentinel.
type DetailError struct {
	Kind   error
	Detail string
}

func (e *DetailError) Error() string { return e.Kind.Error() + ": " + e.Detail }

func (e *DetailError) Unwrap() error { return e.Kind }

// WithDetail wraps kind with a client-facing message.
func WithDetail(kind error, detail string) error {
	return &DetailError{Kind: kind, Detail: detail}
}
