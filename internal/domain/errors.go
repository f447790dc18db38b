package domain

import "errors"

// Login failures.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authorization failures.
var (
	ErrMissingToken  = errors.New("missing token")
	ErrTokenNotFound = errors.New("token not found")
	ErrInvalidToken  = errors.New("invalid token")
	ErrForbidden     = errors.New("forbidden")
)

// Codec failures. Callers outside the codec report these as ErrInvalidToken.
var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("bad signature")
	ErrIssuerMismatch = errors.New("issuer mismatch")
)

// Issuance and storage failures.
var (
	ErrMissingExpiryConfiguration = errors.New("missing expiry configuration")
	ErrIssuanceFailed             = errors.New("token issuance failed")
	ErrPersistence                = errors.New("persistence error")
)
