package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/api-token-service/internal/domain"
)

// Error codes rendered in the JSON error envelope.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeMissingToken        = "MISSING_TOKEN"
	CodeTokenNotFound       = "TOKEN_NOT_FOUND"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeForbidden           = "FORBIDDEN"
	CodeMissingExpiryConfig = "MISSING_EXPIRY_CONFIGURATION"
	CodeIssuanceFailed      = "ISSUANCE_FAILED"
	CodePersistence         = "PERSISTENCE_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts service errors to DomainError. Unknown errors become
// a 500 without leaking their text.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return &DomainError{Code: CodeInvalidCredentials, Message: "Invalid credentials.", HTTPStatus: http.StatusUnauthorized, Err: err}
	case errors.Is(err, domain.ErrMissingToken):
		return &DomainError{Code: CodeMissingToken, Message: "Missing bearer token.", HTTPStatus: http.StatusUnauthorized, Err: err}
	case errors.Is(err, domain.ErrTokenNotFound):
		return &DomainError{Code: CodeTokenNotFound, Message: "Token not found.", HTTPStatus: http.StatusUnauthorized, Err: err}
	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrMalformedToken),
		errors.Is(err, domain.ErrBadSignature),
		errors.Is(err, domain.ErrIssuerMismatch):
		return &DomainError{Code: CodeInvalidToken, Message: "Invalid token.", HTTPStatus: http.StatusUnauthorized, Err: err}
	case errors.Is(err, domain.ErrForbidden):
		return &DomainError{Code: CodeForbidden, Message: "Forbidden.", HTTPStatus: http.StatusUnauthorized, Err: err}
	case errors.Is(err, domain.ErrMissingExpiryConfiguration):
		return &DomainError{Code: CodeMissingExpiryConfig, Message: "Token expiry is not configured.", HTTPStatus: http.StatusInternalServerError, Err: err}
	case errors.Is(err, domain.ErrIssuanceFailed):
		return &DomainError{Code: CodeIssuanceFailed, Message: "Token could not be issued.", HTTPStatus: http.StatusInternalServerError, Err: err}
	case errors.Is(err, domain.ErrPersistence):
		return &DomainError{Code: CodePersistence, Message: "internal server error", HTTPStatus: http.StatusInternalServerError, Err: err}
	}

	return NewInternalError(err).(*DomainError)
}
