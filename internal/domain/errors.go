package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error with a stable, caller-facing
// code. Human-readable detail stays in Message; anything noisier belongs in
// the SyncLog, not in the error returned to the caller.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeQuotaExceeded        = "QUOTA_EXCEEDED"
	ErrCodeConnectionNotFound   = "CONNECTION_NOT_FOUND"
	ErrCodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	ErrCodeConnectionRevoked    = "CONNECTION_REVOKED"
	ErrCodeLinkNotReady         = "LINK_NOT_READY"
	ErrCodeLinkExpired          = "LINK_EXPIRED"
	ErrCodeUnknownProvider      = "UNKNOWN_PROVIDER"
	ErrCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
)

func NewInvalidTransitionError(from, to LinkStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func NewQuotaExceededError(provider string, count, limit int) *DomainError {
	return &DomainError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("provider %s is at its connection ceiling (%d/%d)", provider, count, limit),
	}
}

func NewConnectionNotFoundError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeConnectionNotFound,
		Message: fmt.Sprintf("connection %s not found", id),
	}
}

func NewAccountNotFoundError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeAccountNotFound,
		Message: fmt.Sprintf("account %s not found", id),
	}
}

func NewConnectionRevokedError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeConnectionRevoked,
		Message: fmt.Sprintf("connection %s is revoked", id),
	}
}

func NewLinkNotReadyError(status LinkStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeLinkNotReady,
		Message: fmt.Sprintf("link session is %s, user has not authorized yet", status),
	}
}

func NewLinkExpiredError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeLinkExpired,
		Message: fmt.Sprintf("link session for connection %s expired before authorization", id),
	}
}

func NewUnknownProviderError(provider string) *DomainError {
	return &DomainError{
		Code:    ErrCodeUnknownProvider,
		Message: fmt.Sprintf("no adapter registered for provider %q", provider),
	}
}

func NewMissingRequiredFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingRequiredField,
		Message: fmt.Sprintf("%s is required", field),
	}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
