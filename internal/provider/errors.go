package provider

import (
	"errors"
	"fmt"
)

// Error codes form the closed taxonomy adapters translate provider-specific
// failures into. Nothing else leaks past the adapter boundary.
const (
	CodeTimeout            = "TIMEOUT"
	CodeUnavailable        = "UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeConsentRevoked     = "CONSENT_REVOKED"
	CodeInvalidPayload     = "INVALID_PAYLOAD"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
)

// Error is the normalized provider failure shape.
type Error struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s error [%s]: %s (status: %d)", e.Provider, e.Code, e.Message, e.StatusCode)
}

// IsTransient reports whether the failure is worth retrying with backoff.
// Authorization failures never are: the user has to re-link.
func (e *Error) IsTransient() bool {
	switch e.Code {
	case CodeTimeout, CodeUnavailable, CodeRateLimited:
		return true
	}
	return e.StatusCode >= 500
}

// IsAuthorization reports whether the failure invalidates the connection.
func (e *Error) IsAuthorization() bool {
	return e.Code == CodeInvalidCredentials || e.Code == CodeConsentRevoked
}

func AsError(err error) (*Error, bool) {
	var provErr *Error
	ok := errors.As(err, &provErr)
	return provErr, ok
}
