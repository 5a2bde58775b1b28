package sync

import (
	"context"
	"errors"

	"github.com/finbridge/banklink/internal/domain"
	"github.com/finbridge/banklink/internal/provider"
)

// ErrorCategory classifies an error for handling policy: transient failures
// were already retried by the adapter decorator, authorization failures
// suspend the connection, quota failures block new links, validation failures
// surface immediately.
type ErrorCategory string

const (
	CategoryTransient     ErrorCategory = "TRANSIENT"
	CategoryAuthorization ErrorCategory = "AUTHORIZATION"
	CategoryQuota         ErrorCategory = "QUOTA"
	CategoryValidation    ErrorCategory = "VALIDATION"
)

// CategorizeError maps any error reaching the orchestrator into the closed
// category set.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	if provErr, ok := provider.AsError(err); ok {
		switch {
		case provErr.IsAuthorization():
			return CategoryAuthorization
		case provErr.IsTransient():
			return CategoryTransient
		default:
			return CategoryValidation
		}
	}

	if domain.IsErrorCode(err, domain.ErrCodeQuotaExceeded) {
		return CategoryQuota
	}

	if domain.IsErrorCode(err, domain.ErrCodeInvalidTransition) ||
		domain.IsErrorCode(err, domain.ErrCodeMissingRequiredField) {
		return CategoryValidation
	}

	// Unknown errors are treated as transient so they are never silently
	// classified as a user problem.
	return CategoryTransient
}

// errorCode extracts the stable caller-facing code for SyncLog records.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if provErr, ok := provider.AsError(err); ok {
		return provErr.Code
	}
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.CodeTimeout
	}
	return "INTERNAL_ERROR"
}
