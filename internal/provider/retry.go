package provider

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/finbridge/banklink/internal/config"
)

// RetryProvider decorates a Provider with bounded exponential backoff on
// transient failures. Authorization and validation errors pass through on the
// first attempt; the orchestrator never sees a transient error until the
// retry budget is exhausted.
type RetryProvider struct {
	inner      Provider
	baseDelay  time.Duration
	maxRetries int
}

func NewRetryProvider(inner Provider, cfg config.RetryConfig) *RetryProvider {
	return &RetryProvider{
		inner:      inner,
		baseDelay:  time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		maxRetries: int(cfg.MaxRetries),
	}
}

func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

func (r *RetryProvider) Authenticate(ctx context.Context) error {
	_, err := retry(r, ctx, func(ctx context.Context) (*struct{}, error) {
		return nil, r.inner.Authenticate(ctx)
	})
	return err
}

func (r *RetryProvider) InitiateLink(ctx context.Context, userID, institutionHint string) (*LinkSession, error) {
	return retry(r, ctx, func(ctx context.Context) (*LinkSession, error) {
		return r.inner.InitiateLink(ctx, userID, institutionHint)
	})
}

func (r *RetryProvider) GetLinkStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	status, err := retry(r, ctx, func(ctx context.Context) (*SessionStatus, error) {
		s, err := r.inner.GetLinkStatus(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &s, nil
	})
	if err != nil {
		return "", err
	}
	return *status, nil
}

func (r *RetryProvider) CompleteLink(ctx context.Context, sessionID string) ([]Account, error) {
	accounts, err := retry(r, ctx, func(ctx context.Context) (*[]Account, error) {
		accts, err := r.inner.CompleteLink(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &accts, nil
	})
	if err != nil {
		return nil, err
	}
	return *accounts, nil
}

func (r *RetryProvider) GetAccounts(ctx context.Context, sessionID string) ([]Account, error) {
	accounts, err := retry(r, ctx, func(ctx context.Context) (*[]Account, error) {
		accts, err := r.inner.GetAccounts(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &accts, nil
	})
	if err != nil {
		return nil, err
	}
	return *accounts, nil
}

func (r *RetryProvider) GetAccount(ctx context.Context, sessionID, accountID string) (*Account, error) {
	return retry(r, ctx, func(ctx context.Context) (*Account, error) {
		return r.inner.GetAccount(ctx, sessionID, accountID)
	})
}

func (r *RetryProvider) GetBalance(ctx context.Context, sessionID, accountID string) (*Balance, error) {
	return retry(r, ctx, func(ctx context.Context) (*Balance, error) {
		return r.inner.GetBalance(ctx, sessionID, accountID)
	})
}

func (r *RetryProvider) GetTransactions(ctx context.Context, sessionID, accountID string, from, to time.Time) ([]Transaction, error) {
	txs, err := retry(r, ctx, func(ctx context.Context) (*[]Transaction, error) {
		result, err := r.inner.GetTransactions(ctx, sessionID, accountID, from, to)
		if err != nil {
			return nil, err
		}
		return &result, nil
	})
	if err != nil {
		return nil, err
	}
	return *txs, nil
}

func (r *RetryProvider) RevokeLink(ctx context.Context, sessionID string) error {
	_, err := retry(r, ctx, func(ctx context.Context) (*struct{}, error) {
		return nil, r.inner.RevokeLink(ctx, sessionID)
	})
	return err
}

func (r *RetryProvider) ListInstitutions(ctx context.Context, country string) ([]Institution, error) {
	institutions, err := retry(r, ctx, func(ctx context.Context) (*[]Institution, error) {
		result, err := r.inner.ListInstitutions(ctx, country)
		if err != nil {
			return nil, err
		}
		return &result, nil
	})
	if err != nil {
		return nil, err
	}
	return *institutions, nil
}

// Generic retry helper
func retry[T any](r *RetryProvider, ctx context.Context, operation func(ctx context.Context) (*T, error)) (*T, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		if attempt < r.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

// Helper: only transient provider failures are retried. Authorization,
// validation and unknown errors go straight up.
func isRetryable(err error) bool {
	if provErr, ok := AsError(err); ok {
		return provErr.IsTransient()
	}
	return false
}

// Backoff calculation with exponential delay and jitter
func (r *RetryProvider) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)

	jitter := time.Duration(rand.Intn(250)) * time.Millisecond

	return base + jitter
}
