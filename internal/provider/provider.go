// Package provider defines the contract every banking aggregator adapter must
// satisfy, the normalized wire-independent types adapters return, and the
// shared retry decorator. Adapters only make outbound network calls; all
// persistence happens in the sync orchestrator.
package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbridge/banklink/internal/domain"
)

// Provider is the port every aggregator adapter implements. Every returned
// shape is normalized: provider-specific payloads never cross this boundary,
// and neither do provider-specific errors (see Error).
type Provider interface {
	// Name returns the registry identifier, e.g. "saltedge".
	Name() string

	// Authenticate validates credentials and connectivity once at startup.
	// Returns CodeUnavailable if the health probe does not succeed.
	Authenticate(ctx context.Context) error

	// InitiateLink starts an OAuth session for the user. It must not perform
	// any account access yet.
	InitiateLink(ctx context.Context, userID, institutionHint string) (*LinkSession, error)

	// GetLinkStatus reports the provider-side state of a link session.
	GetLinkStatus(ctx context.Context, sessionID string) (SessionStatus, error)

	// CompleteLink fetches the accounts discovered by an authorized session.
	CompleteLink(ctx context.Context, sessionID string) ([]Account, error)

	GetAccounts(ctx context.Context, sessionID string) ([]Account, error)
	GetAccount(ctx context.Context, sessionID, accountID string) (*Account, error)
	GetBalance(ctx context.Context, sessionID, accountID string) (*Balance, error)
	GetTransactions(ctx context.Context, sessionID, accountID string, from, to time.Time) ([]Transaction, error)

	// RevokeLink disconnects the session. Idempotent: succeeds even if the
	// session is already revoked upstream.
	RevokeLink(ctx context.Context, sessionID string) error

	// ListInstitutions is informational only.
	ListInstitutions(ctx context.Context, country string) ([]Institution, error)
}

// SessionStatus is the normalized provider-side link session state.
type SessionStatus string

const (
	SessionPending   SessionStatus = "PENDING"
	SessionActive    SessionStatus = "ACTIVE"
	SessionExpired   SessionStatus = "EXPIRED"
	SessionSuspended SessionStatus = "SUSPENDED"
	SessionCompleted SessionStatus = "COMPLETED"
)

// LinkSession is the result of initiating a link flow.
type LinkSession struct {
	SessionID   string
	RedirectURL string
	ExpiresAt   time.Time
}

// Account is an account as reported by a provider, already normalized.
// Monetary fields are fixed-point decimals parsed from wire strings.
type Account struct {
	ProviderAccountID string
	Name              string
	AccountNumber     string
	Currency          string
	Type              domain.AccountType
	Balance           decimal.Decimal
	AvailableBalance  *decimal.Decimal
}

// Balance is a point-in-time balance snapshot for one account.
type Balance struct {
	Current   decimal.Decimal
	Available *decimal.Decimal
	Currency  string
	AsOf      time.Time
}

// Transaction is a transaction as reported by a provider. ProviderTxID is the
// upsert key component; Metadata carries provider-specific leftovers opaquely.
type Transaction struct {
	ProviderTxID string
	Date         time.Time
	BookingDate  *time.Time
	Amount       decimal.Decimal
	Currency     string
	Description  string
	Counterparty string
	Metadata     map[string]string
}

// Institution is a bank selectable during link initiation.
type Institution struct {
	ID      string
	Name    string
	Country string
	LogoURL string
}
