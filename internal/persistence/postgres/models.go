package postgres

import (
	"time"

	"github.com/google/uuid"
)

// Row models mirror table layout. Monetary columns are NUMERIC scanned as
// strings and converted through decimal, never float64.

type connectionModel struct {
	ID                uuid.UUID
	UserID            string
	Provider          string
	ProviderSessionID string
	Status            string
	RedirectURL       string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	AuthorizedAt      *time.Time
	RevokedAt         *time.Time
}

type accountModel struct {
	ID                uuid.UUID
	ConnectionID      uuid.UUID
	ProviderAccountID string
	Name              string
	MaskedIBAN        string
	Currency          string
	AccountType       string
	Balance           string
	AvailableBalance  *string
	SyncStatus        string
	SyncError         *string
	LastSyncedAt      *time.Time
}

type transactionModel struct {
	ID           uuid.UUID
	ProviderTxID string
	AccountID    uuid.UUID
	Date         time.Time
	BookingDate  *time.Time
	Amount       string
	Currency     string
	Description  string
	Counterparty string
	Metadata     map[string]string
}

type syncLogModel struct {
	ID                 uuid.UUID
	AccountID          uuid.UUID
	Provider           string
	Status             string
	StartedAt          time.Time
	CompletedAt        *time.Time
	AccountsSynced     int
	TransactionsSynced int
	ErrorCode          *string
	ErrorMessage       *string
}
