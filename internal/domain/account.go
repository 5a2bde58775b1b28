package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType is the normalized account classification shared by all providers.
type AccountType string

const (
	AccountChecking   AccountType = "CHECKING"
	AccountSavings    AccountType = "SAVINGS"
	AccountCredit     AccountType = "CREDIT"
	AccountInvestment AccountType = "INVESTMENT"
	AccountLoan       AccountType = "LOAN"
)

// SyncStatus reflects the outcome of the most recent sync attempt on an account.
type SyncStatus string

const (
	SyncOK    SyncStatus = "OK"
	SyncError SyncStatus = "ERROR"
)

// Account is a financial account discovered through a Connection. Balances are
// fixed-point decimals end to end; float64 never touches a monetary value.
type Account struct {
	ID                uuid.UUID
	ConnectionID      uuid.UUID
	ProviderAccountID string

	Name       string
	MaskedIBAN string
	Currency   string
	Type       AccountType

	Balance          decimal.Decimal
	AvailableBalance *decimal.Decimal

	SyncStatus   SyncStatus
	SyncErrorMsg *string
	LastSyncedAt *time.Time
}

// MaskAccountNumber hides all but the last four characters of an account
// number or IBAN before it is stored.
func MaskAccountNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}
