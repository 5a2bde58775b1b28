package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is a financial event belonging to an Account. The idempotency
// key is (AccountID, ProviderTxID): re-fetching the same transaction upserts
// the existing row instead of creating a duplicate. A provider may restate a
// transaction after the fact (pending to posted), so upserts overwrite amount,
// dates and description for an existing key.
type Transaction struct {
	ID           uuid.UUID
	ProviderTxID string
	AccountID    uuid.UUID
	Date         time.Time
	BookingDate  *time.Time
	Amount       decimal.Decimal
	Currency     string
	Description  string
	Counterparty string
	Metadata     map[string]string
}
