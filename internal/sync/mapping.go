package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/finbridge/banklink/internal/domain"
	"github.com/finbridge/banklink/internal/provider"
)

// mapAccounts converts normalized provider accounts into domain accounts for
// one connection. Account numbers are masked before they ever reach storage.
func mapAccounts(connectionID uuid.UUID, accounts []provider.Account, syncedAt time.Time) []*domain.Account {
	result := make([]*domain.Account, 0, len(accounts))
	for _, a := range accounts {
		result = append(result, &domain.Account{
			ID:                uuid.New(),
			ConnectionID:      connectionID,
			ProviderAccountID: a.ProviderAccountID,
			Name:              a.Name,
			MaskedIBAN:        domain.MaskAccountNumber(a.AccountNumber),
			Currency:          a.Currency,
			Type:              a.Type,
			Balance:           a.Balance,
			AvailableBalance:  a.AvailableBalance,
			SyncStatus:        domain.SyncOK,
			LastSyncedAt:      &syncedAt,
		})
	}
	return result
}

func mapTransactions(accountID uuid.UUID, transactions []provider.Transaction) []*domain.Transaction {
	result := make([]*domain.Transaction, 0, len(transactions))
	for _, t := range transactions {
		result = append(result, &domain.Transaction{
			ID:           uuid.New(),
			ProviderTxID: t.ProviderTxID,
			AccountID:    accountID,
			Date:         t.Date,
			BookingDate:  t.BookingDate,
			Amount:       t.Amount,
			Currency:     t.Currency,
			Description:  t.Description,
			Counterparty: t.Counterparty,
			Metadata:     t.Metadata,
		})
	}
	return result
}
