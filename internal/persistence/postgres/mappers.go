package postgres

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/finbridge/banklink/internal/domain"
)

func toConnectionModel(c *domain.Connection) connectionModel {
	return connectionModel{
		ID:                c.ID,
		UserID:            c.UserID,
		Provider:          c.Provider,
		ProviderSessionID: c.ProviderSessionID,
		Status:            string(c.Status),
		RedirectURL:       c.RedirectURL,
		CreatedAt:         c.CreatedAt,
		ExpiresAt:         c.ExpiresAt,
		AuthorizedAt:      c.AuthorizedAt,
		RevokedAt:         c.RevokedAt,
	}
}

func toDomainConnection(m connectionModel) *domain.Connection {
	return domain.ReconstituteConnection(
		m.ID, m.UserID, m.Provider, m.ProviderSessionID,
		domain.LinkStatus(m.Status), m.RedirectURL,
		m.CreatedAt, m.ExpiresAt,
		m.AuthorizedAt, m.RevokedAt,
	)
}

func toAccountModel(a *domain.Account) accountModel {
	m := accountModel{
		ID:                a.ID,
		ConnectionID:      a.ConnectionID,
		ProviderAccountID: a.ProviderAccountID,
		Name:              a.Name,
		MaskedIBAN:        a.MaskedIBAN,
		Currency:          a.Currency,
		AccountType:       string(a.Type),
		Balance:           a.Balance.String(),
		SyncStatus:        string(a.SyncStatus),
		SyncError:         a.SyncErrorMsg,
		LastSyncedAt:      a.LastSyncedAt,
	}
	if a.AvailableBalance != nil {
		s := a.AvailableBalance.String()
		m.AvailableBalance = &s
	}
	return m
}

func toDomainAccount(m accountModel) (*domain.Account, error) {
	balance, err := decimal.NewFromString(m.Balance)
	if err != nil {
		return nil, fmt.Errorf("account %s has corrupt balance %q: %w", m.ID, m.Balance, err)
	}

	account := &domain.Account{
		ID:                m.ID,
		ConnectionID:      m.ConnectionID,
		ProviderAccountID: m.ProviderAccountID,
		Name:              m.Name,
		MaskedIBAN:        m.MaskedIBAN,
		Currency:          m.Currency,
		Type:              domain.AccountType(m.AccountType),
		Balance:           balance,
		SyncStatus:        domain.SyncStatus(m.SyncStatus),
		SyncErrorMsg:      m.SyncError,
		LastSyncedAt:      m.LastSyncedAt,
	}

	if m.AvailableBalance != nil {
		available, err := decimal.NewFromString(*m.AvailableBalance)
		if err != nil {
			return nil, fmt.Errorf("account %s has corrupt available balance %q: %w", m.ID, *m.AvailableBalance, err)
		}
		account.AvailableBalance = &available
	}
	return account, nil
}

func toTransactionModel(t *domain.Transaction) transactionModel {
	return transactionModel{
		ID:           t.ID,
		ProviderTxID: t.ProviderTxID,
		AccountID:    t.AccountID,
		Date:         t.Date,
		BookingDate:  t.BookingDate,
		Amount:       t.Amount.String(),
		Currency:     t.Currency,
		Description:  t.Description,
		Counterparty: t.Counterparty,
		Metadata:     t.Metadata,
	}
}

func toSyncLogModel(l *domain.SyncLog) syncLogModel {
	return syncLogModel{
		ID:                 l.ID,
		AccountID:          l.AccountID,
		Provider:           l.Provider,
		Status:             string(l.Status),
		StartedAt:          l.StartedAt,
		CompletedAt:        l.CompletedAt,
		AccountsSynced:     l.AccountsSynced,
		TransactionsSynced: l.TransactionsSynced,
		ErrorCode:          l.ErrorCode,
		ErrorMessage:       l.ErrorMessage,
	}
}
