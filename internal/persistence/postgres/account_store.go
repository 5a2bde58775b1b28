package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finbridge/banklink/internal/domain"
)

const accountColumns = `
	id, connection_id, provider_account_id, name, masked_iban, currency,
	account_type, balance::text, available_balance::text, sync_status,
	sync_error, last_synced_at
`

// UpsertAccounts inserts or refreshes accounts keyed by
// (connection_id, provider_account_id). Re-discovering an account updates its
// display fields and balances in place.
func (s *Store) UpsertAccounts(ctx context.Context, accounts []*domain.Account) error {
	query := `
		INSERT INTO accounts (
			id, connection_id, provider_account_id, name, masked_iban, currency,
			account_type, balance, available_balance, sync_status, sync_error, last_synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11, $12)
		ON CONFLICT (connection_id, provider_account_id) DO UPDATE SET
			name = EXCLUDED.name,
			masked_iban = EXCLUDED.masked_iban,
			currency = EXCLUDED.currency,
			account_type = EXCLUDED.account_type,
			balance = EXCLUDED.balance,
			available_balance = EXCLUDED.available_balance,
			sync_status = EXCLUDED.sync_status,
			sync_error = EXCLUDED.sync_error,
			last_synced_at = EXCLUDED.last_synced_at
		RETURNING id
	`

	for _, account := range accounts {
		m := toAccountModel(account)
		var id uuid.UUID
		err := s.pool.QueryRow(ctx, query,
			m.ID, m.ConnectionID, m.ProviderAccountID, m.Name, m.MaskedIBAN, m.Currency,
			m.AccountType, m.Balance, m.AvailableBalance, m.SyncStatus, m.SyncError, m.LastSyncedAt,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to upsert account %s: %w", m.ProviderAccountID, err)
		}
		account.ID = id
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) ListAccountsByConnection(ctx context.Context, connectionID uuid.UUID) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE connection_id = $1 ORDER BY name`

	rows, err := s.pool.Query(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("query accounts by connection: %w", err)
	}
	return collectAccounts(rows)
}

// ListSyncableAccounts returns accounts whose connection is COMPLETED,
// oldest-synced first, for the scheduled sweep.
func (s *Store) ListSyncableAccounts(ctx context.Context, limit int) ([]*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts a
		WHERE EXISTS (
			SELECT 1 FROM connections c
			WHERE c.id = a.connection_id AND c.status = 'COMPLETED'
		)
		ORDER BY a.last_synced_at ASC NULLS FIRST
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query syncable accounts: %w", err)
	}
	return collectAccounts(rows)
}

// UpdateAccountSyncState persists balances and the outcome of the latest sync
// attempt for one account.
func (s *Store) UpdateAccountSyncState(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $1::numeric, available_balance = $2::numeric,
		    sync_status = $3, sync_error = $4, last_synced_at = $5
		WHERE id = $6
	`

	m := toAccountModel(account)
	result, err := s.pool.Exec(ctx, query,
		m.Balance, m.AvailableBalance, m.SyncStatus, m.SyncError, m.LastSyncedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account sync state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewAccountNotFoundError(m.ID.String())
	}
	return nil
}

// UpsertTransactions writes a batch keyed by (account_id, provider_tx_id) and
// returns the number of rows written. A restated transaction (same key, new
// amount or dates) overwrites the stored row.
func (s *Store) UpsertTransactions(ctx context.Context, transactions []*domain.Transaction) (int, error) {
	query := `
		INSERT INTO transactions (
			id, provider_tx_id, account_id, date, booking_date,
			amount, currency, description, counterparty, metadata
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10)
		ON CONFLICT (account_id, provider_tx_id) DO UPDATE SET
			date = EXCLUDED.date,
			booking_date = EXCLUDED.booking_date,
			amount = EXCLUDED.amount,
			description = EXCLUDED.description,
			counterparty = EXCLUDED.counterparty,
			metadata = EXCLUDED.metadata
	`

	batch := &pgx.Batch{}
	for _, tx := range transactions {
		m := toTransactionModel(tx)
		batch.Queue(query,
			m.ID, m.ProviderTxID, m.AccountID, m.Date, m.BookingDate,
			m.Amount, m.Currency, m.Description, m.Counterparty, m.Metadata,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for range transactions {
		if _, err := results.Exec(); err != nil {
			return written, fmt.Errorf("failed to upsert transaction: %w", err)
		}
		written++
	}
	return written, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var m accountModel
	err := row.Scan(
		&m.ID, &m.ConnectionID, &m.ProviderAccountID, &m.Name, &m.MaskedIBAN, &m.Currency,
		&m.AccountType, &m.Balance, &m.AvailableBalance, &m.SyncStatus,
		&m.SyncError, &m.LastSyncedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewAccountNotFoundError("")
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return toDomainAccount(m)
}

func collectAccounts(rows pgx.Rows) ([]*domain.Account, error) {
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Account, error) {
		var m accountModel
		err := row.Scan(
			&m.ID, &m.ConnectionID, &m.ProviderAccountID, &m.Name, &m.MaskedIBAN, &m.Currency,
			&m.AccountType, &m.Balance, &m.AvailableBalance, &m.SyncStatus,
			&m.SyncError, &m.LastSyncedAt,
		)
		if err != nil {
			return nil, err
		}
		return toDomainAccount(m)
	})
	if err != nil {
		return nil, fmt.Errorf("scan accounts: %w", err)
	}
	return results, nil
}
