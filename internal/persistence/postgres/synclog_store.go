package postgres

import (
	"context"
	"fmt"

	"github.com/finbridge/banklink/internal/domain"
)

// AppendSyncLog records the start of a sync attempt. The row is never deleted
// by this layer; retention is a storage policy concern.
func (s *Store) AppendSyncLog(ctx context.Context, log *domain.SyncLog) error {
	query := `
		INSERT INTO sync_logs (
			id, account_id, provider, status, started_at, completed_at,
			accounts_synced, transactions_synced, error_code, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	m := toSyncLogModel(log)
	status := m.Status
	if status == "" {
		status = "RUNNING"
	}
	_, err := s.pool.Exec(ctx, query,
		m.ID, m.AccountID, m.Provider, status, m.StartedAt, m.CompletedAt,
		m.AccountsSynced, m.TransactionsSynced, m.ErrorCode, m.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	return nil
}

// FinalizeSyncLog sets the completion fields of an existing log entry. The
// only legal mutation a sync log ever sees.
func (s *Store) FinalizeSyncLog(ctx context.Context, log *domain.SyncLog) error {
	query := `
		UPDATE sync_logs
		SET status = $1, completed_at = $2, accounts_synced = $3,
		    transactions_synced = $4, error_code = $5, error_message = $6
		WHERE id = $7 AND completed_at IS NULL
	`

	m := toSyncLogModel(log)
	_, err := s.pool.Exec(ctx, query,
		m.Status, m.CompletedAt, m.AccountsSynced,
		m.TransactionsSynced, m.ErrorCode, m.ErrorMessage, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize sync log: %w", err)
	}
	return nil
}
