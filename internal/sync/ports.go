// Package sync is the provider-agnostic orchestrator: it routes link and sync
// requests to the right adapter, applies the quota routing decision, and owns
// all persistence through the gateway interface below.
package sync

import (
	"context"

	"github.com/google/uuid"

	"github.com/finbridge/banklink/internal/domain"
)

// Store is the persistence gateway consumed by the orchestrator. Each call is
// atomic on its own; the orchestrator never assumes cross-call transactions.
type Store interface {
	CreateConnection(ctx context.Context, conn *domain.Connection) error
	GetConnection(ctx context.Context, id uuid.UUID) (*domain.Connection, error)
	GetConnectionBySession(ctx context.Context, sessionID string) (*domain.Connection, error)
	UpdateConnection(ctx context.Context, conn *domain.Connection) error
	ListConnectionsByStatus(ctx context.Context, status domain.LinkStatus, limit int) ([]*domain.Connection, error)

	UpsertAccounts(ctx context.Context, accounts []*domain.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListAccountsByConnection(ctx context.Context, connectionID uuid.UUID) ([]*domain.Account, error)
	ListSyncableAccounts(ctx context.Context, limit int) ([]*domain.Account, error)
	UpdateAccountSyncState(ctx context.Context, account *domain.Account) error

	UpsertTransactions(ctx context.Context, transactions []*domain.Transaction) (int, error)

	AppendSyncLog(ctx context.Context, log *domain.SyncLog) error
	FinalizeSyncLog(ctx context.Context, log *domain.SyncLog) error

	ReadQuotaCounters(ctx context.Context) (map[string]int, error)
}
