// Package mocks provides hand-rolled test doubles for the persistence gateway
// and the provider port. Default behavior is an in-memory happy path; any
// method can be overridden per test through its Fn field.
package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbridge/banklink/internal/domain"
	"github.com/finbridge/banklink/internal/provider"
)

// MockStore
type MockStore struct {
	mu           sync.Mutex
	connections  map[uuid.UUID]*domain.Connection
	accounts     map[uuid.UUID]*domain.Account
	transactions map[string]*domain.Transaction
	syncLogs     map[uuid.UUID]*domain.SyncLog

	CreateConnectionFn       func(ctx context.Context, conn *domain.Connection) error
	GetConnectionFn          func(ctx context.Context, id uuid.UUID) (*domain.Connection, error)
	GetConnectionBySessionFn func(ctx context.Context, sessionID string) (*domain.Connection, error)
	UpdateConnectionFn       func(ctx context.Context, conn *domain.Connection) error
	UpsertAccountsFn         func(ctx context.Context, accounts []*domain.Account) error
	UpsertTransactionsFn     func(ctx context.Context, transactions []*domain.Transaction) (int, error)
	UpdateAccountSyncStateFn func(ctx context.Context, account *domain.Account) error
}

func NewMockStore() *MockStore {
	return &MockStore{
		connections:  make(map[uuid.UUID]*domain.Connection),
		accounts:     make(map[uuid.UUID]*domain.Account),
		transactions: make(map[string]*domain.Transaction),
		syncLogs:     make(map[uuid.UUID]*domain.SyncLog),
	}
}

func (m *MockStore) CreateConnection(ctx context.Context, conn *domain.Connection) error {
	if m.CreateConnectionFn != nil {
		return m.CreateConnectionFn(ctx, conn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID] = conn
	return nil
}

func (m *MockStore) GetConnection(ctx context.Context, id uuid.UUID) (*domain.Connection, error) {
	if m.GetConnectionFn != nil {
		return m.GetConnectionFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.connections[id]; ok {
		return conn, nil
	}
	return nil, domain.NewConnectionNotFoundError(id.String())
}

func (m *MockStore) GetConnectionBySession(ctx context.Context, sessionID string) (*domain.Connection, error) {
	if m.GetConnectionBySessionFn != nil {
		return m.GetConnectionBySessionFn(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conn := range m.connections {
		if conn.ProviderSessionID == sessionID {
			return conn, nil
		}
	}
	return nil, domain.NewConnectionNotFoundError(sessionID)
}

func (m *MockStore) UpdateConnection(ctx context.Context, conn *domain.Connection) error {
	if m.UpdateConnectionFn != nil {
		return m.UpdateConnectionFn(ctx, conn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[conn.ID]; !ok {
		return domain.NewConnectionNotFoundError(conn.ID.String())
	}
	m.connections[conn.ID] = conn
	return nil
}

func (m *MockStore) ListConnectionsByStatus(ctx context.Context, status domain.LinkStatus, limit int) ([]*domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Connection
	for _, conn := range m.connections {
		if conn.Status == status {
			result = append(result, conn)
		}
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// UpsertAccounts keys on (connection, provider account) the way the real
// store's unique index does, so re-running completion replaces rather than
// duplicates.
func (m *MockStore) UpsertAccounts(ctx context.Context, accounts []*domain.Account) error {
	if m.UpsertAccountsFn != nil {
		return m.UpsertAccountsFn(ctx, accounts)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range accounts {
		if existing := m.findByProviderAccountLocked(account.ConnectionID, account.ProviderAccountID); existing != nil {
			account.ID = existing.ID
			delete(m.accounts, existing.ID)
		}
		m.accounts[account.ID] = account
	}
	return nil
}

func (m *MockStore) findByProviderAccountLocked(connectionID uuid.UUID, providerAccountID string) *domain.Account {
	for _, a := range m.accounts {
		if a.ConnectionID == connectionID && a.ProviderAccountID == providerAccountID {
			return a
		}
	}
	return nil
}

func (m *MockStore) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.accounts[id]; ok {
		return account, nil
	}
	return nil, domain.NewAccountNotFoundError(id.String())
}

func (m *MockStore) ListAccountsByConnection(ctx context.Context, connectionID uuid.UUID) ([]*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Account
	for _, account := range m.accounts {
		if account.ConnectionID == connectionID {
			result = append(result, account)
		}
	}
	return result, nil
}

func (m *MockStore) ListSyncableAccounts(ctx context.Context, limit int) ([]*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Account
	for _, account := range m.accounts {
		conn, ok := m.connections[account.ConnectionID]
		if !ok || conn.Status != domain.StatusCompleted {
			continue
		}
		result = append(result, account)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MockStore) UpdateAccountSyncState(ctx context.Context, account *domain.Account) error {
	if m.UpdateAccountSyncStateFn != nil {
		return m.UpdateAccountSyncStateFn(ctx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; !ok {
		return domain.NewAccountNotFoundError(account.ID.String())
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *MockStore) UpsertTransactions(ctx context.Context, transactions []*domain.Transaction) (int, error) {
	if m.UpsertTransactionsFn != nil {
		return m.UpsertTransactionsFn(ctx, transactions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range transactions {
		m.transactions[tx.AccountID.String()+"/"+tx.ProviderTxID] = tx
	}
	return len(transactions), nil
}

func (m *MockStore) AppendSyncLog(ctx context.Context, log *domain.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncLogs[log.ID] = log
	return nil
}

func (m *MockStore) FinalizeSyncLog(ctx context.Context, log *domain.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncLogs[log.ID] = log
	return nil
}

func (m *MockStore) ReadQuotaCounters(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counters := make(map[string]int)
	for _, conn := range m.connections {
		switch conn.Status {
		case domain.StatusPending, domain.StatusActive, domain.StatusCompleted:
			counters[conn.Provider]++
		}
	}
	return counters, nil
}

// Inspection helpers for assertions.

func (m *MockStore) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections)
}

func (m *MockStore) TransactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

func (m *MockStore) SyncLogs() []*domain.SyncLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.SyncLog, 0, len(m.syncLogs))
	for _, log := range m.syncLogs {
		result = append(result, log)
	}
	return result
}

// MockProvider
type MockProvider struct {
	ProviderName string
	Delay        time.Duration

	InitiateLinkFn    func(ctx context.Context, userID, institutionHint string) (*provider.LinkSession, error)
	GetLinkStatusFn   func(ctx context.Context, sessionID string) (provider.SessionStatus, error)
	CompleteLinkFn    func(ctx context.Context, sessionID string) ([]provider.Account, error)
	GetBalanceFn      func(ctx context.Context, sessionID, accountID string) (*provider.Balance, error)
	GetTransactionsFn func(ctx context.Context, sessionID, accountID string, from, to time.Time) ([]provider.Transaction, error)
	RevokeLinkFn      func(ctx context.Context, sessionID string) error

	InitiateLinkCalls    atomic.Int64
	GetLinkStatusCalls   atomic.Int64
	CompleteLinkCalls    atomic.Int64
	GetBalanceCalls      atomic.Int64
	GetTransactionsCalls atomic.Int64
	RevokeLinkCalls      atomic.Int64
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{ProviderName: name}
}

func (m *MockProvider) Name() string {
	return m.ProviderName
}

func (m *MockProvider) Authenticate(ctx context.Context) error {
	return nil
}

func (m *MockProvider) pause() {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
}

func (m *MockProvider) InitiateLink(ctx context.Context, userID, institutionHint string) (*provider.LinkSession, error) {
	m.InitiateLinkCalls.Add(1)
	m.pause()
	if m.InitiateLinkFn != nil {
		return m.InitiateLinkFn(ctx, userID, institutionHint)
	}
	return &provider.LinkSession{
		SessionID:   "sess-" + uuid.NewString(),
		RedirectURL: "https://link.example/start",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (m *MockProvider) GetLinkStatus(ctx context.Context, sessionID string) (provider.SessionStatus, error) {
	m.GetLinkStatusCalls.Add(1)
	m.pause()
	if m.GetLinkStatusFn != nil {
		return m.GetLinkStatusFn(ctx, sessionID)
	}
	return provider.SessionActive, nil
}

func (m *MockProvider) CompleteLink(ctx context.Context, sessionID string) ([]provider.Account, error) {
	m.CompleteLinkCalls.Add(1)
	m.pause()
	if m.CompleteLinkFn != nil {
		return m.CompleteLinkFn(ctx, sessionID)
	}
	return []provider.Account{DefaultProviderAccount()}, nil
}

func (m *MockProvider) GetAccounts(ctx context.Context, sessionID string) ([]provider.Account, error) {
	return m.CompleteLink(ctx, sessionID)
}

func (m *MockProvider) GetAccount(ctx context.Context, sessionID, accountID string) (*provider.Account, error) {
	account := DefaultProviderAccount()
	return &account, nil
}

func (m *MockProvider) GetBalance(ctx context.Context, sessionID, accountID string) (*provider.Balance, error) {
	m.GetBalanceCalls.Add(1)
	m.pause()
	if m.GetBalanceFn != nil {
		return m.GetBalanceFn(ctx, sessionID, accountID)
	}
	return &provider.Balance{
		Current:  decimal.RequireFromString("1250.75"),
		Currency: "EUR",
		AsOf:     time.Now(),
	}, nil
}

func (m *MockProvider) GetTransactions(ctx context.Context, sessionID, accountID string, from, to time.Time) ([]provider.Transaction, error) {
	m.GetTransactionsCalls.Add(1)
	m.pause()
	if m.GetTransactionsFn != nil {
		return m.GetTransactionsFn(ctx, sessionID, accountID, from, to)
	}
	return []provider.Transaction{
		{
			ProviderTxID: "tx-1",
			Date:         to.AddDate(0, 0, -1),
			Amount:       decimal.RequireFromString("-42.50"),
			Currency:     "EUR",
			Description:  "Groceries",
		},
	}, nil
}

func (m *MockProvider) RevokeLink(ctx context.Context, sessionID string) error {
	m.RevokeLinkCalls.Add(1)
	m.pause()
	if m.RevokeLinkFn != nil {
		return m.RevokeLinkFn(ctx, sessionID)
	}
	return nil
}

func (m *MockProvider) ListInstitutions(ctx context.Context, country string) ([]provider.Institution, error) {
	return []provider.Institution{
		{ID: "fake_bank", Name: "Fake Bank", Country: country},
	}, nil
}

// DefaultProviderAccount is the account the mock provider reports unless a
// test overrides CompleteLinkFn.
func DefaultProviderAccount() provider.Account {
	return provider.Account{
		ProviderAccountID: "acct-1",
		Name:              "Main Checking",
		AccountNumber:     "DE89370400440532013000",
		Currency:          "EUR",
		Type:              domain.AccountChecking,
		Balance:           decimal.RequireFromString("1250.75"),
	}
}
