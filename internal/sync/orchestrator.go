package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/finbridge/banklink/internal/config"
	"github.com/finbridge/banklink/internal/domain"
	"github.com/finbridge/banklink/internal/provider"
	"github.com/finbridge/banklink/internal/quota"
)

// Orchestrator routes link-flow and sync requests to provider adapters.
// Same-account syncs are coalesced into a single flight, cross-account syncs
// run in parallel under a global bound, and link-flow operations are
// serialized per connection.
type Orchestrator struct {
	registry *provider.Registry
	store    Store
	quotas   *quota.Monitor
	logger   *slog.Logger

	callTimeout time.Duration
	windowDays  int
	linkTTL     time.Duration

	syncGroup singleflight.Group
	sem       *semaphore.Weighted
	connLocks *keyedMutex
}

func NewOrchestrator(
	registry *provider.Registry,
	store Store,
	quotas *quota.Monitor,
	cfg config.SyncConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		store:       store,
		quotas:      quotas,
		logger:      logger,
		callTimeout: cfg.CallTimeout,
		windowDays:  cfg.WindowDays,
		linkTTL:     cfg.LinkSessionTTL,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrent),
		connLocks:   newKeyedMutex(),
	}
}

// InitiateLink starts a link flow for the user. An explicit provider choice is
// honored; otherwise routing prefers the primary provider while it has quota
// headroom, then falls back to any provider that does. The quota slot is
// reserved here so racing initiations cannot oversubscribe the ceiling.
func (o *Orchestrator) InitiateLink(ctx context.Context, userID, providerName, institutionHint string) (*domain.Connection, error) {
	p, err := o.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	session, err := p.InitiateLink(callCtx, userID, institutionHint)
	if err != nil {
		o.quotas.Release(p.Name())
		return nil, err
	}

	expiresAt := session.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(o.linkTTL)
	}

	conn, err := domain.NewConnection(userID, p.Name(), session.SessionID, session.RedirectURL, expiresAt)
	if err != nil {
		o.quotas.Release(p.Name())
		return nil, err
	}

	if err := o.store.CreateConnection(ctx, conn); err != nil {
		o.quotas.Release(p.Name())
		return nil, err
	}

	o.logger.Info("link initiated",
		"connection_id", conn.ID,
		"user_id", userID,
		"provider", p.Name(),
	)
	return conn, nil
}

// GetLinkStatus reports the connection's status, folding in the provider-side
// session state. Expiry is evaluated lazily here against ExpiresAt.
func (o *Orchestrator) GetLinkStatus(ctx context.Context, connectionID uuid.UUID) (domain.LinkStatus, error) {
	unlock := o.connLocks.Lock(connectionID.String())
	defer unlock()

	conn, err := o.store.GetConnection(ctx, connectionID)
	if err != nil {
		return "", err
	}
	if conn.IsTerminal() {
		return conn.Status, nil
	}

	if conn.IsExpired(time.Now()) {
		if err := o.expireConnection(ctx, conn); err != nil {
			return "", err
		}
		return conn.Status, nil
	}
	if conn.Status != domain.StatusPending {
		return conn.Status, nil
	}

	p, err := o.registry.Get(conn.Provider)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	sessionStatus, err := p.GetLinkStatus(callCtx, conn.ProviderSessionID)
	if err != nil {
		return "", err
	}

	switch sessionStatus {
	case provider.SessionActive, provider.SessionCompleted:
		if err := conn.Authorize(time.Now()); err != nil {
			return "", err
		}
		if err := o.store.UpdateConnection(ctx, conn); err != nil {
			return "", err
		}
	case provider.SessionExpired:
		return domain.StatusExpired, o.expireConnection(ctx, conn)
	case provider.SessionSuspended:
		return domain.StatusRevoked, o.suspendLocked(ctx, conn)
	}
	return conn.Status, nil
}

// CompleteLink fetches and persists the accounts discovered by an authorized
// session, then marks the connection COMPLETED. Idempotent: a completed
// connection returns its stored accounts. If account persistence fails the
// connection stays ACTIVE and completion can be retried.
func (o *Orchestrator) CompleteLink(ctx context.Context, sessionID string) ([]*domain.Account, error) {
	conn, err := o.store.GetConnectionBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	unlock := o.connLocks.Lock(conn.ID.String())
	defer unlock()

	// Reload under the lock; a concurrent revoke may have landed.
	conn, err = o.store.GetConnection(ctx, conn.ID)
	if err != nil {
		return nil, err
	}

	switch conn.Status {
	case domain.StatusRevoked:
		return nil, domain.NewConnectionRevokedError(conn.ID.String())
	case domain.StatusExpired:
		return nil, domain.NewLinkExpiredError(conn.ID.String())
	case domain.StatusCompleted:
		return o.store.ListAccountsByConnection(ctx, conn.ID)
	}

	p, err := o.registry.Get(conn.Provider)
	if err != nil {
		return nil, err
	}

	if conn.Status == domain.StatusPending {
		if conn.IsExpired(time.Now()) {
			if err := o.expireConnection(ctx, conn); err != nil {
				return nil, err
			}
			return nil, domain.NewLinkExpiredError(conn.ID.String())
		}

		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		sessionStatus, err := p.GetLinkStatus(callCtx, conn.ProviderSessionID)
		cancel()
		if err != nil {
			return nil, err
		}
		if sessionStatus != provider.SessionActive && sessionStatus != provider.SessionCompleted {
			return nil, domain.NewLinkNotReadyError(conn.Status)
		}
		if err := conn.Authorize(time.Now()); err != nil {
			return nil, err
		}
		if err := o.store.UpdateConnection(ctx, conn); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	provAccounts, err := p.CompleteLink(callCtx, conn.ProviderSessionID)
	if err != nil {
		if CategorizeError(err) == CategoryAuthorization {
			if suspendErr := o.suspendLocked(ctx, conn); suspendErr != nil {
				o.logger.Error("failed to suspend connection", "connection_id", conn.ID, "error", suspendErr)
			}
		}
		return nil, err
	}

	accounts := mapAccounts(conn.ID, provAccounts, time.Now())
	if len(accounts) == 0 {
		o.logger.Warn("provider reported no accounts for authorized session",
			"connection_id", conn.ID,
			"provider", conn.Provider,
		)
		return accounts, nil
	}

	if err := o.store.UpsertAccounts(ctx, accounts); err != nil {
		// Connection stays ACTIVE so completion can be retried.
		return nil, err
	}

	if err := conn.Complete(); err != nil {
		return nil, err
	}
	if err := o.store.UpdateConnection(ctx, conn); err != nil {
		return nil, err
	}

	o.logger.Info("link completed",
		"connection_id", conn.ID,
		"provider", conn.Provider,
		"accounts", len(accounts),
	)
	return accounts, nil
}

// SyncAccount fetches the current balance and a bounded transaction window
// for one account. Concurrent requests for the same account coalesce into one
// flight; the second caller observes the first's result. Partial results are
// persisted, never rolled back.
func (o *Orchestrator) SyncAccount(ctx context.Context, accountID uuid.UUID) (*domain.SyncLog, error) {
	result, err, _ := o.syncGroup.Do(accountID.String(), func() (any, error) {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer o.sem.Release(1)
		return o.syncAccount(ctx, accountID)
	})
	if result == nil {
		return nil, err
	}
	return result.(*domain.SyncLog), err
}

func (o *Orchestrator) syncAccount(ctx context.Context, accountID uuid.UUID) (*domain.SyncLog, error) {
	account, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	conn, err := o.store.GetConnection(ctx, account.ConnectionID)
	if err != nil {
		return nil, err
	}
	switch conn.Status {
	case domain.StatusRevoked, domain.StatusExpired:
		return nil, domain.NewConnectionRevokedError(conn.ID.String())
	case domain.StatusPending, domain.StatusActive:
		return nil, domain.NewLinkNotReadyError(conn.Status)
	}

	p, err := o.registry.Get(conn.Provider)
	if err != nil {
		return nil, err
	}

	syncLog := domain.NewSyncLog(account.ID, conn.Provider)
	if err := o.store.AppendSyncLog(ctx, syncLog); err != nil {
		return nil, err
	}

	balErr := o.syncBalance(ctx, p, conn, account)
	txCount, txErr := o.syncTransactions(ctx, p, conn, account)

	now := time.Now()
	firstErr := balErr
	if firstErr == nil {
		firstErr = txErr
	}

	accountsSynced := 0
	if balErr == nil {
		accountsSynced = 1
	}

	if firstErr == nil {
		account.SyncStatus = domain.SyncOK
		account.SyncErrorMsg = nil
	} else {
		msg := firstErr.Error()
		account.SyncStatus = domain.SyncError
		account.SyncErrorMsg = &msg
	}
	if balErr == nil || txErr == nil {
		account.LastSyncedAt = &now
	}

	if err := o.store.UpdateAccountSyncState(ctx, account); err != nil {
		o.logger.Error("failed to persist account sync state",
			"account_id", account.ID,
			"error", err,
		)
		if firstErr == nil {
			firstErr = err
		}
	}

	if CategorizeError(firstErr) == CategoryAuthorization {
		o.suspendConnection(ctx, conn.ID)
	}

	switch {
	case balErr == nil && txErr == nil:
		syncLog.Finalize(domain.SyncSucceeded, accountsSynced, txCount, "", "")
	case balErr != nil && txErr != nil:
		syncLog.Finalize(domain.SyncFailed, 0, 0, errorCode(firstErr), firstErr.Error())
	default:
		syncLog.Finalize(domain.SyncPartial, accountsSynced, txCount, errorCode(firstErr), firstErr.Error())
	}

	if err := o.store.FinalizeSyncLog(ctx, syncLog); err != nil {
		o.logger.Error("failed to finalize sync log", "sync_log_id", syncLog.ID, "error", err)
	}

	if syncLog.Status == domain.SyncFailed {
		return syncLog, firstErr
	}
	return syncLog, nil
}

func (o *Orchestrator) syncBalance(ctx context.Context, p provider.Provider, conn *domain.Connection, account *domain.Account) error {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	balance, err := p.GetBalance(callCtx, conn.ProviderSessionID, account.ProviderAccountID)
	if err != nil {
		return err
	}
	account.Balance = balance.Current
	account.AvailableBalance = balance.Available
	return nil
}

func (o *Orchestrator) syncTransactions(ctx context.Context, p provider.Provider, conn *domain.Connection, account *domain.Account) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	to := time.Now()
	from := to.AddDate(0, 0, -o.windowDays)

	provTxs, err := p.GetTransactions(callCtx, conn.ProviderSessionID, account.ProviderAccountID, from, to)
	if err != nil {
		return 0, err
	}
	if len(provTxs) == 0 {
		return 0, nil
	}
	return o.store.UpsertTransactions(ctx, mapTransactions(account.ID, provTxs))
}

// RevokeConnection disconnects locally no matter what the provider says: a
// remote revoke failure is logged and the local state still flips, because
// local state is authoritative for the caller.
func (o *Orchestrator) RevokeConnection(ctx context.Context, connectionID uuid.UUID) error {
	unlock := o.connLocks.Lock(connectionID.String())
	defer unlock()

	conn, err := o.store.GetConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if conn.Status == domain.StatusRevoked {
		return nil
	}

	if p, err := o.registry.Get(conn.Provider); err == nil {
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		if err := p.RevokeLink(callCtx, conn.ProviderSessionID); err != nil {
			o.logger.Error("remote revoke failed, local state is authoritative",
				"connection_id", conn.ID,
				"provider", conn.Provider,
				"error", err,
			)
		}
		cancel()
	}

	// Expired connections already gave their quota slot back.
	wasCounted := conn.Status != domain.StatusExpired

	if err := conn.Revoke(time.Now()); err != nil {
		return err
	}
	if err := o.store.UpdateConnection(ctx, conn); err != nil {
		return err
	}
	if wasCounted {
		o.quotas.Release(conn.Provider)
	}

	o.logger.Info("connection revoked", "connection_id", conn.ID, "provider", conn.Provider)
	return nil
}

// ListAccounts is a read accessor for the caller-facing gateway.
func (o *Orchestrator) ListAccounts(ctx context.Context, connectionID uuid.UUID) ([]*domain.Account, error) {
	return o.store.ListAccountsByConnection(ctx, connectionID)
}

// ListInstitutions passes through to the named provider, or the primary one.
func (o *Orchestrator) ListInstitutions(ctx context.Context, providerName, country string) ([]provider.Institution, error) {
	if providerName == "" {
		providerName = o.registry.Primary()
	}
	p, err := o.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return p.ListInstitutions(callCtx, country)
}

func (o *Orchestrator) resolveProvider(explicit string) (provider.Provider, error) {
	if explicit != "" {
		p, err := o.registry.Get(explicit)
		if err != nil {
			return nil, err
		}
		if err := o.quotas.Reserve(explicit); err != nil {
			return nil, err
		}
		return p, nil
	}

	var lastErr error
	for _, name := range o.registry.Names() {
		if err := o.quotas.Reserve(name); err != nil {
			lastErr = err
			continue
		}
		p, err := o.registry.Get(name)
		if err != nil {
			o.quotas.Release(name)
			return nil, err
		}
		if name != o.registry.Primary() {
			o.logger.Warn("primary provider out of quota headroom, failing over",
				"provider", name,
			)
		}
		return p, nil
	}
	return nil, lastErr
}

// suspendConnection revokes locally after an authorization failure reported
// by the provider. Takes the connection lock itself.
func (o *Orchestrator) suspendConnection(ctx context.Context, connectionID uuid.UUID) {
	unlock := o.connLocks.Lock(connectionID.String())
	defer unlock()

	conn, err := o.store.GetConnection(ctx, connectionID)
	if err != nil {
		o.logger.Error("failed to load connection for suspension", "connection_id", connectionID, "error", err)
		return
	}
	if err := o.suspendLocked(ctx, conn); err != nil {
		o.logger.Error("failed to suspend connection", "connection_id", connectionID, "error", err)
	}
}

func (o *Orchestrator) suspendLocked(ctx context.Context, conn *domain.Connection) error {
	if conn.Status == domain.StatusRevoked {
		return nil
	}
	wasCounted := conn.Status != domain.StatusExpired
	if err := conn.Revoke(time.Now()); err != nil {
		return err
	}
	if err := o.store.UpdateConnection(ctx, conn); err != nil {
		return err
	}
	if wasCounted {
		o.quotas.Release(conn.Provider)
	}
	o.logger.Warn("connection suspended, user must re-link",
		"connection_id", conn.ID,
		"provider", conn.Provider,
	)
	return nil
}

// expireConnection finalizes a pending session that outlived its window and
// gives the quota slot back.
func (o *Orchestrator) expireConnection(ctx context.Context, conn *domain.Connection) error {
	if err := conn.Expire(); err != nil {
		return err
	}
	if err := o.store.UpdateConnection(ctx, conn); err != nil {
		return err
	}
	o.quotas.Release(conn.Provider)
	o.logger.Info("pending link expired", "connection_id", conn.ID, "provider", conn.Provider)
	return nil
}
