// Package worker runs the background loops: the scheduled account sweep and
// the pending-link expiry check.
package worker

import (
	"context"
	"log/slog"
	stdsync "sync"

	"github.com/robfig/cron/v3"

	"github.com/finbridge/banklink/internal/domain"
	"github.com/finbridge/banklink/internal/sync"
)

// SyncWorker runs the periodic synchronization sweep on a cron schedule.
// Per-sweep parallelism is left to the orchestrator's global concurrency
// bound; this only fans the batch out.
type SyncWorker struct {
	orchestrator *sync.Orchestrator
	store        sync.Store
	schedule     string
	batchSize    int
	logger       *slog.Logger
}

func NewSyncWorker(
	orchestrator *sync.Orchestrator,
	store sync.Store,
	schedule string,
	batchSize int,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		orchestrator: orchestrator,
		store:        store,
		schedule:     schedule,
		batchSize:    batchSize,
		logger:       logger,
	}
}

func (w *SyncWorker) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(w.schedule, func() {
		w.runSweep(ctx)
	})
	if err != nil {
		return err
	}

	w.logger.Info("sync worker started", "schedule", w.schedule)
	c.Start()

	<-ctx.Done()
	w.logger.Info("sync worker stopping")
	<-c.Stop().Done()
	return nil
}

func (w *SyncWorker) runSweep(ctx context.Context) {
	accounts, err := w.store.ListSyncableAccounts(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list syncable accounts", "error", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	var wg stdsync.WaitGroup
	var mu stdsync.Mutex
	var succeeded, partial, failed int

	for _, account := range accounts {
		wg.Add(1)
		go func(account *domain.Account) {
			defer wg.Done()

			syncLog, err := w.orchestrator.SyncAccount(ctx, account.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failed++
				w.logger.Error("scheduled sync failed",
					"account_id", account.ID,
					"error", err,
				)
			case syncLog.Status == domain.SyncPartial:
				partial++
			default:
				succeeded++
			}
		}(account)
	}
	wg.Wait()

	w.logger.Info("sync sweep finished",
		"accounts", len(accounts),
		"succeeded", succeeded,
		"partial", partial,
		"failed", failed,
	)
}
