package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/finbridge/banklink/internal/domain"
	"github.com/finbridge/banklink/internal/sync"
)

// ExpiryWorker sweeps pending connections whose link session outlived its
// window. Expiry is already evaluated lazily on status checks; the sweep
// catches sessions nobody asked about again.
type ExpiryWorker struct {
	orchestrator *sync.Orchestrator
	store        sync.Store
	interval     time.Duration
	batchSize    int
	logger       *slog.Logger
}

func NewExpiryWorker(
	orchestrator *sync.Orchestrator,
	store sync.Store,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *ExpiryWorker {
	return &ExpiryWorker{
		orchestrator: orchestrator,
		store:        store,
		interval:     interval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	w.logger.Info("expiry worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiry worker stopping")
			return
		case <-ticker.C:
			if err := w.processExpirations(ctx); err != nil {
				w.logger.Error("expiry processing failed", "error", err)
			}
		}
	}
}

func (w *ExpiryWorker) processExpirations(ctx context.Context) error {
	pending, err := w.store.ListConnectionsByStatus(ctx, domain.StatusPending, w.batchSize)
	if err != nil {
		return err
	}

	now := time.Now()
	var expired int

	for _, conn := range pending {
		if !conn.IsExpired(now) {
			continue
		}
		// GetLinkStatus performs the lazy expiry under the connection lock.
		status, err := w.orchestrator.GetLinkStatus(ctx, conn.ID)
		if err != nil {
			w.logger.Error("failed to expire pending link",
				"connection_id", conn.ID,
				"error", err,
			)
			continue
		}
		if status == domain.StatusExpired {
			expired++
		}
	}

	if expired > 0 {
		w.logger.Info("expired stale pending links", "count", expired)
	}
	return nil
}
