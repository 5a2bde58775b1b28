package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbridge/banklink/internal/domain"
)

func TestSyncLog_Finalize(t *testing.T) {
	t.Run("records a successful attempt", func(t *testing.T) {
		log := domain.NewSyncLog(uuid.New(), "saltedge")

		log.Finalize(domain.SyncSucceeded, 1, 42, "", "")

		require.NotNil(t, log.CompletedAt)
		assert.Equal(t, domain.SyncSucceeded, log.Status)
		assert.Equal(t, 1, log.AccountsSynced)
		assert.Equal(t, 42, log.TransactionsSynced)
		assert.Nil(t, log.ErrorCode)
		assert.Nil(t, log.ErrorMessage)
	})

	t.Run("records failure details", func(t *testing.T) {
		log := domain.NewSyncLog(uuid.New(), "nordigen")

		log.Finalize(domain.SyncFailed, 0, 0, "TIMEOUT", "balance fetch timed out")

		require.NotNil(t, log.ErrorCode)
		assert.Equal(t, "TIMEOUT", *log.ErrorCode)
		require.NotNil(t, log.ErrorMessage)
		assert.Equal(t, "balance fetch timed out", *log.ErrorMessage)
	})

	t.Run("second finalize is ignored", func(t *testing.T) {
		log := domain.NewSyncLog(uuid.New(), "saltedge")
		log.Finalize(domain.SyncPartial, 1, 10, "UNAVAILABLE", "transactions fetch failed")
		completedAt := *log.CompletedAt

		log.Finalize(domain.SyncSucceeded, 2, 99, "", "")

		assert.Equal(t, domain.SyncPartial, log.Status)
		assert.Equal(t, 10, log.TransactionsSynced)
		assert.Equal(t, completedAt, *log.CompletedAt)
	})
}
