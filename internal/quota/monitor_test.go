package quota_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbridge/banklink/internal/domain"
	"github.com/finbridge/banklink/internal/quota"
)

type recordingNotifier struct {
	calls []quota.Usage
}

func (n *recordingNotifier) QuotaThresholdReached(provider string, usage quota.Usage) {
	n.calls = append(n.calls, usage)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMonitor_Reserve(t *testing.T) {
	t.Run("allows reservations up to the ceiling", func(t *testing.T) {
		m := quota.NewMonitor(map[string]int{"saltedge": 80}, 0.8, nil, testLogger())
		m.Seed(map[string]int{"saltedge": 79})

		err := m.Reserve("saltedge")

		require.NoError(t, err)
		assert.Equal(t, 80, m.Usage("saltedge").Count)
	})

	t.Run("rejects at the ceiling without incrementing", func(t *testing.T) {
		m := quota.NewMonitor(map[string]int{"saltedge": 80}, 0.8, nil, testLogger())
		m.Seed(map[string]int{"saltedge": 80})

		err := m.Reserve("saltedge")

		require.Error(t, err)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeQuotaExceeded))
		assert.Equal(t, 80, m.Usage("saltedge").Count)
	})

	t.Run("unlimited when no ceiling is configured", func(t *testing.T) {
		m := quota.NewMonitor(map[string]int{}, 0.8, nil, testLogger())

		for i := 0; i < 500; i++ {
			require.NoError(t, m.Reserve("nordigen"))
		}
		assert.True(t, m.HasHeadroom("nordigen"))
		assert.False(t, m.RequiresAction("nordigen"))
	})
}

func TestMonitor_ThresholdAlert(t *testing.T) {
	t.Run("fires once per crossing", func(t *testing.T) {
		notifier := &recordingNotifier{}
		m := quota.NewMonitor(map[string]int{"saltedge": 10}, 0.8, notifier, testLogger())
		m.Seed(map[string]int{"saltedge": 7})

		require.NoError(t, m.Reserve("saltedge")) // 8/10, crossing
		require.NoError(t, m.Reserve("saltedge")) // 9/10, already alerted

		require.Len(t, notifier.calls, 1)
		assert.Equal(t, 8, notifier.calls[0].Count)
		assert.Equal(t, 10, notifier.calls[0].Limit)
		assert.True(t, m.RequiresAction("saltedge"))
	})

	t.Run("re-arms after usage drops below the threshold", func(t *testing.T) {
		notifier := &recordingNotifier{}
		m := quota.NewMonitor(map[string]int{"saltedge": 10}, 0.8, notifier, testLogger())
		m.Seed(map[string]int{"saltedge": 7})

		require.NoError(t, m.Reserve("saltedge")) // 8/10, fires
		m.Release("saltedge")                     // 7/10, re-arms
		require.NoError(t, m.Reserve("saltedge")) // 8/10, fires again

		assert.Len(t, notifier.calls, 2)
	})
}

func TestMonitor_Release(t *testing.T) {
	t.Run("frees a slot for new reservations", func(t *testing.T) {
		m := quota.NewMonitor(map[string]int{"saltedge": 1}, 0.8, nil, testLogger())
		require.NoError(t, m.Reserve("saltedge"))
		require.Error(t, m.Reserve("saltedge"))

		m.Release("saltedge")

		assert.NoError(t, m.Reserve("saltedge"))
	})

	t.Run("never goes negative", func(t *testing.T) {
		m := quota.NewMonitor(map[string]int{"saltedge": 10}, 0.8, nil, testLogger())

		m.Release("saltedge")

		assert.Equal(t, 0, m.Usage("saltedge").Count)
	})
}

func TestMonitor_Usage(t *testing.T) {
	m := quota.NewMonitor(map[string]int{"saltedge": 80}, 0.8, nil, testLogger())
	m.Seed(map[string]int{"saltedge": 20})

	u := m.Usage("saltedge")

	assert.Equal(t, 20, u.Count)
	assert.Equal(t, 80, u.Limit)
	assert.InDelta(t, 0.25, u.PercentUsed, 1e-9)
}
