package sync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()

	var inCritical, maxInCritical int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("conn-1")
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical, "holders of one key never overlap")
}

func TestKeyedMutex_ReapsIdleEntries(t *testing.T) {
	k := newKeyedMutex()

	unlock := k.Lock("conn-1")
	k.mu.Lock()
	require.Len(t, k.locks, 1)
	k.mu.Unlock()

	unlock()
	k.mu.Lock()
	assert.Empty(t, k.locks, "the entry is deleted once the last holder unlocks")
	k.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("conn-2")
			unlock()
		}()
	}
	wg.Wait()

	k.mu.Lock()
	assert.Empty(t, k.locks, "contended keys are reaped too")
	k.mu.Unlock()
}
