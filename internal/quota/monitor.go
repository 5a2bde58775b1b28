// Package quota tracks authorized-connection counts per provider against plan
// ceilings. It is advisory: it gates new link initiations and feeds the
// routing decision, but never blocks an in-flight sync.
package quota

import (
	"log/slog"
	"sync"

	"github.com/finbridge/banklink/internal/domain"
)

// Usage is the fast-path snapshot served to callers.
type Usage struct {
	Count       int
	Limit       int
	PercentUsed float64
}

// Notifier receives a signal the first time a provider crosses its alert
// threshold. Implementations must not block.
type Notifier interface {
	QuotaThresholdReached(provider string, usage Usage)
}

// Monitor owns the per-provider counters behind one lock. A Limit of zero
// means the provider has no configured ceiling.
type Monitor struct {
	mu       sync.RWMutex
	counters map[string]int
	limits   map[string]int
	alerted  map[string]bool

	threshold float64
	notifier  Notifier
	logger    *slog.Logger
}

func NewMonitor(limits map[string]int, threshold float64, notifier Notifier, logger *slog.Logger) *Monitor {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &Monitor{
		counters:  make(map[string]int),
		limits:    limits,
		alerted:   make(map[string]bool),
		threshold: threshold,
		notifier:  notifier,
		logger:    logger,
	}
}

// Seed loads persisted counters at startup.
func (m *Monitor) Seed(counters map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for provider, count := range counters {
		m.counters[provider] = count
	}
}

// Usage returns the current snapshot for one provider.
func (m *Monitor) Usage(provider string) Usage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usageLocked(provider)
}

func (m *Monitor) usageLocked(provider string) Usage {
	u := Usage{
		Count: m.counters[provider],
		Limit: m.limits[provider],
	}
	if u.Limit > 0 {
		u.PercentUsed = float64(u.Count) / float64(u.Limit)
	}
	return u
}

// HasHeadroom reports whether a new link initiation is allowed.
func (m *Monitor) HasHeadroom(provider string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u := m.usageLocked(provider)
	return u.Limit == 0 || u.Count < u.Limit
}

// RequiresAction reports whether usage has crossed the alert threshold and an
// operator should arrange failover or a plan upgrade.
func (m *Monitor) RequiresAction(provider string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u := m.usageLocked(provider)
	return u.Limit > 0 && u.PercentUsed >= m.threshold
}

// Reserve claims one connection slot. Fails with QUOTA_EXCEEDED at the
// ceiling; on success the threshold alert fires once per crossing.
func (m *Monitor) Reserve(provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usageLocked(provider)
	if u.Limit > 0 && u.Count >= u.Limit {
		return domain.NewQuotaExceededError(provider, u.Count, u.Limit)
	}

	m.counters[provider]++
	after := m.usageLocked(provider)

	if after.Limit > 0 && after.PercentUsed >= m.threshold && !m.alerted[provider] {
		m.alerted[provider] = true
		m.logger.Warn("provider quota crossed alert threshold",
			"provider", provider,
			"count", after.Count,
			"limit", after.Limit,
		)
		if m.notifier != nil {
			m.notifier.QuotaThresholdReached(provider, after)
		}
	}
	return nil
}

// Release returns one connection slot after a revocation. Re-arms the
// threshold alert once usage drops back under it.
func (m *Monitor) Release(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.counters[provider] > 0 {
		m.counters[provider]--
	}
	u := m.usageLocked(provider)
	if u.Limit == 0 || u.PercentUsed < m.threshold {
		m.alerted[provider] = false
	}
}
