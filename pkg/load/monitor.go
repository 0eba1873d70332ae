// Package load infers power-supply stress from how often servo commands are
// dispatched. Many commands in quick succession on a hobby arm usually mean
// several servos drawing peak current at once, which is what browns out the
// supply; there is no electrical measurement behind this.
package load

import (
	"sync"
	"time"
)

// Defaults for the cadence heuristic.
const (
	DefaultRapidThreshold = 100 * time.Millisecond
	DefaultRapidLimit     = 20

	// UnstableMultiplier stretches the tick period while unstable.
	UnstableMultiplier = 1.5
)

// Monitor tracks dispatch cadence across all joints. It is safe for
// concurrent use.
type Monitor struct {
	threshold time.Duration
	limit     int

	mu     sync.Mutex
	last   time.Time
	rapid  int
	stable bool
}

// NewMonitor returns a monitor that flags instability after more than limit
// consecutive dispatches closer together than threshold. Zero values select
// the defaults.
func NewMonitor(threshold time.Duration, limit int) *Monitor {
	if threshold <= 0 {
		threshold = DefaultRapidThreshold
	}
	if limit <= 0 {
		limit = DefaultRapidLimit
	}
	return &Monitor{
		threshold: threshold,
		limit:     limit,
		stable:    true,
	}
}

// Observe records a dispatch at t. It returns changed=true when the stability
// flag flipped, along with the new flag.
func (m *Monitor) Observe(t time.Time) (changed, stable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	first := m.last.IsZero()
	dt := t.Sub(m.last)
	m.last = t

	if !first && dt < m.threshold {
		m.rapid++
		if m.rapid > m.limit && m.stable {
			m.stable = false
			return true, false
		}
		return false, m.stable
	}

	m.rapid = 0
	if !m.stable {
		m.stable = true
		return true, true
	}
	return false, true
}

// Stable reports the current stability flag.
func (m *Monitor) Stable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stable
}

// Multiplier returns the tick-period multiplier for the current state.
func (m *Monitor) Multiplier() float64 {
	if m.Stable() {
		return 1
	}
	return UnstableMultiplier
}

// Reset forgets the dispatch history and marks the supply stable.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = time.Time{}
	m.rapid = 0
	m.stable = true
}
