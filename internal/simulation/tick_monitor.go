package simulation

import (
	"sync"
	"time"
)

// TickMetricsSnapshot summarises observed step durations.
type TickMetricsSnapshot struct {
	Samples int           `json:"samples"`
	Skipped int           `json:"skipped"`
	Average time.Duration `json:"average"`
	Max     time.Duration `json:"max"`
	Last    time.Duration `json:"last"`
}

// AverageFPS derives the steps-per-second equivalent of the average step cost.
func (s TickMetricsSnapshot) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for the simulation loop.
type TickMonitor struct {
	mu      sync.Mutex
	samples int
	skipped int
	total   time.Duration
	max     time.Duration
	last    time.Duration
}

// NewTickMonitor constructs an empty monitor.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// Observe records the cost of one completed step.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
}

// Skip counts fixed steps dropped after a stall.
func (m *TickMonitor) Skip(steps int) {
	if m == nil || steps <= 0 {
		return
	}
	m.mu.Lock()
	m.skipped += steps
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := TickMetricsSnapshot{Samples: m.samples, Skipped: m.skipped, Max: m.max, Last: m.last}
	if m.samples > 0 {
		snap.Average = m.total / time.Duration(m.samples)
	}
	return snap
}

// Reset clears the accumulated statistics.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.samples, m.skipped = 0, 0
	m.total, m.max, m.last = 0, 0, 0
	m.mu.Unlock()
}
