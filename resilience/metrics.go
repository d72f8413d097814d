package resilience

import (
	"sync"
	"time"
)

// recoveryWindowSize bounds the ring buffer used to compute a rolling
// average recovery duration without retaining unbounded history.
const recoveryWindowSize = 256

// Metrics accumulates aggregate counters across every Manager.Execute call,
// independent of any EventSink a caller may also have attached.
type Metrics struct {
	mu sync.Mutex

	totalCalls         int64
	successfulCalls    int64
	failedCalls        int64
	successfulRetries  int64 // every terminal success, including zero-retry
	totalAttempts      int64

	durations    [recoveryWindowSize]time.Duration
	durationHead int
	durationLen  int
}

// NewMetrics creates an empty Metrics accumulator.
func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) recordOutcome(success bool, attempts int, dur time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalCalls++
	m.totalAttempts += int64(attempts)
	if success {
		m.successfulCalls++
		m.successfulRetries++
	} else {
		m.failedCalls++
	}

	m.durations[m.durationHead] = dur
	m.durationHead = (m.durationHead + 1) % recoveryWindowSize
	if m.durationLen < recoveryWindowSize {
		m.durationLen++
	}
}

// MetricsSnapshot is a point-in-time, immutable copy of a Metrics
// accumulator's counters.
type MetricsSnapshot struct {
	TotalCalls        int64
	SuccessfulCalls   int64
	FailedCalls       int64
	SuccessfulRetries int64
	TotalAttempts     int64
	AvgRecoveryTime   time.Duration
}

// Snapshot returns the current aggregate metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum time.Duration
	for i := 0; i < m.durationLen; i++ {
		sum += m.durations[i]
	}
	var avg time.Duration
	if m.durationLen > 0 {
		avg = sum / time.Duration(m.durationLen)
	}

	return MetricsSnapshot{
		TotalCalls:        m.totalCalls,
		SuccessfulCalls:   m.successfulCalls,
		FailedCalls:       m.failedCalls,
		SuccessfulRetries: m.successfulRetries,
		TotalAttempts:     m.totalAttempts,
		AvgRecoveryTime:   avg,
	}
}
