package health

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/clock"
)

// Status values reported by /health.
const (
	StatusHealthy      = "healthy"
	StatusDegraded     = "degraded"
	StatusShuttingDown = "shutting-down"
)

// Report is the JSON body of the health endpoint.
type Report struct {
	Status       string  `json:"status"`
	Service      string  `json:"service"`
	Requests     int     `json:"requests"`
	Errors       int     `json:"errors"`
	Denied       int     `json:"denied"`
	ErrorRatePct float64 `json:"errorRatePct"`
}

// Monitor keeps sliding windows of request outcomes and derives a status
// from them. Denials are counted but excluded from the error rate.
type Monitor struct {
	clock       clock.Clock
	window      time.Duration
	degradedPct float64

	mu           sync.Mutex
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time

	shuttingDown atomic.Bool
}

// NewMonitor creates a Monitor. degradedPct is the error percentage (0-100)
// at or above which Status reports degraded. A nil clock uses the wall clock.
func NewMonitor(c clock.Clock, window time.Duration, degradedPct float64) *Monitor {
	if c == nil {
		c = clock.Real{}
	}
	return &Monitor{clock: c, window: window, degradedPct: degradedPct}
}

func (m *Monitor) RecordSuccess() { m.record(&m.successTimes) }

func (m *Monitor) RecordError() { m.record(&m.errorTimes) }

// RecordDenied records a rate-limit denial.
func (m *Monitor) RecordDenied() { m.record(&m.deniedTimes) }

func (m *Monitor) record(slice *[]time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	*slice = append(*slice, now)
	m.pruneLocked(now)
}

// SetShuttingDown marks the process as draining. It cannot be undone.
func (m *Monitor) SetShuttingDown() { m.shuttingDown.Store(true) }

// ShuttingDown reports whether SetShuttingDown has been called.
func (m *Monitor) ShuttingDown() bool { return m.shuttingDown.Load() }

// Report summarizes the current window.
func (m *Monitor) Report(service string) Report {
	m.mu.Lock()
	now := m.clock.Now()
	m.pruneLocked(now)
	errs := len(m.errorTimes)
	total := errs + len(m.successTimes)
	denied := len(m.deniedTimes)
	m.mu.Unlock()

	r := Report{
		Status:   StatusHealthy,
		Service:  service,
		Requests: total,
		Errors:   errs,
		Denied:   denied,
	}
	if total > 0 {
		r.ErrorRatePct = float64(errs) * 100 / float64(total)
	}
	switch {
	case m.ShuttingDown():
		r.Status = StatusShuttingDown
	case total > 0 && m.degradedPct > 0 && r.ErrorRatePct >= m.degradedPct:
		r.Status = StatusDegraded
	}
	return r
}

// pruneLocked drops entries older than the window. Callers hold m.mu.
func (m *Monitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.window)
	m.successTimes = pruneBefore(m.successTimes, cutoff)
	m.errorTimes = pruneBefore(m.errorTimes, cutoff)
	m.deniedTimes = pruneBefore(m.deniedTimes, cutoff)
}

// pruneBefore drops the leading entries older than cutoff. times is
// appended in clock order, so the slice is sorted.
func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0:0], times[i:]...)
}
