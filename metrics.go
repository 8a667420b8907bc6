package boxumco

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginInactive
	MetricLoginRateLimited
	MetricMFARequired
	MetricMFASuccess
	MetricMFAFailure
	MetricMFAChallengeExpired
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRegistrationSuccess
	MetricRegistrationDuplicate
	MetricVerificationEmailSent
	MetricVerificationEmailQueued
	MetricEmailConfirmed
	MetricEmailConfirmFailure
	MetricTOTPEnrollmentStarted
	MetricTOTPEnrollmentConfirmed
	MetricTOTPEnrollmentFailure
	MetricTOTPDisabled
	MetricTOTPReplayRejected
	MetricPasswordChangeSuccess
	MetricPasswordChangeWrongPassword
	MetricPasswordRehashed
	MetricProfileUpdated
	MetricAccountDeleted
	MetricLoginLatency
	MetricRegistrationLatency
	metricIDCount
)

// HistogramBucketCount is the number of latency buckets per histogram.
const HistogramBucketCount = 8

// latencyBounds are the inclusive upper bounds of the first seven buckets;
// the last bucket takes everything slower. Password hashing dominates both
// timed operations, so the low end is coarse.
var latencyBounds = [HistogramBucketCount - 1]time.Duration{
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// histogramSlot maps the two latency ids onto Metrics.latency.
func histogramSlot(id MetricID) (int, bool) {
	switch id {
	case MetricLoginLatency:
		return 0, true
	case MetricRegistrationLatency:
		return 1, true
	}
	return 0, false
}

// counterCell sits on its own cache line so hot counters do not contend.
type counterCell struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters and latency histograms. A nil
// *Metrics records nothing.
type Metrics struct {
	enabled bool
	latency bool
	cells   [metricIDCount]counterCell
	buckets [2][HistogramBucketCount]atomic.Uint64
}

// MetricsSnapshot is a copy of all counters and histogram buckets.
// Histogram buckets are non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled, latency: cfg.Enabled && cfg.EnableLatencyHistograms}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

// Inc adds one to a counter. Histogram ids are ignored.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	if _, hist := histogramSlot(id); hist {
		return
	}
	m.cells[id].Add(1)
}

// Observe records d into a latency histogram. Counter ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.latency {
		return
	}
	slot, ok := histogramSlot(id)
	if !ok {
		return
	}
	i := sort.Search(len(latencyBounds), func(i int) bool { return d <= latencyBounds[i] })
	m.buckets[slot][i].Add(1)
}

// Value returns a counter value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.cells[id].Load()
}

// Snapshot copies the current values. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if _, hist := histogramSlot(id); !hist {
			snap.Counters[id] = m.cells[id].Load()
		}
	}
	if !m.latency {
		return snap
	}
	for _, id := range []MetricID{MetricLoginLatency, MetricRegistrationLatency} {
		slot, _ := histogramSlot(id)
		out := make([]uint64, HistogramBucketCount)
		for i := range out {
			out[i] = m.buckets[slot][i].Load()
		}
		snap.Histograms[id] = out
	}
	return snap
}
