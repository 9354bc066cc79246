package goOTP

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID names one in-process counter.
type MetricID uint16

const (
	MetricChallengeRequested MetricID = iota
	MetricChallengeRequestFailed
	MetricChallengeVerified
	MetricChallengeInvalidCode
	MetricChallengeExhausted
	MetricChallengeResent
	MetricCooldownRejected
	MetricPasswordLoginSuccess
	MetricPasswordLoginFailure
	MetricRegistrationSuccess
	MetricRegistrationDuplicate
	MetricLogout
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricSessionExpired
	MetricSessionTerminated
	MetricProfileUpdated
	MetricRouteDenied
	MetricRequestInFlight
	MetricBackendUnavailable
	MetricVerifyLatency
	metricIDCount
)

// LatencyBounds are the inclusive upper bounds of the verify latency
// buckets. One more bucket counts everything slower than the last bound.
var LatencyBounds = [...]time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2500 * time.Millisecond,
	5 * time.Second,
}

const latencyBucketCount = len(LatencyBounds) + 1

type latencyHistogram struct {
	buckets [latencyBucketCount]atomic.Uint64
	sum     atomic.Int64
}

// counter sits alone on a cache line so hot counters do not contend.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and the verify latency histogram.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled bool
	latency bool
	counts  [metricIDCount]counter
	verify  latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Histograms hold per-bucket (not cumulative) counts aligned with
// [LatencyBounds]; Sums holds the total observed duration per histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	Sums       map[MetricID]time.Duration
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
		Sums:       map[MetricID]time.Duration{},
	}
}

// NewMetrics creates a [Metrics] set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount || id == MetricVerifyLatency {
		return
	}
	m.counts[id].Add(1)
}

// Observe records d in the histogram of id. Only MetricVerifyLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricVerifyLatency {
		return
	}
	m.verify.buckets[latencyBucket(d)].Add(1)
	m.verify.sum.Add(int64(d))
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counts[id].Load()
}

// Snapshot copies all values. Disabled metrics return empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := emptySnapshot()
	if !m.Enabled() {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id != MetricVerifyLatency {
			s.Counters[id] = m.counts[id].Load()
		}
	}
	if m.latency {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = m.verify.buckets[i].Load()
		}
		s.Histograms[MetricVerifyLatency] = buckets
		s.Sums[MetricVerifyLatency] = time.Duration(m.verify.sum.Load())
	}
	return s
}

func latencyBucket(d time.Duration) int {
	return sort.Search(len(LatencyBounds), func(i int) bool { return d <= LatencyBounds[i] })
}
