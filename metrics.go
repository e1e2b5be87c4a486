package keywarden

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricSignupSuccess counts created users.
	MetricSignupSuccess MetricID = iota
	// MetricSignupDuplicate counts sign-ups rejected as EMAIL_EXISTS.
	MetricSignupDuplicate
	// MetricSignupRateLimited counts rate-limited sign-up attempts.
	MetricSignupRateLimited
	// MetricLoginSuccess counts successful sign-ins.
	MetricLoginSuccess
	// MetricLoginFailure counts sign-ins failed on credentials.
	MetricLoginFailure
	// MetricLoginRateLimited counts rate-limited sign-in attempts.
	MetricLoginRateLimited
	// MetricLoginLocked counts sign-ins rejected by an active lockout.
	MetricLoginLocked
	// MetricLockoutTriggered counts lockouts applied by the account guard.
	MetricLockoutTriggered
	// MetricSessionCreated counts issued sessions.
	MetricSessionCreated
	// MetricSessionInvalid counts validations failing as SESSION_INVALID.
	MetricSessionInvalid
	// MetricSessionExpired counts validations failing as SESSION_EXPIRED.
	MetricSessionExpired
	// MetricSessionRotated counts rotate operations.
	MetricSessionRotated
	// MetricSignOut counts single-session sign-outs.
	MetricSignOut
	// MetricSignOutAll counts all-session revocations.
	MetricSignOutAll
	// MetricVerificationRequest counts issued verification tokens.
	MetricVerificationRequest
	// MetricVerificationSuccess counts confirmed verifications.
	MetricVerificationSuccess
	// MetricVerificationFailure counts rejected verification tokens.
	MetricVerificationFailure
	// MetricResetRequest counts issued password reset tokens.
	MetricResetRequest
	// MetricResetSuccess counts completed password resets.
	MetricResetSuccess
	// MetricResetFailure counts rejected reset tokens.
	MetricResetFailure
	// MetricOAuthBegin counts started OAuth round trips.
	MetricOAuthBegin
	// MetricOAuthSuccess counts completed OAuth sign-ins.
	MetricOAuthSuccess
	// MetricOAuthFailure counts failed OAuth callbacks.
	MetricOAuthFailure
	// MetricValidateLatency is the session-validate latency histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps hot counters on separate cache lines.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a lock-free counter set shared by all engine flows. A nil or
// disabled Metrics accepts writes as no-ops.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds a collector per cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only MetricValidateLatency carries a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram. Safe under concurrent
// writers; the copy is not a consistent cut across counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
