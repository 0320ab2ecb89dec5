package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a counter slot.
type MetricID uint16

const (
	MetricChallengeIssued MetricID = iota
	MetricChallengeCooldown
	MetricChallengeThrottled
	MetricChallengeVerified
	MetricChallengeMismatch
	MetricChallengeExhausted
	MetricChallengeExpired
	MetricDeliveryQueued
	MetricDeliveryDropped
	MetricDeliverySent
	MetricDeliveryFailed
	MetricIdentityCreated
	MetricLoginSuccess
	MetricLoginFailure
	MetricLockoutRejected
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricPasswordResetSuccess
	MetricVerifyAccessFailure
	MetricPurgedChallenges
	MetricPurgedAttempts
	MetricVerifyAccessLatency
	MetricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type histogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config toggles collection.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds the counters and histograms. The zero value and a nil
// pointer are both inert.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	histograms    [MetricIDCount]histogram
}

// Snapshot is a point-in-time copy of every metric.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add increases a counter by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= MetricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d into the histogram for id. Only latency IDs keep
// histograms.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricVerifyAccessLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(MetricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		if id == MetricVerifyAccessLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyAccessLatency].buckets[i])
		}
		s.Histograms[MetricVerifyAccessLatency] = buckets
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
