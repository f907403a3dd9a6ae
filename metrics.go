package sessioncap

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricSessionCreated
	// MetricSessionEvicted counts sessions removed to respect the per-user cap.
	MetricSessionEvicted
	// MetricSessionInvalidated counts sessions removed by logout or orphan cleanup.
	MetricSessionInvalidated
	MetricLogout
	MetricLogoutAll
	MetricAccountCreationSuccess
	MetricAccountCreationDuplicate
	MetricAuthorizationDenied
	// MetricValidateLatency is the only histogram: time spent in Authenticate.
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

// paddedCounter keeps each hot counter on its own cache line.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus one latency histogram.
// A nil or disabled *Metrics accepts every call and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters. Histogram buckets
// are not cumulative; bucket upper bounds are 5, 10, 25, 50, 100, 250 and
// 500 milliseconds, then +Inf.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
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

// Add increments id by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records a latency sample. Only MetricValidateLatency has buckets.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

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
		if id == MetricValidateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

func bucketIndex(d time.Duration) int {
	switch ms := d.Milliseconds(); {
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
