package goIdentity

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter.
type MetricID uint16

const (
	MetricSignupSuccess MetricID = iota
	MetricSignupConflict
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLocked
	MetricAccountLocked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricEmailVerificationSent
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricSessionCreated
	MetricSessionInvalidated
	MetricNotificationFailure
	// MetricPasswordVerifyLatency is the only histogram.
	MetricPasswordVerifyLatency
	metricIDCount
)

const (
	// HistogramBucketCount is the number of latency buckets; the last is +Inf.
	HistogramBucketCount = 8
	cacheLineSize        = 64
)

// HistogramBoundsMillis are the upper bounds of the finite buckets.
var HistogramBoundsMillis = [HistogramBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

type metricHistogram struct {
	buckets [HistogramBucketCount]uint64
	sumNs   uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters. A nil or disabled Metrics
// ignores all writes.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters. Histogram
// buckets are non-cumulative.
type MetricsSnapshot struct {
	Counters     map[MetricID]uint64
	Histograms   map[MetricID][]uint64
	HistogramSum map[MetricID]time.Duration
}

// NewMetrics builds Metrics from cfg.
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

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add adds n to the counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricPasswordVerifyLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	if d > 0 {
		atomic.AddUint64(&m.histograms[id].sumNs, uint64(d))
	}
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:     map[MetricID]uint64{},
		Histograms:   map[MetricID][]uint64{},
		HistogramSum: map[MetricID]time.Duration{},
	}
	if m == nil || !m.enabled {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricPasswordVerifyLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		h := &m.histograms[MetricPasswordVerifyLatency]
		buckets := make([]uint64, HistogramBucketCount)
		for i := 0; i < HistogramBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&h.buckets[i])
		}
		s.Histograms[MetricPasswordVerifyLatency] = buckets
		s.HistogramSum[MetricPasswordVerifyLatency] = time.Duration(atomic.LoadUint64(&h.sumNs))
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range HistogramBoundsMillis {
		if ms <= bound {
			return i
		}
	}
	return HistogramBucketCount - 1
}
