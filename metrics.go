package goNoPass

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one client counter.
type MetricID uint16

const (
	// MetricAuthRequest counts SendAuth calls.
	MetricAuthRequest MetricID = iota
	// MetricAuthSuccess counts SendAuth calls that returned a challenge.
	MetricAuthSuccess
	// MetricAuthFailure counts SendAuth calls that returned an error.
	MetricAuthFailure
	// MetricValidationRequest counts SendValidation calls.
	MetricValidationRequest
	// MetricValidationSuccess counts SendValidation calls that returned a response.
	MetricValidationSuccess
	// MetricValidationFailure counts SendValidation calls that returned an error.
	MetricValidationFailure
	// MetricInvalidRequest counts calls rejected before signing.
	MetricInvalidRequest
	// MetricSigningFailure counts payloads that could not be signed.
	MetricSigningFailure
	// MetricTransportFailure counts round trips with no HTTP response.
	MetricTransportFailure
	// MetricServerError counts non-2xx responses.
	MetricServerError
	// MetricMalformedResponse counts 2xx bodies that were not JSON objects.
	MetricMalformedResponse
	// MetricEmptyResponse counts 2xx responses with no body.
	MetricEmptyResponse
	// MetricChallengeMismatch counts validations refused by the ChallengeTracker.
	MetricChallengeMismatch
	// MetricRoundTripLatency is the latency histogram of HTTP round trips.
	MetricRoundTripLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus one latency histogram.
//
// A nil or disabled Metrics accepts every call and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of Metrics.
// HistogramSums holds the total observed duration per histogram.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

// NewMetrics returns Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
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

// Observe records d in the histogram for id. Only MetricRoundTripLatency
// has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRoundTripLatency {
		return
	}

	if d < 0 {
		d = 0
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d))
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]time.Duration{},
		}
	}

	s := MetricsSnapshot{
		Counters:      make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:    make(map[MetricID][]uint64, 1),
		HistogramSums: make(map[MetricID]time.Duration, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRoundTripLatency].buckets[i])
		}
		s.Histograms[MetricRoundTripLatency] = buckets
		s.HistogramSums[MetricRoundTripLatency] = time.Duration(atomic.LoadUint64(&m.histograms[MetricRoundTripLatency].sumNanos))
	}

	return s
}

// bucketIndex maps a round-trip latency to upper bounds
// 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s and +Inf.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 10:
		return 0
	case ms <= 25:
		return 1
	case ms <= 50:
		return 2
	case ms <= 100:
		return 3
	case ms <= 250:
		return 4
	case ms <= 500:
		return 5
	case ms <= 1000:
		return 6
	default:
		return 7
	}
}
