package cache

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Metrics holds the process-wide counters named in §4.5. Per §9's design
// note ("global mutable singletons... process-wide values with explicit
// init and teardown hooks"), this is a plain struct constructed once by
// the caller and threaded through explicitly — never a package-level var.
type Metrics struct {
	RequestsOK           atomic.Int64
	RequestsClientError  atomic.Int64
	RequestsUpstreamError atomic.Int64
	RequestsCancelled    atomic.Int64
	RequestsTimeout      atomic.Int64

	Hits      atomic.Int64
	Misses    atomic.Int64
	Stores    atomic.Int64
	Evictions atomic.Int64
	Bytes     atomic.Int64

	KeepalivesSent atomic.Int64
	DrainWaits     atomic.Int64
	WatchdogFires  atomic.Int64

	latency Histogram
	ttfe    Histogram
}

// NewMetrics builds a zeroed Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		latency: NewHistogram(),
		ttfe:    NewHistogram(),
	}
}

// ObserveLatencyMS records one request's total wall time.
func (m *Metrics) ObserveLatencyMS(ms float64) { m.latency.Observe(ms) }

// ObserveTimeToFirstEventMS records the wall time to the first emitted event.
func (m *Metrics) ObserveTimeToFirstEventMS(ms float64) { m.ttfe.Observe(ms) }

// Outcome is one requests_total{outcome} label value.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeClientError   Outcome = "client_error"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeTimeout       Outcome = "timeout"
)

// RecordOutcome bumps the requests_total counter for outcome.
func (m *Metrics) RecordOutcome(o Outcome) {
	switch o {
	case OutcomeOK:
		m.RequestsOK.Add(1)
	case OutcomeClientError:
		m.RequestsClientError.Add(1)
	case OutcomeUpstreamError:
		m.RequestsUpstreamError.Add(1)
	case OutcomeCancelled:
		m.RequestsCancelled.Add(1)
	case OutcomeTimeout:
		m.RequestsTimeout.Add(1)
	}
}

// Snapshot is the JSON-serializable rendering of Metrics for GET /metrics.
type Snapshot struct {
	RequestsTotal map[string]int64 `json:"requests_total"`
	CacheHits     int64            `json:"cache_hits"`
	CacheMisses   int64            `json:"cache_misses"`
	CacheStores   int64            `json:"cache_stores"`
	CacheEvictions int64           `json:"cache_evictions"`
	CacheBytes    int64            `json:"cache_bytes"`
	KeepalivesSent int64           `json:"stream_keepalives_sent"`
	DrainWaits     int64           `json:"stream_drain_waits"`
	WatchdogFires  int64           `json:"stream_watchdog_fires"`
	LatencyMS      HistogramSnapshot `json:"latency_ms"`
	TimeToFirstEventMS HistogramSnapshot `json:"time_to_first_event_ms"`
}

// Snapshot renders a point-in-time copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RequestsTotal: map[string]int64{
			"ok":             m.RequestsOK.Load(),
			"client_error":   m.RequestsClientError.Load(),
			"upstream_error": m.RequestsUpstreamError.Load(),
			"cancelled":      m.RequestsCancelled.Load(),
			"timeout":        m.RequestsTimeout.Load(),
		},
		CacheHits:      m.Hits.Load(),
		CacheMisses:    m.Misses.Load(),
		CacheStores:    m.Stores.Load(),
		CacheEvictions: m.Evictions.Load(),
		CacheBytes:     m.Bytes.Load(),
		KeepalivesSent: m.KeepalivesSent.Load(),
		DrainWaits:     m.DrainWaits.Load(),
		WatchdogFires:  m.WatchdogFires.Load(),
		LatencyMS:          m.latency.Snapshot(),
		TimeToFirstEventMS: m.ttfe.Snapshot(),
	}
}

// Histogram is a minimal lock-protected latency histogram; bucket
// boundaries are fixed, matching typical request-latency dashboards.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

var defaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}

// NewHistogram builds a Histogram with the default bucket boundaries.
func NewHistogram() Histogram {
	return Histogram{buckets: defaultBuckets, counts: make([]int64, len(defaultBuckets)+1)}
}

// Observe records one sample.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	idx := sort.SearchFloat64s(h.buckets, v)
	h.counts[idx]++
}

// HistogramSnapshot is the JSON rendering of a Histogram.
type HistogramSnapshot struct {
	Count   int64     `json:"count"`
	SumMS   float64   `json:"sum_ms"`
	Buckets []float64 `json:"bucket_bounds_ms"`
	Counts  []int64   `json:"bucket_counts"`
}

// Snapshot renders a point-in-time copy of the histogram.
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts := make([]int64, len(h.counts))
	copy(counts, h.counts)
	return HistogramSnapshot{Count: h.count, SumMS: h.sum, Buckets: defaultBuckets, Counts: counts}
}
