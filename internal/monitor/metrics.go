package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks in-process cycle statistics for the JSON /metrics endpoint.
type SystemMetrics struct {
	// Latency histograms
	CycleLatency    *LatencyHistogram
	ExternalLatency *LatencyHistogram
	DBLatency       *LatencyHistogram

	// Counters
	cyclesRun       uint64
	cyclesFailed    uint64
	tradesSimulated uint64
	riskExits       uint64
	persistFailures uint64

	startedAt time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are recomputed lazily.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool         // Whether samples have changed since last Stats()
	cachedStats LatencyStats // Cached computed stats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		CycleLatency:    NewLatencyHistogram(1000),
		ExternalLatency: NewLatencyHistogram(1000),
		DBLatency:       NewLatencyHistogram(1000),
		startedAt:       time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true // Mark as dirty for lazy recomputation
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
// Uses lazy computation - only recomputes when samples have changed.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Return cached stats if samples haven't changed
	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	// Compute new stats
	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	min, max := sorted[0], sorted[n-1]
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   min,
		Max:   max,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementCycles counts a finished cycle.
func (m *SystemMetrics) IncrementCycles(failed bool) {
	atomic.AddUint64(&m.cyclesRun, 1)
	if failed {
		atomic.AddUint64(&m.cyclesFailed, 1)
	}
}

// IncrementTrades counts a simulated fill.
func (m *SystemMetrics) IncrementTrades() {
	atomic.AddUint64(&m.tradesSimulated, 1)
}

// IncrementRiskExits counts a forced exit.
func (m *SystemMetrics) IncrementRiskExits() {
	atomic.AddUint64(&m.riskExits, 1)
}

// IncrementPersistFailures counts a failed snapshot save.
func (m *SystemMetrics) IncrementPersistFailures() {
	atomic.AddUint64(&m.persistFailures, 1)
}

// MetricsSnapshot is a point-in-time copy of SystemMetrics.
type MetricsSnapshot struct {
	CycleLatency    LatencyStats `json:"cycle_latency"`
	ExternalLatency LatencyStats `json:"external_latency"`
	DBLatency       LatencyStats `json:"db_latency"`
	CyclesRun       uint64       `json:"cycles_run"`
	CyclesFailed    uint64       `json:"cycles_failed"`
	TradesSimulated uint64       `json:"trades_simulated"`
	RiskExits       uint64       `json:"risk_exits"`
	PersistFailures uint64       `json:"persist_failures"`
	GoroutineCount  int          `json:"goroutine_count"`
	HeapAlloc       uint64       `json:"heap_alloc_bytes"`
	HeapSys         uint64       `json:"heap_sys_bytes"`
	Uptime          string       `json:"uptime"`
	Timestamp       time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		CycleLatency:    m.CycleLatency.Stats(),
		ExternalLatency: m.ExternalLatency.Stats(),
		DBLatency:       m.DBLatency.Stats(),
		CyclesRun:       atomic.LoadUint64(&m.cyclesRun),
		CyclesFailed:    atomic.LoadUint64(&m.cyclesFailed),
		TradesSimulated: atomic.LoadUint64(&m.tradesSimulated),
		RiskExits:       atomic.LoadUint64(&m.riskExits),
		PersistFailures: atomic.LoadUint64(&m.persistFailures),
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		HeapSys:         memStats.HeapSys,
		Uptime:          time.Since(m.startedAt).Round(time.Second).String(),
		Timestamp:       time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
