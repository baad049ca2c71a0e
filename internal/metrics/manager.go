package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	maxSamples = 1000 // keep last 1000 samples for percentile calculations
	maxReasons = 20   // distinct failure reasons kept per metric
)

// MetricsManager holds in-process metrics keyed by "topic/function".
type MetricsManager struct {
	mu          sync.RWMutex
	timings     map[string]*TimingMetric
	hitMiss     map[string]*HitMissMetric
	counters    map[string]*CounterMetric
	successFail map[string]*SuccessFailMetric
}

var (
	instance *MetricsManager
	once     sync.Once
)

// New returns an empty manager.
func New() *MetricsManager {
	return &MetricsManager{
		timings:     make(map[string]*TimingMetric),
		hitMiss:     make(map[string]*HitMissMetric),
		counters:    make(map[string]*CounterMetric),
		successFail: make(map[string]*SuccessFailMetric),
	}
}

// GetInstance returns the singleton metrics manager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// buildPath creates a normalized path from topic and function
func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return fmt.Sprintf("%s/%s", topic, function)
}

// getOrCreate returns m[path], creating it with mk under the write lock.
func getOrCreate[T any](mgr *MetricsManager, m map[string]*T, path string, mk func() *T) *T {
	mgr.mu.RLock()
	metric, ok := m[path]
	mgr.mu.RUnlock()
	if ok {
		return metric
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if metric, ok = m[path]; !ok {
		metric = mk()
		m[path] = metric
	}
	return metric
}

// RecordDuration records a duration
func (m *MetricsManager) RecordDuration(topic, function string, duration time.Duration) {
	metric := getOrCreate(m, m.timings, buildPath(topic, function), func() *TimingMetric {
		return &TimingMetric{samples: make([]time.Duration, 0, 64), Min: duration, Max: duration}
	})

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Count++
	metric.Total += duration
	metric.Last = duration
	if duration < metric.Min {
		metric.Min = duration
	}
	if duration > metric.Max {
		metric.Max = duration
	}

	if len(metric.samples) < maxSamples {
		metric.samples = append(metric.samples, duration)
	} else {
		metric.samples[metric.sampleIdx] = duration
		metric.sampleIdx = (metric.sampleIdx + 1) % maxSamples
	}
}

// RecordHit records a cache hit
func (m *MetricsManager) RecordHit(topic, function string) {
	metric := getOrCreate(m, m.hitMiss, buildPath(topic, function), func() *HitMissMetric { return &HitMissMetric{} })
	metric.mu.Lock()
	metric.Hits++
	metric.mu.Unlock()
}

// RecordMiss records a cache miss
func (m *MetricsManager) RecordMiss(topic, function string) {
	metric := getOrCreate(m, m.hitMiss, buildPath(topic, function), func() *HitMissMetric { return &HitMissMetric{} })
	metric.mu.Lock()
	metric.Misses++
	metric.mu.Unlock()
}

// AddCounter adds delta to a counter
func (m *MetricsManager) AddCounter(topic, function string, delta int64) {
	metric := getOrCreate(m, m.counters, buildPath(topic, function), func() *CounterMetric { return &CounterMetric{} })
	metric.mu.Lock()
	metric.Value += delta
	metric.Last = time.Now()
	metric.mu.Unlock()
}

// RecordSuccess records a successful operation
func (m *MetricsManager) RecordSuccess(topic, function string) {
	metric := getOrCreate(m, m.successFail, buildPath(topic, function), newSuccessFail)
	metric.mu.Lock()
	metric.Success++
	metric.mu.Unlock()
}

// RecordFailure records a failed operation. Reasons beyond maxReasons
// distinct values are counted under "other".
func (m *MetricsManager) RecordFailure(topic, function, reason string) {
	metric := getOrCreate(m, m.successFail, buildPath(topic, function), newSuccessFail)
	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Failures++
	metric.LastFailure = time.Now()
	if reason == "" {
		return
	}
	if _, known := metric.Reasons[reason]; !known && len(metric.Reasons) >= maxReasons {
		reason = "other"
	}
	metric.Reasons[reason]++
}

func newSuccessFail() *SuccessFailMetric {
	return &SuccessFailMetric{Reasons: make(map[string]int64)}
}

// GetSnapshot returns every metric, keyed by path then type.
func (m *MetricsManager) GetSnapshot() []MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []MetricSnapshot
	for path, t := range m.timings {
		t.mu.Lock()
		snap := TimingSnapshot{
			Count:  t.Count,
			MinMs:  ms(t.Min),
			MaxMs:  ms(t.Max),
			LastMs: ms(t.Last),
			P95Ms:  calculatePercentile(t.samples, 95),
		}
		if t.Count > 0 {
			snap.AvgMs = ms(t.Total) / float64(t.Count)
		}
		t.mu.Unlock()
		out = append(out, MetricSnapshot{Path: path, Type: TypeTiming, Data: snap})
	}
	for path, h := range m.hitMiss {
		h.mu.Lock()
		snap := HitMissSnapshot{Hits: h.Hits, Misses: h.Misses}
		if total := h.Hits + h.Misses; total > 0 {
			snap.HitRate = float64(h.Hits) / float64(total)
		}
		h.mu.Unlock()
		out = append(out, MetricSnapshot{Path: path, Type: TypeHitMiss, Data: snap})
	}
	for path, c := range m.counters {
		c.mu.Lock()
		snap := CounterSnapshot{Value: c.Value}
		c.mu.Unlock()
		out = append(out, MetricSnapshot{Path: path, Type: TypeCounter, Data: snap})
	}
	for path, s := range m.successFail {
		s.mu.Lock()
		snap := SuccessFailSnapshot{Success: s.Success, Failures: s.Failures}
		if total := s.Success + s.Failures; total > 0 {
			snap.SuccessRate = float64(s.Success) / float64(total)
		}
		if len(s.Reasons) > 0 {
			snap.Reasons = make(map[string]int64, len(s.Reasons))
			for k, v := range s.Reasons {
				snap.Reasons[k] = v
			}
		}
		s.mu.Unlock()
		out = append(out, MetricSnapshot{Path: path, Type: TypeSuccessFail, Data: snap})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Reset drops every metric.
func (m *MetricsManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings = make(map[string]*TimingMetric)
	m.hitMiss = make(map[string]*HitMissMetric)
	m.counters = make(map[string]*CounterMetric)
	m.successFail = make(map[string]*SuccessFailMetric)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func calculatePercentile(samples []time.Duration, percentile int) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted)*percentile)/100 - 1
	if idx < 0 {
		idx = 0
	}
	return ms(sorted[idx])
}
