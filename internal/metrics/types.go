package metrics

import (
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType string

const (
	TypeTiming      MetricType = "timing"
	TypeHitMiss     MetricType = "hit_miss"
	TypeCounter     MetricType = "counter"
	TypeSuccessFail MetricType = "success_fail"
)

// TimingMetric tracks timing statistics
type TimingMetric struct {
	mu        sync.Mutex
	Count     int64
	Total     time.Duration
	Min       time.Duration
	Max       time.Duration
	Last      time.Duration
	samples   []time.Duration // ring buffer for percentiles
	sampleIdx int
}

// HitMissMetric tracks cache hit/miss statistics
type HitMissMetric struct {
	mu     sync.Mutex
	Hits   int64
	Misses int64
}

// CounterMetric tracks incrementing values
type CounterMetric struct {
	mu    sync.Mutex
	Value int64
	Last  time.Time
}

// SuccessFailMetric tracks success and failure counts. Reasons are the
// failure messages, counted.
type SuccessFailMetric struct {
	mu          sync.Mutex
	Success     int64
	Failures    int64
	LastFailure time.Time
	Reasons     map[string]int64
}

// MetricSnapshot represents a point-in-time view of a metric
type MetricSnapshot struct {
	Path string      `json:"path"`
	Type MetricType  `json:"type"`
	Data interface{} `json:"data"`
}

// TimingSnapshot for JSON serialization
type TimingSnapshot struct {
	Count  int64   `json:"count"`
	AvgMs  float64 `json:"avg_ms"`
	MinMs  float64 `json:"min_ms"`
	MaxMs  float64 `json:"max_ms"`
	LastMs float64 `json:"last_ms"`
	P95Ms  float64 `json:"p95_ms,omitempty"`
}

// HitMissSnapshot for JSON serialization
type HitMissSnapshot struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// CounterSnapshot for JSON serialization
type CounterSnapshot struct {
	Value int64 `json:"value"`
}

// SuccessFailSnapshot for JSON serialization
type SuccessFailSnapshot struct {
	Success     int64            `json:"success"`
	Failures    int64            `json:"failures"`
	SuccessRate float64          `json:"success_rate"`
	Reasons     map[string]int64 `json:"reasons,omitempty"`
}
