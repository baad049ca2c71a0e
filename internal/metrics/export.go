package metrics

import "time"

// Package-level helpers over GetInstance.

// MetricDuration records a duration
func MetricDuration(topic, function string, duration time.Duration) {
	GetInstance().RecordDuration(topic, function, duration)
}

// MetricSince records the time elapsed since start
func MetricSince(topic, function string, start time.Time) {
	GetInstance().RecordDuration(topic, function, time.Since(start))
}

// MetricHit records a cache hit
func MetricHit(topic, function string) {
	GetInstance().RecordHit(topic, function)
}

// MetricMiss records a cache miss
func MetricMiss(topic, function string) {
	GetInstance().RecordMiss(topic, function)
}

// MetricInc increments a counter
func MetricInc(topic, function string) {
	GetInstance().AddCounter(topic, function, 1)
}

// MetricSuccess records a successful operation
func MetricSuccess(topic, operation string) {
	GetInstance().RecordSuccess(topic, operation)
}

// MetricFailWithReason records a failed operation with its reason
func MetricFailWithReason(topic, operation, reason string) {
	GetInstance().RecordFailure(topic, operation, reason)
}

// Snapshot returns the snapshot of the global manager
func Snapshot() []MetricSnapshot {
	return GetInstance().GetSnapshot()
}
