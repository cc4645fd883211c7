package registry

import (
	"math"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

// HealthThresholds configures the age/load cutoffs for health
// classification.
type HealthThresholds struct {
	UnhealthyTimeout time.Duration // Default 30s
	RemovedTimeout   time.Duration // Default 5m
	DegradedLoad     float64       // Default 0.9
}

// DefaultHealthThresholds returns production defaults.
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		UnhealthyTimeout: 30 * time.Second,
		RemovedTimeout:   5 * time.Minute,
		DegradedLoad:     0.9,
	}
}

// significantLoadDelta gates worker_load_changed event emission.
const significantLoadDelta = 0.1

// CurrentLoad combines CPU and memory utilization into a single load figure
// in [0,1]: 0.6*cpu + 0.4*mem, with both inputs clamped first.
func CurrentLoad(cpuUsage, memoryUsage float64) float64 {
	return 0.6*clamp01(cpuUsage) + 0.4*clamp01(memoryUsage)
}

// EstimatedFreeAt projects when the worker drains its queue. Never earlier
// than now.
func EstimatedFreeAt(now time.Time, queueDepth int, avgTaskDurationMs float64) time.Time {
	if queueDepth <= 0 || avgTaskDurationMs <= 0 {
		return now
	}
	wait := time.Duration(float64(queueDepth)*avgTaskDurationMs) * time.Millisecond
	return now.Add(wait)
}

// ClassifyHealth maps heartbeat age and load onto a health class. The
// checks are ordered: removed, unhealthy, degraded, healthy.
func ClassifyHealth(age time.Duration, load float64, t HealthThresholds) model.HealthClass {
	switch {
	case age >= t.RemovedTimeout:
		return model.HealthRemoved
	case age >= t.UnhealthyTimeout:
		return model.HealthUnhealthy
	case load >= t.DegradedLoad:
		return model.HealthDegraded
	default:
		return model.HealthHealthy
	}
}

// SignificantLoadChange reports whether the load moved enough to warrant a
// worker_load_changed event.
func SignificantLoadChange(previous, current float64) bool {
	return math.Abs(current-previous) >= significantLoadDelta
}

// BlendAvgDuration folds a task duration into the per-worker rolling
// average (EMA, alpha 0.1). The first observation seeds the average.
func BlendAvgDuration(current, sampleMs float64) float64 {
	const alpha = 0.1
	if current <= 0 {
		return sampleMs
	}
	return alpha*sampleMs + (1-alpha)*current
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
