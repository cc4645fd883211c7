package model

import (
	"time"
)

// WorkerStatus is the registry-level lifecycle state of a worker.
type WorkerStatus string

const (
	WorkerIdle     WorkerStatus = "idle"
	WorkerBusy     WorkerStatus = "busy"
	WorkerDraining WorkerStatus = "draining"
	WorkerOffline  WorkerStatus = "offline"
)

// HealthClass is the telemetry-derived health of a worker.
type HealthClass string

const (
	HealthHealthy   HealthClass = "healthy"
	HealthDegraded  HealthClass = "degraded"
	HealthUnhealthy HealthClass = "unhealthy"
	HealthRemoved   HealthClass = "removed"
)

// WorkerState is the registry's view of a worker. The registry is the sole
// owner of the live struct; everything else receives copies.
type WorkerState struct {
	ID             string       `json:"id"`
	Status         WorkerStatus `json:"status"`
	Capabilities   []string     `json:"capabilities,omitempty"`
	CurrentLoad    float64      `json:"current_load"` // Clamped to [0,1]
	ActiveTasks    int          `json:"active_tasks"`
	MaxConcurrency int          `json:"max_concurrency"`
	LastHeartbeat  time.Time    `json:"last_heartbeat"`
	RegisteredAt   time.Time    `json:"registered_at"`
}

// HasCapabilities reports whether the worker's capability set is a superset
// of the required one.
func (w *WorkerState) HasCapabilities(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, need := range required {
		found := false
		for _, have := range w.Capabilities {
			if have == need {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// WorkerCapacity is the heartbeat subscriber's derived capacity snapshot.
type WorkerCapacity struct {
	WorkerID        string      `json:"worker_id"`
	QueueDepth      int         `json:"queue_depth"`
	EstimatedFreeAt time.Time   `json:"estimated_free_at"`
	Health          HealthClass `json:"health"`
	AvgTaskDuration float64     `json:"avg_task_duration_ms"` // EMA, alpha 0.1
	LastLoad        float64     `json:"last_load"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TaskPrediction is the predictor's estimate for one task.
type TaskPrediction struct {
	TaskID              string  `json:"task_id"`
	EstimatedDurationMs float64 `json:"estimated_duration_ms"`
	Confidence          float64 `json:"confidence"` // min(1, samples/threshold)
	RecommendedWorker   string  `json:"recommended_worker,omitempty"`
}

// EMAState is the learned per-task-type duration state.
type EMAState struct {
	TaskType    string    `json:"task_type"`
	EMA         float64   `json:"ema"`
	SampleCount int64     `json:"sampleCount"`
	LastUpdated time.Time `json:"lastUpdated"`
}
