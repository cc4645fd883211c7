package model

import (
	"time"
)

// WorkerEventType enumerates worker state-transition events emitted by the
// heartbeat subscriber.
type WorkerEventType string

const (
	EventWorkerHealthy     WorkerEventType = "worker_healthy"
	EventWorkerDegraded    WorkerEventType = "worker_degraded"
	EventWorkerUnhealthy   WorkerEventType = "worker_unhealthy"
	EventWorkerRemoved     WorkerEventType = "worker_removed"
	EventWorkerLoadChanged WorkerEventType = "worker_load_changed"
)

// WorkerEvent is a single worker transition, delivered on a bounded channel.
type WorkerEvent struct {
	Type      WorkerEventType `json:"type"`
	WorkerID  string          `json:"worker_id"`
	Health    HealthClass     `json:"health,omitempty"`
	Load      float64         `json:"load,omitempty"`
	PrevLoad  float64         `json:"prev_load,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// FeedbackEventType enumerates events emitted by the completion pipeline.
type FeedbackEventType string

const (
	EventDriftDetected     FeedbackEventType = "drift_detected"
	EventPredictionUpdated FeedbackEventType = "prediction_updated"
	EventAccuracyWarning   FeedbackEventType = "accuracy_warning"
)

// DriftSeverity classifies how far outside the drift band a completion fell.
type DriftSeverity string

const (
	DriftMinor DriftSeverity = "minor" // Within 3x in either direction
	DriftMajor DriftSeverity = "major"
)

// FeedbackEvent is a single prediction-quality event.
type FeedbackEvent struct {
	Type        FeedbackEventType `json:"type"`
	TaskID      string            `json:"task_id,omitempty"`
	TaskType    string            `json:"task_type,omitempty"`
	PredictedMs float64           `json:"predicted_ms,omitempty"`
	ActualMs    float64           `json:"actual_ms,omitempty"`
	Severity    DriftSeverity     `json:"severity,omitempty"`
	Accuracy    float64           `json:"accuracy,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}
