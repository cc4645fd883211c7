package model

import (
	"time"
)

// DecisionReason explains how a worker was chosen.
type DecisionReason string

const (
	ReasonPrediction             DecisionReason = "prediction"
	ReasonFallbackRoundRobin     DecisionReason = "fallback_round_robin"
	ReasonFallbackLowestLoad     DecisionReason = "fallback_lowest_load"
	ReasonFallbackCircuitBreaker DecisionReason = "fallback_circuit_breaker"
)

// SchedulingDecision records the outcome of one dispatch.
// reason=prediction implies UsedFallback=false; the fallback reasons imply
// UsedFallback=true.
type SchedulingDecision struct {
	TaskID       string          `json:"task_id"`
	WorkerID     string          `json:"worker_id"`
	Timestamp    time.Time       `json:"timestamp"`
	UsedFallback bool            `json:"used_fallback"`
	Reason       DecisionReason  `json:"reason"`
	Score        float64         `json:"score,omitempty"`
	Prediction   *TaskPrediction `json:"prediction,omitempty"`
}

// DispatchResult is the per-message outcome surfaced by the dispatcher.
// A failed publish retains the decision but leaves the message unacked.
type DispatchResult struct {
	Success  bool                `json:"success"`
	Decision *SchedulingDecision `json:"decision,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// PredictionSample is one accuracy observation held in the rolling window.
type PredictionSample struct {
	TaskType        string    `json:"task_type"`
	PredictedMs     float64   `json:"predicted_ms"`
	ActualMs        float64   `json:"actual_ms"`
	Timestamp       time.Time `json:"timestamp"`
	WithinThreshold bool      `json:"within_threshold"`
}
