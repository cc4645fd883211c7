package scheduler

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrNoWorkersAvailable = errors.New("No workers available")

// Weights is the scorer's objective weight vector. Must sum to 1.
type Weights struct {
	Wait     float64 `json:"wait"`
	Load     float64 `json:"load"`
	Priority float64 `json:"priority"`
}

// DefaultWeights returns the production default vector.
func DefaultWeights() Weights {
	return Weights{Wait: 0.4, Load: 0.4, Priority: 0.2}
}

// Validate checks each weight is in [0,1] and the vector sums to 1 within
// 1e-3. Surfaced at the config mutation point, never in the hot loop.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"wait": w.Wait, "load": w.Load, "priority": w.Priority} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weight %s out of range [0,1]: %v", name, v)
		}
	}
	if sum := w.Wait + w.Load + w.Priority; math.Abs(sum-1) > 1e-3 {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}
	return nil
}

// ScorerConfig bounds the scorer's normalization.
type ScorerConfig struct {
	MaxWaitMs   float64 // Estimated wait at which waitScore reaches 0
	MaxPriority int     // Priority saturates here
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		MaxWaitMs:   60000,
		MaxPriority: 10,
	}
}

// DispatcherConfig holds the dispatcher's tunables.
type DispatcherConfig struct {
	// FallbackThreshold is the consecutive predictor failure count that
	// opens the circuit breaker.
	FallbackThreshold int

	// ProbeInterval is how long an open breaker waits before allowing one
	// probe prediction.
	ProbeInterval time.Duration

	// BatchSize bounds one stream read.
	BatchSize int64

	// BlockTimeout bounds how long a read blocks when the stream is empty.
	BlockTimeout time.Duration

	// DispatchPrefix prefixes per-worker dispatch channel names.
	DispatchPrefix string

	// DefaultDurationMs is assumed when no prediction is available.
	DefaultDurationMs float64
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		FallbackThreshold: 3,
		ProbeInterval:     30 * time.Second,
		BatchSize:         10,
		BlockTimeout:      time.Second,
		DispatchPrefix:    "taskflux:dispatch:",
		DefaultDurationMs: 5000,
	}
}
