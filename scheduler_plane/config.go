package main

import (
	"fmt"
	"os"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/feedback"
	"github.com/itskum47/TaskFlux/scheduler_plane/heartbeat"
	"github.com/itskum47/TaskFlux/scheduler_plane/predictor"
	"github.com/itskum47/TaskFlux/scheduler_plane/registry"
	"github.com/itskum47/TaskFlux/scheduler_plane/scheduler"
	"github.com/itskum47/TaskFlux/scheduler_plane/store"
)

// Config is the full environment-driven configuration of the scheduler.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string // Optional audit sink
	ListenAddr    string

	TaskStream       string
	CompletionStream string
	HeartbeatChannel string
	DispatchPrefix   string
	ConsumerGroup    string
	ConsumerName     string
	PredictionsKey   string

	FallbackThreshold     int
	ProbeIntervalMs       int
	HeartbeatTimeoutMs    int
	UnhealthyTimeoutMs    int
	RemovedTimeoutMs      int
	HealthCheckIntervalMs int
	AvgTaskDurationMs     int
	Alpha                 float64
	DefaultDurationMs     int
	ConfidenceThreshold   int
	SnapshotInterval      int
	AccuracyWindowSize    int
	AccuracyThreshold     float64
	DriftLower            float64
	DriftUpper            float64
	Weights               scheduler.Weights
	MaxWaitMs             int
	MaxPriority           int
}

// LoadConfig reads the environment with production defaults.
func LoadConfig() Config {
	cfg := Config{
		RedisAddr:             envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               envInt("REDIS_DB", 0),
		PostgresDSN:           os.Getenv("POSTGRES_DSN"),
		ListenAddr:            envString("LISTEN_ADDR", ":8080"),
		TaskStream:            envString("TASK_STREAM", store.DefaultTaskStream),
		CompletionStream:      envString("COMPLETION_STREAM", store.DefaultCompletionStream),
		HeartbeatChannel:      envString("HEARTBEAT_CHANNEL", store.DefaultHeartbeatChannel),
		DispatchPrefix:        envString("DISPATCH_PREFIX", store.DefaultDispatchPrefix),
		ConsumerGroup:         envString("CONSUMER_GROUP", store.DefaultConsumerGroup),
		ConsumerName:          envString("CONSUMER_NAME", defaultConsumerName()),
		PredictionsKey:        envString("PREDICTIONS_KEY", store.DefaultPredictionsKey),
		FallbackThreshold:     envInt("FALLBACK_THRESHOLD", 3),
		ProbeIntervalMs:       envInt("PROBE_INTERVAL_MS", 30000),
		HeartbeatTimeoutMs:    envInt("HEARTBEAT_TIMEOUT_MS", 30000),
		UnhealthyTimeoutMs:    envInt("UNHEALTHY_TIMEOUT_MS", 30000),
		RemovedTimeoutMs:      envInt("REMOVED_TIMEOUT_MS", 300000),
		HealthCheckIntervalMs: envInt("HEALTH_CHECK_INTERVAL_MS", 5000),
		AvgTaskDurationMs:     envInt("AVG_TASK_DURATION_MS", 5000),
		Alpha:                 envFloat("ALPHA", 0.3),
		DefaultDurationMs:     envInt("DEFAULT_DURATION_MS", 5000),
		ConfidenceThreshold:   envInt("CONFIDENCE_THRESHOLD", 100),
		SnapshotInterval:      envInt("SNAPSHOT_INTERVAL", 100),
		AccuracyWindowSize:    envInt("ACCURACY_WINDOW_SIZE", 1000),
		AccuracyThreshold:     envFloat("ACCURACY_THRESHOLD", 0.25),
		DriftLower:            envFloat("DRIFT_LOWER", 0.5),
		DriftUpper:            envFloat("DRIFT_UPPER", 2.0),
		Weights: scheduler.Weights{
			Wait:     envFloat("WEIGHT_WAIT", 0.4),
			Load:     envFloat("WEIGHT_LOAD", 0.4),
			Priority: envFloat("WEIGHT_PRIORITY", 0.2),
		},
		MaxWaitMs:   envInt("MAX_WAIT_MS", 60000),
		MaxPriority: envInt("MAX_PRIORITY", 10),
	}
	return cfg
}

// Validate rejects configurations that would misbehave at runtime.
func (c Config) Validate() error {
	if c.FallbackThreshold < 1 {
		return fmt.Errorf("fallbackThreshold must be >= 1, got %d", c.FallbackThreshold)
	}
	if c.HeartbeatTimeoutMs < 1000 {
		return fmt.Errorf("heartbeatTimeoutMs must be >= 1000, got %d", c.HeartbeatTimeoutMs)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0,1], got %v", c.Alpha)
	}
	if c.DriftLower <= 0 || c.DriftUpper <= c.DriftLower {
		return fmt.Errorf("drift band invalid: [%v, %v]", c.DriftLower, c.DriftUpper)
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	return nil
}

func (c Config) predictorConfig() predictor.Config {
	return predictor.Config{
		Alpha:               c.Alpha,
		DefaultDurationMs:   float64(c.DefaultDurationMs),
		ConfidenceThreshold: int64(c.ConfidenceThreshold),
		SnapshotInterval:    int64(c.SnapshotInterval),
	}
}

func (c Config) dispatcherConfig() scheduler.DispatcherConfig {
	return scheduler.DispatcherConfig{
		FallbackThreshold: c.FallbackThreshold,
		ProbeInterval:     time.Duration(c.ProbeIntervalMs) * time.Millisecond,
		BatchSize:         10,
		BlockTimeout:      time.Second,
		DispatchPrefix:    c.DispatchPrefix,
		DefaultDurationMs: float64(c.DefaultDurationMs),
	}
}

func (c Config) scorerConfig() scheduler.ScorerConfig {
	return scheduler.ScorerConfig{
		MaxWaitMs:   float64(c.MaxWaitMs),
		MaxPriority: c.MaxPriority,
	}
}

func (c Config) heartbeatConfig() heartbeat.Config {
	return heartbeat.Config{
		Thresholds: registry.HealthThresholds{
			UnhealthyTimeout: time.Duration(c.UnhealthyTimeoutMs) * time.Millisecond,
			RemovedTimeout:   time.Duration(c.RemovedTimeoutMs) * time.Millisecond,
			DegradedLoad:     0.9,
		},
		HealthCheckInterval:  time.Duration(c.HealthCheckIntervalMs) * time.Millisecond,
		DefaultAvgDurationMs: float64(c.AvgTaskDurationMs),
		EventBuffer:          256,
		LoadEventRate:        1,
	}
}

func (c Config) feedbackConfig() feedback.Config {
	fc := feedback.DefaultConfig()
	fc.AccuracyWindowSize = c.AccuracyWindowSize
	fc.AccuracyThreshold = c.AccuracyThreshold
	fc.DriftLower = c.DriftLower
	fc.DriftUpper = c.DriftUpper
	return fc
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return fallback
}

func defaultConsumerName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "scheduler-1"
	}
	return hostname
}
