package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchDecisions tracks scheduling decisions by reason.
	DispatchDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflux_dispatch_decisions_total",
		Help: "Total number of scheduling decisions made",
	}, []string{"reason"})

	// DispatchFailures tracks dispatches that produced no assignment.
	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflux_dispatch_failures_total",
		Help: "Dispatches that failed to assign or publish a task",
	}, []string{"reason"}) // no_workers, publish_error, malformed_task

	// DispatchDuration tracks the latency of one dispatchTask call.
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskflux_dispatch_duration_seconds",
		Help:    "Duration of a single dispatch decision including publish",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~2s
	})

	// StreamReadErrors tracks consumer-group read failures.
	StreamReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflux_stream_read_errors_total",
		Help: "Errors reading from the task ingress stream",
	})

	// PredictorPredictions tracks predictor invocations by outcome.
	PredictorPredictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflux_predictor_predictions_total",
		Help: "Predictor invocations by outcome",
	}, []string{"outcome"}) // ok, error, invalid_worker, skipped_open

	// PredictionConfidence tracks the confidence of served predictions.
	PredictionConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskflux_prediction_confidence",
		Help:    "Confidence of served predictions (0-1)",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	// CircuitBreakerState tracks the predictor breaker (0=closed, 1=open).
	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskflux_circuit_breaker_open",
		Help: "Predictor circuit breaker state (0=closed, 1=open)",
	})

	// CircuitBreakerTransitions tracks open/close transitions.
	CircuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflux_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"to"}) // open, closed

	// RegisteredWorkers tracks the number of workers known to the registry.
	RegisteredWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskflux_registered_workers",
		Help: "Current number of workers in the registry",
	})

	// AvailableWorkers tracks the number of dispatch-eligible workers.
	AvailableWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskflux_available_workers",
		Help: "Current number of dispatch-eligible workers",
	})

	// WorkerHealth tracks workers per health class.
	WorkerHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taskflux_worker_health",
		Help: "Number of workers per health class",
	}, []string{"health"})

	// WorkerEvents tracks emitted worker transition events.
	WorkerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflux_worker_events_total",
		Help: "Worker state transition events emitted",
	}, []string{"type"})

	// HeartbeatsProcessed tracks consumed heartbeat records.
	HeartbeatsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflux_heartbeats_processed_total",
		Help: "Heartbeat telemetry records processed",
	})

	// CompletionsProcessed tracks consumed completion events.
	CompletionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflux_completions_processed_total",
		Help: "Completion events processed by the feedback pipeline",
	}, []string{"success"})

	// DriftEvents tracks drift detections by severity.
	DriftEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflux_drift_events_total",
		Help: "Prediction drift detections",
	}, []string{"severity"})

	// RollingAccuracy tracks the current rolling prediction accuracy.
	RollingAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskflux_prediction_accuracy",
		Help: "Rolling fraction of predictions within the accuracy threshold",
	})

	// SnapshotPersists tracks predictor state persistence attempts.
	SnapshotPersists = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflux_snapshot_persists_total",
		Help: "Predictor snapshot persistence attempts",
	}, []string{"result"}) // ok, error

	// PublishFailures tracks failed per-worker channel publishes.
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflux_publish_failures_total",
		Help: "Failed publishes to per-worker dispatch channels",
	})

	// EventPublishFailures tracks events dropped on full event channels.
	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflux_event_publish_failures_total",
		Help: "Events dropped because the event channel was full or throttled",
	}, []string{"event_type", "reason"})

	// RedisLatency tracks Redis operation roundtrip latency.
	RedisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskflux_redis_roundtrip_latency_seconds",
		Help:    "Redis operation latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
	})

	// AuditWriteFailures tracks dropped audit-sink writes.
	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflux_audit_write_failures_total",
		Help: "Best-effort audit sink writes that failed",
	})
)
