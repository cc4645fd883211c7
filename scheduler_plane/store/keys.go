package store

const (
	// DefaultPredictionsKey is the Redis key holding the predictor snapshot.
	DefaultPredictionsKey = "taskflux:scheduler:predictions"

	// DefaultTaskStream is the ingress stream read by the dispatcher.
	DefaultTaskStream = "taskflux:tasks"

	// DefaultCompletionStream is the stream of completion events.
	DefaultCompletionStream = "taskflux:completions"

	// DefaultHeartbeatChannel is the Pub/Sub channel carrying telemetry.
	DefaultHeartbeatChannel = "taskflux:heartbeats"

	// DefaultDispatchPrefix prefixes the per-worker dispatch channels.
	DefaultDispatchPrefix = "taskflux:dispatch:"

	// DefaultConsumerGroup is the consumer group shared by scheduler replicas.
	DefaultConsumerGroup = "taskflux-schedulers"
)
