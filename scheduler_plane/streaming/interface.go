package streaming

import (
	"context"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

// Message is one durable-stream record: an opaque broker id plus the raw
// string field map.
type Message struct {
	ID     string
	Fields map[string]interface{}
}

// Source is a consumer-group read handle on a durable stream. Delivery is
// at-least-once: a message not acked is redelivered.
type Source interface {
	// Read returns up to count messages, blocking up to block when the
	// stream is empty. An empty read returns (nil, nil).
	Read(ctx context.Context, count int64, block time.Duration) ([]Message, error)

	// Ack acknowledges one message for the consumer group.
	Ack(ctx context.Context, id string) error

	Close() error
}

// Publisher delivers a payload on a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
	Close() error
}

// HeartbeatSource yields worker telemetry records. Records and Errors are
// the data/error hooks; Done closes when the upstream ends; Cancel tears
// the subscription down and is idempotent.
type HeartbeatSource interface {
	Records() <-chan model.HeartbeatRecord
	Errors() <-chan error
	Done() <-chan struct{}
	Cancel() error
}
