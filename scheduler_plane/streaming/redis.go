package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
	"github.com/itskum47/TaskFlux/scheduler_plane/observability"
)

// defaultClaimMinIdle is how long a pending entry must sit unacked before
// it is reclaimed for redelivery.
const defaultClaimMinIdle = 5 * time.Second

// defaultClaimInterval is how often a Read checks the pending-entries list.
const defaultClaimInterval = 5 * time.Second

// RedisSource reads a Redis Stream through a consumer group. The group is
// created on construction if it does not exist. Messages read with ">" land
// in the consumer's pending-entries list until acked; Read periodically
// reclaims entries idle past a minimum (via XAUTOCLAIM) so a message left
// unacked after a failed dispatch is redelivered instead of stranded — the
// claim also covers entries abandoned by crashed replicas.
type RedisSource struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string

	claimMinIdle  time.Duration
	claimInterval time.Duration
	lastClaim     time.Time
}

func NewRedisSource(ctx context.Context, client *redis.Client, stream, group, consumer string) (*RedisSource, error) {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group %s on %s: %w", group, stream, err)
	}
	return &RedisSource{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		claimMinIdle:  defaultClaimMinIdle,
		claimInterval: defaultClaimInterval,
	}, nil
}

// Read returns reclaimed pending entries when any are due, otherwise
// performs one XREADGROUP for new entries. An empty read (block expired)
// returns (nil, nil).
func (s *RedisSource) Read(ctx context.Context, count int64, block time.Duration) ([]Message, error) {
	start := time.Now()
	defer func() {
		observability.RedisLatency.Observe(time.Since(start).Seconds())
	}()

	if msgs, err := s.claimPending(ctx, count); err != nil {
		return nil, err
	} else if len(msgs) > 0 {
		return msgs, nil
	}

	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Message
	for _, stream := range res {
		for _, msg := range stream.Messages {
			out = append(out, Message{ID: msg.ID, Fields: msg.Values})
		}
	}
	return out, nil
}

// claimPending runs XAUTOCLAIM at most once per claimInterval, taking over
// group entries that have been pending longer than claimMinIdle.
func (s *RedisSource) claimPending(ctx context.Context, count int64) ([]Message, error) {
	if time.Since(s.lastClaim) < s.claimInterval {
		return nil, nil
	}
	s.lastClaim = time.Now()

	claimed, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.claimMinIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var out []Message
	for _, msg := range claimed {
		// Entries trimmed from the stream surface with no fields; ack them
		// away rather than looping on tombstones.
		if len(msg.Values) == 0 {
			s.client.XAck(ctx, s.stream, s.group, msg.ID)
			continue
		}
		out = append(out, Message{ID: msg.ID, Fields: msg.Values})
	}
	return out, nil
}

// Ack acknowledges one message id for the group.
func (s *RedisSource) Ack(ctx context.Context, id string) error {
	start := time.Now()
	defer func() {
		observability.RedisLatency.Observe(time.Since(start).Seconds())
	}()
	return s.client.XAck(ctx, s.stream, s.group, id).Err()
}

func (s *RedisSource) Close() error { return nil }

// RedisPublisher publishes dispatch payloads on Pub/Sub channels.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch payload: %w", err)
	}

	start := time.Now()
	defer func() {
		observability.RedisLatency.Observe(time.Since(start).Seconds())
	}()
	return p.client.Publish(ctx, channel, data).Err()
}

func (p *RedisPublisher) Close() error { return nil }

// RedisHeartbeatSource subscribes to the telemetry Pub/Sub channel and pumps
// decoded records onto a bounded channel.
type RedisHeartbeatSource struct {
	sub     *redis.PubSub
	records chan model.HeartbeatRecord
	errs    chan error
	done    chan struct{}
	once    sync.Once
}

func NewRedisHeartbeatSource(ctx context.Context, client *redis.Client, channel string) *RedisHeartbeatSource {
	s := &RedisHeartbeatSource{
		sub:     client.Subscribe(ctx, channel),
		records: make(chan model.HeartbeatRecord, 256),
		errs:    make(chan error, 16),
		done:    make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *RedisHeartbeatSource) pump() {
	defer close(s.done)

	for msg := range s.sub.Channel() {
		var rec model.HeartbeatRecord
		if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
			select {
			case s.errs <- fmt.Errorf("malformed heartbeat payload: %w", err):
			default:
			}
			continue
		}
		s.records <- rec
	}
}

func (s *RedisHeartbeatSource) Records() <-chan model.HeartbeatRecord { return s.records }

func (s *RedisHeartbeatSource) Errors() <-chan error { return s.errs }

func (s *RedisHeartbeatSource) Done() <-chan struct{} { return s.done }

// Cancel closes the subscription, which ends the pump and closes Done.
// Safe to call more than once.
func (s *RedisHeartbeatSource) Cancel() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Close()
	})
	return err
}
