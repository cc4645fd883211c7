package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
	"github.com/itskum47/TaskFlux/scheduler_plane/observability"
)

// predictionBlob is the wire format of the persisted predictor snapshot.
type predictionBlob struct {
	Version     int                       `json:"version"`
	SavedAt     time.Time                 `json:"savedAt"`
	Predictions map[string]predictionItem `json:"predictions"`
}

type predictionItem struct {
	EMA         float64   `json:"ema"`
	SampleCount int64     `json:"sampleCount"`
	LastUpdated time.Time `json:"lastUpdated"`
}

const blobVersion = 1

// RedisPredictionStore persists the predictor state as a single JSON blob
// under one key.
type RedisPredictionStore struct {
	client *redis.Client
	key    string
}

// NewRedisPredictionStore connects and verifies the connection.
func NewRedisPredictionStore(addr, password string, db int, key string) (*RedisPredictionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if key == "" {
		key = DefaultPredictionsKey
	}
	return &RedisPredictionStore{client: client, key: key}, nil
}

// NewRedisPredictionStoreWithClient wraps an existing client (shared with
// the streaming layer).
func NewRedisPredictionStoreWithClient(client *redis.Client, key string) *RedisPredictionStore {
	if key == "" {
		key = DefaultPredictionsKey
	}
	return &RedisPredictionStore{client: client, key: key}
}

// SavePredictions writes the full snapshot atomically (single SET).
func (s *RedisPredictionStore) SavePredictions(ctx context.Context, state map[string]model.EMAState) error {
	start := time.Now()
	defer func() {
		observability.RedisLatency.Observe(time.Since(start).Seconds())
	}()

	blob := predictionBlob{
		Version:     blobVersion,
		SavedAt:     time.Now().UTC(),
		Predictions: make(map[string]predictionItem, len(state)),
	}
	for taskType, st := range state {
		blob.Predictions[taskType] = predictionItem{
			EMA:         st.EMA,
			SampleCount: st.SampleCount,
			LastUpdated: st.LastUpdated,
		}
	}

	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction snapshot: %w", err)
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}

// LoadPredictions reads the snapshot. A missing key yields an empty map.
func (s *RedisPredictionStore) LoadPredictions(ctx context.Context) (map[string]model.EMAState, error) {
	start := time.Now()
	defer func() {
		observability.RedisLatency.Observe(time.Since(start).Seconds())
	}()

	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]model.EMAState{}, nil
	}
	if err != nil {
		return nil, err
	}

	var blob predictionBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prediction snapshot: %w", err)
	}
	if blob.Version != blobVersion {
		return nil, fmt.Errorf("unsupported prediction snapshot version %d", blob.Version)
	}

	out := make(map[string]model.EMAState, len(blob.Predictions))
	for taskType, item := range blob.Predictions {
		out[taskType] = model.EMAState{
			TaskType:    taskType,
			EMA:         item.EMA,
			SampleCount: item.SampleCount,
			LastUpdated: item.LastUpdated,
		}
	}
	return out, nil
}

// Reset deletes the persisted snapshot. Operator escape hatch.
func (s *RedisPredictionStore) Reset(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
