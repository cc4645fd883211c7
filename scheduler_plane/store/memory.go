package store

import (
	"context"
	"sync"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

// MemoryPredictionStore keeps the snapshot in memory. Used for tests and
// single-node dev mode where Redis is unavailable.
type MemoryPredictionStore struct {
	mu    sync.RWMutex
	state map[string]model.EMAState
	saves int
}

func NewMemoryPredictionStore() *MemoryPredictionStore {
	return &MemoryPredictionStore{
		state: make(map[string]model.EMAState),
	}
}

func (s *MemoryPredictionStore) SavePredictions(ctx context.Context, state map[string]model.EMAState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]model.EMAState, len(state))
	for t, st := range state {
		copied[t] = st
	}
	s.state = copied
	s.saves++
	return nil
}

func (s *MemoryPredictionStore) LoadPredictions(ctx context.Context) (map[string]model.EMAState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make(map[string]model.EMAState, len(s.state))
	for t, st := range s.state {
		copied[t] = st
	}
	return copied, nil
}

// SaveCount returns how many snapshots have been written.
func (s *MemoryPredictionStore) SaveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
