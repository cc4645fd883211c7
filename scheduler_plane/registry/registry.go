package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
	"github.com/itskum47/TaskFlux/scheduler_plane/observability"
)

var ErrWorkerNotFound = errors.New("worker not found")

// WorkerRegistry is the in-memory directory of workers keyed by id. It is
// the sole owner of live WorkerState; every read returns a copy. Writes are
// expected from a single writer (the heartbeat subscriber and its reaper);
// the dispatcher, scorer and fallback only read.
type WorkerRegistry struct {
	mu      sync.RWMutex
	workers map[string]*model.WorkerState

	// heartbeatTimeout bounds how stale a worker may be and still count as
	// available.
	heartbeatTimeout time.Duration
}

// NewWorkerRegistry creates an empty registry.
func NewWorkerRegistry(heartbeatTimeout time.Duration) *WorkerRegistry {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 30 * time.Second
	}
	return &WorkerRegistry{
		workers:          make(map[string]*model.WorkerState),
		heartbeatTimeout: heartbeatTimeout,
	}
}

// Register adds or replaces a worker. A zero LastHeartbeat is initialized
// to now so a freshly registered worker is immediately eligible.
func (r *WorkerRegistry) Register(w *model.WorkerState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *w
	if copied.Status == "" {
		copied.Status = model.WorkerIdle
	}
	if copied.MaxConcurrency <= 0 {
		copied.MaxConcurrency = 1
	}
	if copied.LastHeartbeat.IsZero() {
		copied.LastHeartbeat = time.Now()
	}
	if copied.RegisteredAt.IsZero() {
		copied.RegisteredAt = time.Now()
	}
	copied.CurrentLoad = clamp01(copied.CurrentLoad)
	r.workers[copied.ID] = &copied
	observability.RegisteredWorkers.Set(float64(len(r.workers)))
}

// Unregister removes a worker. Removing an unknown id is a no-op.
func (r *WorkerRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
	observability.RegisteredWorkers.Set(float64(len(r.workers)))
}

// Get returns a copy of the worker state.
func (r *WorkerRegistry) Get(id string) (*model.WorkerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	if !ok {
		return nil, false
	}
	copied := *w
	return &copied, true
}

// Touch refreshes the worker's heartbeat timestamp.
func (r *WorkerRegistry) Touch(id string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return ErrWorkerNotFound
	}
	w.LastHeartbeat = t
	// A heartbeat from an offline worker brings it back.
	if w.Status == model.WorkerOffline {
		w.Status = model.WorkerIdle
	}
	return nil
}

// UpdateLoad sets the worker load, clamped to [0,1].
func (r *WorkerRegistry) UpdateLoad(id string, load float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return ErrWorkerNotFound
	}
	w.CurrentLoad = clamp01(load)
	return nil
}

// UpdateActiveTasks sets the worker's active task count (floored at 0) and
// derives the idle/busy status.
func (r *WorkerRegistry) UpdateActiveTasks(id string, active int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return ErrWorkerNotFound
	}
	if active < 0 {
		active = 0
	}
	w.ActiveTasks = active
	if w.Status == model.WorkerIdle || w.Status == model.WorkerBusy {
		if active > 0 {
			w.Status = model.WorkerBusy
		} else {
			w.Status = model.WorkerIdle
		}
	}
	return nil
}

// SetStatus forces the worker's lifecycle status.
func (r *WorkerRegistry) SetStatus(id string, status model.WorkerStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return ErrWorkerNotFound
	}
	w.Status = status
	return nil
}

// Available returns copies of every worker that is simultaneously
// (a) not offline or draining, (b) within the heartbeat window, (c) below
// max concurrency, and (d) a capability superset of required. The result is
// sorted by id so repeated calls on equal state are deterministic.
func (r *WorkerRegistry) Available(required []string) []*model.WorkerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var out []*model.WorkerState
	for _, w := range r.workers {
		if w.Status == model.WorkerOffline || w.Status == model.WorkerDraining {
			continue
		}
		if now.Sub(w.LastHeartbeat) > r.heartbeatTimeout {
			continue
		}
		if w.ActiveTasks >= w.MaxConcurrency {
			continue
		}
		if !w.HasCapabilities(required) {
			continue
		}
		copied := *w
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	observability.AvailableWorkers.Set(float64(len(out)))
	return out
}

// Reap marks every worker whose heartbeat is older than timeout as offline
// and returns their ids. It never deletes; deletion happens through the
// heartbeat subscriber's removed path or explicit Unregister.
func (r *WorkerRegistry) Reap(timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var reaped []string
	for id, w := range r.workers {
		if w.Status == model.WorkerOffline {
			continue
		}
		if now.Sub(w.LastHeartbeat) >= timeout {
			w.Status = model.WorkerOffline
			reaped = append(reaped, id)
		}
	}
	sort.Strings(reaped)
	return reaped
}

// Snapshot returns copies of all workers, sorted by id.
func (r *WorkerRegistry) Snapshot() []*model.WorkerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.WorkerState, 0, len(r.workers))
	for _, w := range r.workers {
		copied := *w
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered workers.
func (r *WorkerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
