package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

// FallbackScheduler provides deterministic non-predictive worker selection:
// a rotating round-robin cursor and a lowest-load variant. Both operate on
// the eligible-worker list recomputed by the caller per call.
type FallbackScheduler struct {
	mu     sync.Mutex
	cursor int
}

func NewFallbackScheduler() *FallbackScheduler {
	return &FallbackScheduler{}
}

// RoundRobin picks the next worker in id order, advancing the cursor modulo
// the candidate count. Returns nil when no worker is eligible.
func (f *FallbackScheduler) RoundRobin(task *model.Task, candidates []*model.WorkerState, reason model.DecisionReason) *model.SchedulingDecision {
	if len(candidates) == 0 {
		return nil
	}

	// Stable order so the rotation is reproducible across calls.
	sorted := make([]*model.WorkerState, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	f.mu.Lock()
	idx := f.cursor % len(sorted)
	f.cursor = (f.cursor + 1) % len(sorted)
	f.mu.Unlock()

	return &model.SchedulingDecision{
		TaskID:       task.ID,
		WorkerID:     sorted[idx].ID,
		Timestamp:    time.Now().UTC(),
		UsedFallback: true,
		Reason:       reason,
	}
}

// LowestLoad picks the candidate with the smallest (currentLoad,
// activeTasks/maxConcurrency, id) tuple.
func (f *FallbackScheduler) LowestLoad(task *model.Task, candidates []*model.WorkerState, reason model.DecisionReason) *model.SchedulingDecision {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]*model.WorkerState, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.CurrentLoad != b.CurrentLoad {
			return a.CurrentLoad < b.CurrentLoad
		}
		ra := saturation(a)
		rb := saturation(b)
		if ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})

	return &model.SchedulingDecision{
		TaskID:       task.ID,
		WorkerID:     sorted[0].ID,
		Timestamp:    time.Now().UTC(),
		UsedFallback: true,
		Reason:       reason,
	}
}

func saturation(w *model.WorkerState) float64 {
	if w.MaxConcurrency <= 0 {
		return 1
	}
	return float64(w.ActiveTasks) / float64(w.MaxConcurrency)
}
