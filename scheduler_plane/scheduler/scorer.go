package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

// ScoredWorker pairs a candidate with its composite score.
type ScoredWorker struct {
	WorkerID string  `json:"worker_id"`
	Score    float64 `json:"score"`
}

// ScoreResult is the scorer's choice plus the ranked alternatives.
type ScoreResult struct {
	Worker       *model.WorkerState
	Score        float64
	Reasoning    string
	Alternatives []ScoredWorker
}

// Scorer ranks candidate workers per task by blending predicted wait,
// current load and task priority. Pure per-decision: no I/O, no blocking.
// Weights are runtime-updatable under the mutex.
type Scorer struct {
	mu      sync.RWMutex
	weights Weights
	cfg     ScorerConfig

	defaultDurationMs float64
}

// NewScorer creates a scorer with the given weights; invalid weights fall
// back to the defaults.
func NewScorer(weights Weights, cfg ScorerConfig, defaultDurationMs float64) *Scorer {
	if err := weights.Validate(); err != nil {
		weights = DefaultWeights()
	}
	if cfg.MaxWaitMs <= 0 {
		cfg.MaxWaitMs = DefaultScorerConfig().MaxWaitMs
	}
	if cfg.MaxPriority <= 0 {
		cfg.MaxPriority = DefaultScorerConfig().MaxPriority
	}
	if defaultDurationMs <= 0 {
		defaultDurationMs = 5000
	}
	return &Scorer{
		weights:           weights,
		cfg:               cfg,
		defaultDurationMs: defaultDurationMs,
	}
}

// UpdateWeights swaps the weight vector after validation.
func (s *Scorer) UpdateWeights(w Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = w
	return nil
}

// CurrentWeights returns the active weight vector.
func (s *Scorer) CurrentWeights() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// Score picks the best worker for the task among the candidates. The
// candidates are assumed pre-filtered by the registry (status, staleness,
// capacity, capabilities). Returns nil when no candidate is given.
// Tie-breaking is deterministic: equal scores resolve by ascending id.
func (s *Scorer) Score(task *model.Task, candidates []*model.WorkerState, pred *model.TaskPrediction) *ScoreResult {
	if len(candidates) == 0 {
		return nil
	}

	s.mu.RLock()
	w := s.weights
	s.mu.RUnlock()

	predictedMs := s.defaultDurationMs
	if pred != nil && pred.EstimatedDurationMs > 0 {
		predictedMs = pred.EstimatedDurationMs
	}

	scored := make([]ScoredWorker, 0, len(candidates))
	byID := make(map[string]*model.WorkerState, len(candidates))
	for _, cand := range candidates {
		waitScore := s.waitScore(cand.ActiveTasks, predictedMs)
		loadScore := 1 - clamp(cand.CurrentLoad, 0, 1)
		priorityScore := s.priorityScore(task.Priority)

		score := w.Wait*waitScore + w.Load*loadScore + w.Priority*priorityScore
		scored = append(scored, ScoredWorker{WorkerID: cand.ID, Score: score})
		byID[cand.ID] = cand
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].WorkerID < scored[j].WorkerID
	})

	best := scored[0]
	return &ScoreResult{
		Worker: byID[best.WorkerID],
		Score:  best.Score,
		Reasoning: fmt.Sprintf("worker %s scored %.4f (wait=%.2f load=%.2f priority=%.2f, predicted %.0fms, %d candidates)",
			best.WorkerID, best.Score, w.Wait, w.Load, w.Priority, predictedMs, len(candidates)),
		Alternatives: scored[1:],
	}
}

// waitScore normalizes estimated wait (activeTasks * predicted duration)
// against the configured ceiling: 0 wait scores 1, MaxWaitMs scores 0.
func (s *Scorer) waitScore(activeTasks int, predictedMs float64) float64 {
	estimatedWait := float64(activeTasks) * predictedMs
	return 1 - clamp(estimatedWait, 0, s.cfg.MaxWaitMs)/s.cfg.MaxWaitMs
}

func (s *Scorer) priorityScore(priority int) float64 {
	maxP := float64(s.cfg.MaxPriority)
	return clamp(float64(priority), 0, maxP) / maxP
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
