package scheduler

import (
	"testing"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

func worker(id string, load float64, active, maxConc int) *model.WorkerState {
	return &model.WorkerState{ID: id, CurrentLoad: load, ActiveTasks: active, MaxConcurrency: maxConc}
}

func TestScoreNoCandidates(t *testing.T) {
	s := NewScorer(DefaultWeights(), DefaultScorerConfig(), 5000)
	if res := s.Score(&model.Task{ID: "t1"}, nil, nil); res != nil {
		t.Errorf("empty candidate list must yield nil, got %+v", res)
	}
}

func TestScorePrefersIdleLightWorker(t *testing.T) {
	s := NewScorer(DefaultWeights(), DefaultScorerConfig(), 5000)
	candidates := []*model.WorkerState{
		worker("busy", 0.9, 3, 4),
		worker("light", 0.1, 0, 4),
	}

	res := s.Score(&model.Task{ID: "t1", Priority: 5}, candidates, nil)
	if res == nil {
		t.Fatal("expected a score result")
	}
	if res.Worker.ID != "light" {
		t.Errorf("expected light worker to win, got %s", res.Worker.ID)
	}
	if res.Score < 0 || res.Score > 1 {
		t.Errorf("composite score out of [0,1]: %v", res.Score)
	}
	if len(res.Alternatives) != 1 || res.Alternatives[0].WorkerID != "busy" {
		t.Errorf("alternatives must hold the losing candidates, got %+v", res.Alternatives)
	}
}

func TestScoreDeterministicTieBreak(t *testing.T) {
	s := NewScorer(DefaultWeights(), DefaultScorerConfig(), 5000)
	candidates := []*model.WorkerState{
		worker("w2", 0.5, 1, 4),
		worker("w1", 0.5, 1, 4),
	}

	for i := 0; i < 10; i++ {
		res := s.Score(&model.Task{ID: "t1", Priority: 5}, candidates, nil)
		if res.Worker.ID != "w1" {
			t.Fatalf("equal scores must break ties by ascending id, got %s", res.Worker.ID)
		}
	}
}

func TestScoreUsesPrediction(t *testing.T) {
	// With a huge predicted duration, the queued worker's wait score
	// collapses and the idle worker must win even at higher load.
	s := NewScorer(Weights{Wait: 1, Load: 0, Priority: 0}, DefaultScorerConfig(), 5000)
	candidates := []*model.WorkerState{
		worker("queued", 0.1, 3, 8),
		worker("idle", 0.9, 0, 8),
	}
	pred := &model.TaskPrediction{EstimatedDurationMs: 30000, Confidence: 0.8}

	res := s.Score(&model.Task{ID: "t1"}, candidates, pred)
	if res.Worker.ID != "idle" {
		t.Errorf("wait-dominated scoring must pick the idle worker, got %s", res.Worker.ID)
	}
}

func TestScoreBounds(t *testing.T) {
	s := NewScorer(DefaultWeights(), DefaultScorerConfig(), 5000)
	candidates := []*model.WorkerState{
		worker("extreme", 5.0, 100, 4), // Load and wait beyond the clamps
	}

	res := s.Score(&model.Task{ID: "t1", Priority: 99}, candidates, nil)
	if res.Score < 0 || res.Score > 1 {
		t.Errorf("score must stay in [0,1] under extreme inputs, got %v", res.Score)
	}
}

func TestUpdateWeightsValidation(t *testing.T) {
	s := NewScorer(DefaultWeights(), DefaultScorerConfig(), 5000)

	if err := s.UpdateWeights(Weights{Wait: 0.5, Load: 0.5, Priority: 0.5}); err == nil {
		t.Error("weights summing to 1.5 must be rejected")
	}
	if err := s.UpdateWeights(Weights{Wait: -0.2, Load: 1.0, Priority: 0.2}); err == nil {
		t.Error("negative weight must be rejected")
	}
	if got := s.CurrentWeights(); got != DefaultWeights() {
		t.Errorf("rejected update must not mutate weights, got %+v", got)
	}

	want := Weights{Wait: 0.6, Load: 0.3, Priority: 0.1}
	if err := s.UpdateWeights(want); err != nil {
		t.Fatalf("valid weights rejected: %v", err)
	}
	if got := s.CurrentWeights(); got != want {
		t.Errorf("weights not applied: got %+v, want %+v", got, want)
	}
}

func TestNewScorerRejectsInvalidWeights(t *testing.T) {
	s := NewScorer(Weights{Wait: 2, Load: 2, Priority: 2}, DefaultScorerConfig(), 5000)
	if got := s.CurrentWeights(); got != DefaultWeights() {
		t.Errorf("invalid constructor weights must fall back to defaults, got %+v", got)
	}
}
