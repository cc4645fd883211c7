package predictor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

type mockStore struct {
	mu       sync.Mutex
	saved    map[string]model.EMAState
	saves    int
	failSave bool
	failLoad bool
}

func (m *mockStore) SavePredictions(ctx context.Context, state map[string]model.EMAState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("simulated persistence outage")
	}
	m.saved = state
	m.saves++
	return nil
}

func (m *mockStore) LoadPredictions(ctx context.Context) (map[string]model.EMAState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad {
		return nil, errors.New("simulated persistence outage")
	}
	return m.saved, nil
}

func (m *mockStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func TestPredictUnknownType(t *testing.T) {
	p := NewHeuristicPredictor(DefaultConfig(), nil)

	pred, err := p.Predict(&model.Task{ID: "t1", Type: "render"})
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if pred.EstimatedDurationMs != 5000 {
		t.Errorf("expected default 5000ms for unknown type, got %v", pred.EstimatedDurationMs)
	}
	if pred.Confidence != 0 {
		t.Errorf("expected confidence 0 for unknown type, got %v", pred.Confidence)
	}
	if pred.RecommendedWorker != "" {
		t.Errorf("predictor must not recommend workers, got %q", pred.RecommendedWorker)
	}
}

func TestFeedbackFirstSampleSeedsEMA(t *testing.T) {
	p := NewHeuristicPredictor(DefaultConfig(), nil)

	p.Feedback("render", 1234)

	pred, _ := p.Predict(&model.Task{ID: "t1", Type: "render"})
	if pred.EstimatedDurationMs != 1234 {
		t.Errorf("first sample must seed EMA: got %v, want 1234", pred.EstimatedDurationMs)
	}
	if math.Abs(pred.Confidence-0.01) > 1e-9 {
		t.Errorf("one sample with threshold 100 should be confidence 0.01, got %v", pred.Confidence)
	}
}

func TestFeedbackConvergence(t *testing.T) {
	// 10 samples of 1000ms starting from a 5000ms seed should converge
	// toward 1000 with alpha 0.3.
	p := NewHeuristicPredictor(DefaultConfig(), nil)
	p.Feedback("render", 5000)
	for i := 0; i < 10; i++ {
		p.Feedback("render", 1000)
	}

	pred, _ := p.Predict(&model.Task{ID: "t1", Type: "render"})
	if pred.EstimatedDurationMs >= 1500 {
		t.Errorf("EMA should be within 500ms of 1000 after 10 samples, got %v", pred.EstimatedDurationMs)
	}
	if pred.EstimatedDurationMs < 1000 {
		t.Errorf("EMA cannot undershoot the sample floor, got %v", pred.EstimatedDurationMs)
	}

	snap := p.Snapshot()
	if snap["render"].SampleCount != 11 {
		t.Errorf("sample count must be monotonic: got %d, want 11", snap["render"].SampleCount)
	}
}

func TestSnapshotIntervalTriggersPersist(t *testing.T) {
	store := &mockStore{}
	cfg := DefaultConfig()
	cfg.SnapshotInterval = 5
	p := NewHeuristicPredictor(cfg, store)

	for i := 0; i < 4; i++ {
		p.Feedback("render", 1000)
	}
	if store.saveCount() != 0 {
		t.Fatalf("persisted before interval reached: %d saves", store.saveCount())
	}

	p.Feedback("render", 1000)
	if store.saveCount() != 1 {
		t.Errorf("expected exactly 1 save after %d updates, got %d", cfg.SnapshotInterval, store.saveCount())
	}

	// Counter resets; the next interval triggers again.
	for i := 0; i < 5; i++ {
		p.Feedback("encode", 2000)
	}
	if store.saveCount() != 2 {
		t.Errorf("expected 2 saves after second interval, got %d", store.saveCount())
	}
}

func TestWarmStartRestoresState(t *testing.T) {
	store := &mockStore{}
	first := NewHeuristicPredictor(DefaultConfig(), store)
	for i := 0; i < 3; i++ {
		first.Feedback("render", 1000)
	}
	first.Close(context.Background())

	second := NewHeuristicPredictor(DefaultConfig(), store)
	second.WarmStart(context.Background())

	pred, _ := second.Predict(&model.Task{ID: "t1", Type: "render"})
	if pred.Confidence == 0 {
		t.Error("warm-started predictor should not serve zero confidence for a known type")
	}
	if pred.EstimatedDurationMs != 1000 {
		t.Errorf("restored EMA mismatch: got %v, want 1000", pred.EstimatedDurationMs)
	}
}

func TestWarmStartFailureIsNonFatal(t *testing.T) {
	store := &mockStore{failLoad: true}
	p := NewHeuristicPredictor(DefaultConfig(), store)
	p.WarmStart(context.Background())

	if !p.Ready() {
		t.Error("predictor must stay ready after a failed warm start")
	}
	pred, err := p.Predict(&model.Task{ID: "t1", Type: "render"})
	if err != nil || pred.EstimatedDurationMs != 5000 {
		t.Errorf("predictor should serve defaults after failed warm start, got %v, err %v", pred, err)
	}
}

func TestPersistFailureDoesNotAffectFeedback(t *testing.T) {
	store := &mockStore{failSave: true}
	cfg := DefaultConfig()
	cfg.SnapshotInterval = 1
	p := NewHeuristicPredictor(cfg, store)

	p.Feedback("render", 1000)
	p.Feedback("render", 1000)

	pred, _ := p.Predict(&model.Task{ID: "t1", Type: "render"})
	if pred.EstimatedDurationMs != 1000 {
		t.Errorf("in-memory state must survive persistence outages, got %v", pred.EstimatedDurationMs)
	}
}

func TestNoOpPredictor(t *testing.T) {
	var p Predictor = NoOpPredictor{}
	pred, err := p.Predict(&model.Task{ID: "t1", Type: "render"})
	if pred != nil || err != nil {
		t.Errorf("NoOpPredictor must return (nil, nil), got (%v, %v)", pred, err)
	}
	if !p.Ready() {
		t.Error("NoOpPredictor must be ready")
	}
}
