package predictor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
	"github.com/itskum47/TaskFlux/scheduler_plane/observability"
)

// Config holds the tunables of the heuristic predictor.
type Config struct {
	// Alpha is the EMA smoothing factor in (0,1].
	Alpha float64

	// DefaultDurationMs is served for unknown task types (confidence 0).
	DefaultDurationMs float64

	// ConfidenceThreshold is the sample count at which confidence reaches 1.
	ConfidenceThreshold int64

	// SnapshotInterval is the number of feedback updates between persists.
	SnapshotInterval int64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:               0.3,
		DefaultDurationMs:   5000,
		ConfidenceThreshold: 100,
		SnapshotInterval:    100,
	}
}

// HeuristicPredictor keeps per-task-type EMA duration state entirely in
// memory. Persistence is best-effort: warm start on init, a snapshot every
// SnapshotInterval updates, and a final persist on Close. Persistence
// failures never affect Predict or Feedback.
type HeuristicPredictor struct {
	mu    sync.RWMutex
	state map[string]*model.EMAState

	cfg   Config
	store PersistenceStore // May be nil (no persistence)

	snapshotCounter int64
}

// NewHeuristicPredictor creates a predictor with the given persistence
// handle. Pass nil for a purely in-memory predictor.
func NewHeuristicPredictor(cfg Config, store PersistenceStore) *HeuristicPredictor {
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = 0.3
	}
	if cfg.DefaultDurationMs <= 0 {
		cfg.DefaultDurationMs = 5000
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 100
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 100
	}
	return &HeuristicPredictor{
		state: make(map[string]*model.EMAState),
		cfg:   cfg,
		store: store,
	}
}

// WarmStart loads persisted state. A load failure is logged and the
// predictor continues with an empty map.
func (p *HeuristicPredictor) WarmStart(ctx context.Context) {
	if p.store == nil {
		return
	}
	loaded, err := p.store.LoadPredictions(ctx)
	if err != nil {
		log.Printf("predictor: warm start failed, continuing with empty state: %v", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for taskType, st := range loaded {
		copied := st
		copied.TaskType = taskType
		p.state[taskType] = &copied
	}
	log.Printf("predictor: warm start restored %d task types", len(loaded))
}

// Predict returns the current estimate for the task's type. O(1), no I/O.
func (p *HeuristicPredictor) Predict(task *model.Task) (*model.TaskPrediction, error) {
	p.mu.RLock()
	st, ok := p.state[task.Type]
	var ema float64
	var samples int64
	if ok {
		ema = st.EMA
		samples = st.SampleCount
	}
	p.mu.RUnlock()

	if !ok {
		return &model.TaskPrediction{
			TaskID:              task.ID,
			EstimatedDurationMs: p.cfg.DefaultDurationMs,
			Confidence:          0,
		}, nil
	}

	return &model.TaskPrediction{
		TaskID:              task.ID,
		EstimatedDurationMs: ema,
		Confidence:          Confidence(samples, p.cfg.ConfidenceThreshold),
	}, nil
}

// Feedback folds an observed duration into the type's EMA and bumps the
// snapshot counter, persisting when the interval is reached.
func (p *HeuristicPredictor) Feedback(taskType string, actualDurationMs float64) {
	if taskType == "" {
		return
	}

	p.mu.Lock()
	st, ok := p.state[taskType]
	if !ok {
		p.state[taskType] = &model.EMAState{
			TaskType:    taskType,
			EMA:         actualDurationMs,
			SampleCount: 1,
			LastUpdated: time.Now().UTC(),
		}
	} else {
		st.EMA = Blend(st.EMA, actualDurationMs, p.cfg.Alpha)
		st.SampleCount++
		st.LastUpdated = time.Now().UTC()
	}
	p.snapshotCounter++
	shouldPersist := p.snapshotCounter >= p.cfg.SnapshotInterval
	if shouldPersist {
		p.snapshotCounter = 0
	}
	p.mu.Unlock()

	if shouldPersist {
		p.persist(context.Background())
	}
}

// Ready always reports true: a predictor with empty state still serves
// default estimates.
func (p *HeuristicPredictor) Ready() bool { return true }

// Close persists the full state once. Safe to call with no store.
func (p *HeuristicPredictor) Close(ctx context.Context) {
	p.persist(ctx)
}

// Snapshot returns a copy of the current state map.
func (p *HeuristicPredictor) Snapshot() map[string]model.EMAState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]model.EMAState, len(p.state))
	for t, st := range p.state {
		out[t] = *st
	}
	return out
}

// Reset drops all learned state. Operator escape hatch.
func (p *HeuristicPredictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = make(map[string]*model.EMAState)
	p.snapshotCounter = 0
}

func (p *HeuristicPredictor) persist(ctx context.Context) {
	if p.store == nil {
		return
	}
	snapshot := p.Snapshot()
	if err := p.store.SavePredictions(ctx, snapshot); err != nil {
		observability.SnapshotPersists.WithLabelValues("error").Inc()
		log.Printf("predictor: snapshot persist failed (%d types), continuing from memory: %v", len(snapshot), err)
		return
	}
	observability.SnapshotPersists.WithLabelValues("ok").Inc()
}
