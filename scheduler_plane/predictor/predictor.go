package predictor

import (
	"context"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

// Predictor estimates task durations. Implementations must keep Predict
// I/O-free and non-blocking; the dispatcher calls it on the hot path.
type Predictor interface {
	// Predict returns a duration estimate for the task. It never performs
	// I/O. An error counts toward the dispatcher's circuit breaker.
	Predict(task *model.Task) (*model.TaskPrediction, error)

	// Feedback folds an observed duration into the per-type state.
	Feedback(taskType string, actualDurationMs float64)

	// Ready reports whether the predictor is usable. A predictor that
	// failed warm start is still ready; it simply serves defaults.
	Ready() bool
}

// PersistenceStore is the predictor's handle to snapshot storage. The
// predictor owns the interface, not the concrete store.
type PersistenceStore interface {
	SavePredictions(ctx context.Context, state map[string]model.EMAState) error
	LoadPredictions(ctx context.Context) (map[string]model.EMAState, error)
}

// NoOpPredictor is the identity predictor used for tests and bootstrapping.
// It predicts nothing and learns nothing.
type NoOpPredictor struct{}

func (NoOpPredictor) Predict(task *model.Task) (*model.TaskPrediction, error) { return nil, nil }

func (NoOpPredictor) Feedback(taskType string, actualDurationMs float64) {}

func (NoOpPredictor) Ready() bool { return true }
