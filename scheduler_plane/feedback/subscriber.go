package feedback

import (
	"context"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
	"github.com/itskum47/TaskFlux/scheduler_plane/observability"
	"github.com/itskum47/TaskFlux/scheduler_plane/predictor"
	"github.com/itskum47/TaskFlux/scheduler_plane/scheduler"
	"github.com/itskum47/TaskFlux/scheduler_plane/streaming"
)

// DurationObserver receives actual task durations per worker (the capacity
// tracker's rolling average).
type DurationObserver interface {
	ObserveDuration(workerID string, durationMs float64)
}

// SampleSink receives accuracy samples for offline analysis. Best-effort.
type SampleSink interface {
	RecordSample(ctx context.Context, sample *model.PredictionSample) error
}

// Config holds the feedback pipeline's tunables.
type Config struct {
	AccuracyWindowSize int     // Rolling window size, default 1000
	AccuracyThreshold  float64 // Relative error counted as accurate, default 0.25
	AccuracyCheckEvery int     // Events between accuracy checks, default 100
	WarnBelow          float64 // Accuracy warning threshold, default 0.8
	DriftLower         float64 // actual/predicted below this is drift, default 0.5
	DriftUpper         float64 // actual/predicted above this is drift, default 2.0
	BatchSize          int64
	BlockTimeout       time.Duration
	EventBuffer        int
	DriftEventRate     float64 // Max drift events per task type per second
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AccuracyWindowSize: 1000,
		AccuracyThreshold:  0.25,
		AccuracyCheckEvery: 100,
		WarnBelow:          0.8,
		DriftLower:         0.5,
		DriftUpper:         2.0,
		BatchSize:          10,
		BlockTimeout:       time.Second,
		EventBuffer:        256,
		DriftEventRate:     1,
	}
}

// driftMajorFactor bounds minor drift: within 3x in either direction is
// minor, beyond is major.
const driftMajorFactor = 3.0

// Subscriber closes the learning loop: it consumes completion events,
// forwards actuals to the predictor and the capacity tracker, detects
// drift and tracks rolling accuracy.
type Subscriber struct {
	source    streaming.Source
	predictor predictor.Predictor
	observer  DurationObserver // May be nil
	sink      SampleSink       // May be nil
	cfg       Config

	tracker      *AccuracyTracker
	events       chan model.FeedbackEvent
	driftLimiter *scheduler.KeyedLimiter

	eventCount atomic.Int64
	started    atomic.Bool
	stopped    atomic.Bool
	stopOnce   sync.Once
	done       chan struct{}
}

// NewSubscriber wires the feedback pipeline. observer and sink may be nil.
func NewSubscriber(source streaming.Source, pred predictor.Predictor, observer DurationObserver, sink SampleSink, cfg Config) *Subscriber {
	if cfg.AccuracyWindowSize <= 0 {
		cfg.AccuracyWindowSize = 1000
	}
	if cfg.AccuracyThreshold <= 0 {
		cfg.AccuracyThreshold = 0.25
	}
	if cfg.AccuracyCheckEvery <= 0 {
		cfg.AccuracyCheckEvery = 100
	}
	if cfg.WarnBelow <= 0 {
		cfg.WarnBelow = 0.8
	}
	if cfg.DriftLower <= 0 {
		cfg.DriftLower = 0.5
	}
	if cfg.DriftUpper <= 0 {
		cfg.DriftUpper = 2.0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.DriftEventRate <= 0 {
		cfg.DriftEventRate = 1
	}
	return &Subscriber{
		source:       source,
		predictor:    pred,
		observer:     observer,
		sink:         sink,
		cfg:          cfg,
		tracker:      NewAccuracyTracker(cfg.AccuracyWindowSize),
		events:       make(chan model.FeedbackEvent, cfg.EventBuffer),
		driftLimiter: scheduler.NewKeyedLimiter(cfg.DriftEventRate, 2),
		done:         make(chan struct{}),
	}
}

// Events is the bounded channel of feedback events.
func (s *Subscriber) Events() <-chan model.FeedbackEvent { return s.events }

// Accuracy returns the current rolling accuracy.
func (s *Subscriber) Accuracy() float64 { return s.tracker.Accuracy() }

// Start runs the consume loop. Calling it more than once is a no-op.
func (s *Subscriber) Start(ctx context.Context) {
	if s.started.Swap(true) {
		return
	}
	go s.loop(ctx)
}

// Stop flags the subscriber; ProcessCompletion becomes a no-op and the loop
// drains at the block timeout. Idempotent, and returns immediately when the
// subscriber was never started.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
	})
	if !s.started.Load() {
		return
	}
	<-s.done
}

func (s *Subscriber) loop(ctx context.Context) {
	defer close(s.done)

	log.Printf("feedback: subscriber started (window=%d, drift band [%.2f, %.2f])",
		s.cfg.AccuracyWindowSize, s.cfg.DriftLower, s.cfg.DriftUpper)

	for !s.stopped.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := s.source.Read(ctx, s.cfg.BatchSize, s.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("feedback: stream read failed, retrying in 1s: %v", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, msg := range msgs {
			ev, err := model.CompletionFromStreamFields(msg.Fields)
			if err != nil {
				log.Printf("feedback: dropping malformed completion %s: %v", msg.ID, err)
			} else {
				s.ProcessCompletion(ctx, ev)
			}
			if ackErr := s.source.Ack(ctx, msg.ID); ackErr != nil {
				log.Printf("feedback: failed to ack completion %s: %v", msg.ID, ackErr)
			}
		}
	}
}

// ProcessCompletion folds one completion event into the learned state.
// No-op after Stop.
func (s *Subscriber) ProcessCompletion(ctx context.Context, ev *model.CompletionEvent) {
	if s.stopped.Load() {
		return
	}
	observability.CompletionsProcessed.WithLabelValues(boolLabel(ev.Success)).Inc()

	if ev.PredictedDurationMs > 0 {
		s.checkDrift(ev)
		s.recordSample(ctx, ev)
	}

	if ev.TaskType != "" && ev.DurationMs > 0 {
		s.predictor.Feedback(ev.TaskType, ev.DurationMs)
		if s.driftLimiter.Allow("updated:" + ev.TaskType) {
			s.emit(model.FeedbackEvent{
				Type:      model.EventPredictionUpdated,
				TaskID:    ev.TaskID,
				TaskType:  ev.TaskType,
				ActualMs:  ev.DurationMs,
				Timestamp: time.Now(),
			})
		}
	}

	if s.observer != nil && ev.WorkerID != "" && ev.DurationMs > 0 {
		s.observer.ObserveDuration(ev.WorkerID, ev.DurationMs)
	}

	if n := s.eventCount.Add(1); n%int64(s.cfg.AccuracyCheckEvery) == 0 {
		s.checkAccuracy()
	}
}

// checkDrift flags completions whose actual/predicted ratio falls outside
// the configured band.
func (s *Subscriber) checkDrift(ev *model.CompletionEvent) {
	ratio := ev.DurationMs / ev.PredictedDurationMs
	if ratio >= s.cfg.DriftLower && ratio <= s.cfg.DriftUpper {
		return
	}

	severity := model.DriftMinor
	if ratio > driftMajorFactor || ratio < 1/driftMajorFactor {
		severity = model.DriftMajor
	}
	observability.DriftEvents.WithLabelValues(string(severity)).Inc()
	log.Printf("feedback: drift on type %s (predicted %.0fms, actual %.0fms, ratio %.2f, %s)",
		ev.TaskType, ev.PredictedDurationMs, ev.DurationMs, ratio, severity)

	if s.driftLimiter.Allow("drift:" + ev.TaskType) {
		s.emit(model.FeedbackEvent{
			Type:        model.EventDriftDetected,
			TaskID:      ev.TaskID,
			TaskType:    ev.TaskType,
			PredictedMs: ev.PredictedDurationMs,
			ActualMs:    ev.DurationMs,
			Severity:    severity,
			Timestamp:   time.Now(),
		})
	}
}

func (s *Subscriber) recordSample(ctx context.Context, ev *model.CompletionEvent) {
	relErr := math.Abs(ev.DurationMs-ev.PredictedDurationMs) / ev.PredictedDurationMs
	sample := model.PredictionSample{
		TaskType:        ev.TaskType,
		PredictedMs:     ev.PredictedDurationMs,
		ActualMs:        ev.DurationMs,
		Timestamp:       time.Now().UTC(),
		WithinThreshold: relErr <= s.cfg.AccuracyThreshold,
	}
	s.tracker.Add(sample)

	if s.sink != nil {
		sinkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.sink.RecordSample(sinkCtx, &sample); err != nil {
			log.Printf("feedback: sample audit write dropped (type %s): %v", ev.TaskType, err)
		}
	}
}

func (s *Subscriber) checkAccuracy() {
	if s.tracker.Len() == 0 {
		return
	}
	accuracy := s.tracker.Accuracy()
	observability.RollingAccuracy.Set(accuracy)
	if accuracy < s.cfg.WarnBelow {
		log.Printf("feedback: rolling accuracy %.3f below %.2f over %d samples",
			accuracy, s.cfg.WarnBelow, s.tracker.Len())
		s.emit(model.FeedbackEvent{
			Type:      model.EventAccuracyWarning,
			Accuracy:  accuracy,
			Timestamp: time.Now(),
		})
	}
}

func (s *Subscriber) emit(ev model.FeedbackEvent) {
	select {
	case s.events <- ev:
	default:
		observability.EventPublishFailures.WithLabelValues(string(ev.Type), "channel_full").Inc()
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
