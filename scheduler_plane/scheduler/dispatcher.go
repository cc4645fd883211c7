package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
	"github.com/itskum47/TaskFlux/scheduler_plane/observability"
	"github.com/itskum47/TaskFlux/scheduler_plane/predictor"
	"github.com/itskum47/TaskFlux/scheduler_plane/registry"
	"github.com/itskum47/TaskFlux/scheduler_plane/streaming"
)

// AuditSink receives decisions for offline analysis. Writes are
// best-effort; the dispatcher logs and drops failures.
type AuditSink interface {
	RecordDecision(ctx context.Context, d *model.SchedulingDecision) error
}

// Dispatcher owns the consume -> predict -> score -> publish loop and the
// predictor circuit breaker. Acknowledgment is gated on a successful
// publish, so the consumer group redelivers anything that did not reach a
// worker channel.
type Dispatcher struct {
	source    streaming.Source
	publisher streaming.Publisher
	registry  *registry.WorkerRegistry
	predictor predictor.Predictor
	scorer    *Scorer
	fallback  *FallbackScheduler
	breaker   *CircuitBreaker
	audit     AuditSink // May be nil

	cfg     DispatcherConfig
	started atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
}

// NewDispatcher wires the hot path. audit may be nil.
func NewDispatcher(
	source streaming.Source,
	publisher streaming.Publisher,
	reg *registry.WorkerRegistry,
	pred predictor.Predictor,
	scorer *Scorer,
	fallback *FallbackScheduler,
	audit AuditSink,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.FallbackThreshold < 1 {
		cfg.FallbackThreshold = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = time.Second
	}
	if cfg.DispatchPrefix == "" {
		cfg.DispatchPrefix = DefaultDispatcherConfig().DispatchPrefix
	}
	if cfg.DefaultDurationMs <= 0 {
		cfg.DefaultDurationMs = 5000
	}
	return &Dispatcher{
		source:    source,
		publisher: publisher,
		registry:  reg,
		predictor: pred,
		scorer:    scorer,
		fallback:  fallback,
		breaker:   NewCircuitBreaker(cfg.FallbackThreshold, cfg.ProbeInterval),
		audit:     audit,
		cfg:       cfg,
		done:      make(chan struct{}),
	}
}

// Start runs the dispatch loop until Stop or context cancellation. Calling
// it more than once is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.started.Swap(true) {
		return
	}
	go d.loop(ctx)
}

// Stop flags the loop to exit; an in-flight read unblocks at the block
// timeout. Returns once the loop has drained, or immediately when the
// dispatcher was never started.
func (d *Dispatcher) Stop() {
	if d.stopped.Swap(true) {
		return
	}
	if !d.started.Load() {
		return
	}
	<-d.done
}

// Breaker exposes the circuit breaker state for the debug surface.
func (d *Dispatcher) Breaker() BreakerState {
	return d.breaker.State()
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)

	log.Printf("dispatcher: loop started (batch=%d block=%v threshold=%d)",
		d.cfg.BatchSize, d.cfg.BlockTimeout, d.cfg.FallbackThreshold)

	for !d.stopped.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := d.source.Read(ctx, d.cfg.BatchSize, d.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			observability.StreamReadErrors.Inc()
			log.Printf("dispatcher: stream read failed, retrying in 1s: %v", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		// Batch order is stream order; process sequentially.
		for _, msg := range msgs {
			d.handleMessage(ctx, msg)
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg streaming.Message) {
	task, err := model.TaskFromStreamFields(msg.Fields)
	if err != nil {
		// Poison message: ack to drain, data loss preferred over a retry
		// storm.
		observability.DispatchFailures.WithLabelValues("malformed_task").Inc()
		log.Printf("dispatcher: dropping malformed task message %s: %v", msg.ID, err)
		if ackErr := d.source.Ack(ctx, msg.ID); ackErr != nil {
			log.Printf("dispatcher: failed to ack poison message %s: %v", msg.ID, ackErr)
		}
		return
	}

	result := d.DispatchTask(ctx, task)
	if !result.Success {
		// Leave unacked; the consumer group redelivers.
		log.Printf("dispatcher: task %s not dispatched (will redeliver): %s", task.ID, result.Error)
		return
	}

	if err := d.source.Ack(ctx, msg.ID); err != nil {
		// The assignment is already published; redelivery will produce a
		// duplicate the worker contract tolerates by taskId.
		log.Printf("dispatcher: failed to ack message %s after publish: %v", msg.ID, err)
	}
}

// DispatchTask selects a worker for the task and publishes the assignment.
// Decision precedes publish precedes ack (the caller acks).
func (d *Dispatcher) DispatchTask(ctx context.Context, task *model.Task) *model.DispatchResult {
	start := time.Now()
	defer func() {
		observability.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	candidates := d.registry.Available(task.RequiredCapabilities)

	wasOpen := d.breaker.IsOpen()
	decision := d.decide(task, candidates, wasOpen)
	if decision == nil {
		observability.DispatchFailures.WithLabelValues("no_workers").Inc()
		return &model.DispatchResult{Success: false, Error: ErrNoWorkersAvailable.Error()}
	}

	assignment := &model.Assignment{
		TaskID:     task.ID,
		Task:       task,
		AssignedAt: time.Now().UTC(),
	}
	channel := d.cfg.DispatchPrefix + decision.WorkerID
	if err := d.publisher.Publish(ctx, channel, assignment); err != nil {
		observability.PublishFailures.Inc()
		observability.DispatchFailures.WithLabelValues("publish_error").Inc()
		return &model.DispatchResult{Success: false, Decision: decision, Error: err.Error()}
	}

	observability.DispatchDecisions.WithLabelValues(string(decision.Reason)).Inc()
	d.logDecision(decision)
	d.recordAudit(ctx, decision)

	return &model.DispatchResult{Success: true, Decision: decision}
}

// decide produces a decision or nil when no worker is eligible. wasOpen is
// the breaker state observed at dispatch entry and determines the fallback
// reason.
func (d *Dispatcher) decide(task *model.Task, candidates []*model.WorkerState, wasOpen bool) *model.SchedulingDecision {
	if pred := d.tryPredict(task); pred != nil {
		if pred.RecommendedWorker != "" {
			w, ok := d.registry.Get(pred.RecommendedWorker)
			if !ok || w.Status == model.WorkerOffline || w.Status == model.WorkerDraining {
				// A recommendation for a missing or ineligible worker is a
				// predictor failure; count it and take the fallback path.
				d.breaker.RecordFailure()
				observability.PredictorPredictions.WithLabelValues("invalid_worker").Inc()
				log.Printf("dispatcher: predictor recommended unavailable worker %s for task %s",
					pred.RecommendedWorker, task.ID)
			} else {
				d.acceptPrediction(pred)
				return &model.SchedulingDecision{
					TaskID:       task.ID,
					WorkerID:     w.ID,
					Timestamp:    time.Now().UTC(),
					UsedFallback: false,
					Reason:       model.ReasonPrediction,
					Prediction:   pred,
				}
			}
		} else {
			d.acceptPrediction(pred)
			if res := d.scorer.Score(task, candidates, pred); res != nil {
				return &model.SchedulingDecision{
					TaskID:       task.ID,
					WorkerID:     res.Worker.ID,
					Timestamp:    time.Now().UTC(),
					UsedFallback: false,
					Reason:       model.ReasonPrediction,
					Score:        res.Score,
					Prediction:   pred,
				}
			}
			// Prediction succeeded but no eligible worker: fall through so
			// the failure reason reflects worker availability, not the
			// predictor.
		}
	}

	reason := model.ReasonFallbackRoundRobin
	if wasOpen {
		reason = model.ReasonFallbackCircuitBreaker
	}
	return d.fallback.RoundRobin(task, candidates, reason)
}

// tryPredict calls the predictor under the circuit breaker. A prediction
// error counts as a failure immediately; success is recorded by decide only
// after any worker recommendation validates, so an invalid recommendation
// counts toward the breaker too.
func (d *Dispatcher) tryPredict(task *model.Task) *model.TaskPrediction {
	if !d.breaker.AllowAttempt() {
		observability.PredictorPredictions.WithLabelValues("skipped_open").Inc()
		return nil
	}

	pred, err := d.predictor.Predict(task)
	if err != nil {
		d.breaker.RecordFailure()
		observability.PredictorPredictions.WithLabelValues("error").Inc()
		log.Printf("dispatcher: predictor failed for task %s (type %s): %v", task.ID, task.Type, err)
		return nil
	}
	if pred == nil {
		// NoOp predictor: not a failure, just no estimate.
		return nil
	}
	return pred
}

// acceptPrediction closes the breaker and records the served prediction.
func (d *Dispatcher) acceptPrediction(pred *model.TaskPrediction) {
	d.breaker.RecordSuccess()
	observability.PredictorPredictions.WithLabelValues("ok").Inc()
	observability.PredictionConfidence.Observe(pred.Confidence)
}

// logDecision emits the one-line JSON decision record.
func (d *Dispatcher) logDecision(decision *model.SchedulingDecision) {
	bytes, _ := json.Marshal(decision)
	log.Println(string(bytes))
}

func (d *Dispatcher) recordAudit(ctx context.Context, decision *model.SchedulingDecision) {
	if d.audit == nil {
		return
	}
	auditCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.audit.RecordDecision(auditCtx, decision); err != nil {
		log.Printf("dispatcher: audit write dropped for task %s: %v", decision.TaskID, err)
	}
}
