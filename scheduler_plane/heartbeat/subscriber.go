package heartbeat

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
	"github.com/itskum47/TaskFlux/scheduler_plane/observability"
	"github.com/itskum47/TaskFlux/scheduler_plane/registry"
	"github.com/itskum47/TaskFlux/scheduler_plane/scheduler"
	"github.com/itskum47/TaskFlux/scheduler_plane/streaming"
)

// Config holds the subscriber's tunables.
type Config struct {
	Thresholds           registry.HealthThresholds
	HealthCheckInterval  time.Duration // Reaper period, default 5s
	DefaultAvgDurationMs float64       // Seed for the per-worker duration EMA
	EventBuffer          int           // Bounded event channel size
	LoadEventRate        float64       // Max load-change events per worker per second
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds:           registry.DefaultHealthThresholds(),
		HealthCheckInterval:  5 * time.Second,
		DefaultAvgDurationMs: 5000,
		EventBuffer:          256,
		LoadEventRate:        1,
	}
}

// Subscriber consumes worker telemetry, maintains the capacity map, keeps
// the registry current and emits state-transition events. It is the single
// writer of the registry (together with its reaper).
type Subscriber struct {
	source streaming.HeartbeatSource
	reg    *registry.WorkerRegistry
	cfg    Config

	mu       sync.RWMutex
	capacity map[string]*model.WorkerCapacity

	events      chan model.WorkerEvent
	loadLimiter *scheduler.KeyedLimiter

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewSubscriber creates a subscriber over the given telemetry source.
func NewSubscriber(source streaming.HeartbeatSource, reg *registry.WorkerRegistry, cfg Config) *Subscriber {
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 5 * time.Second
	}
	if cfg.DefaultAvgDurationMs <= 0 {
		cfg.DefaultAvgDurationMs = 5000
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.LoadEventRate <= 0 {
		cfg.LoadEventRate = 1
	}
	if cfg.Thresholds.UnhealthyTimeout <= 0 {
		cfg.Thresholds = registry.DefaultHealthThresholds()
	}
	return &Subscriber{
		source:      source,
		reg:         reg,
		cfg:         cfg,
		capacity:    make(map[string]*model.WorkerCapacity),
		events:      make(chan model.WorkerEvent, cfg.EventBuffer),
		loadLimiter: scheduler.NewKeyedLimiter(cfg.LoadEventRate, 2),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Events is the bounded channel of worker transition events.
func (s *Subscriber) Events() <-chan model.WorkerEvent { return s.events }

// Start runs the consume loop and the periodic reaper. Calling it more than
// once is a no-op.
func (s *Subscriber) Start() {
	if s.started.Swap(true) {
		return
	}
	go s.loop()
}

// Stop cancels the upstream stream and the reaper. Idempotent, and returns
// immediately when the subscriber was never started.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() {
		if err := s.source.Cancel(); err != nil {
			log.Printf("heartbeat: source cancel failed: %v", err)
		}
		close(s.stopCh)
	})
	if !s.started.Load() {
		return
	}
	<-s.done
}

func (s *Subscriber) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	log.Printf("heartbeat: subscriber started (reap every %v, unhealthy %v, removed %v)",
		s.cfg.HealthCheckInterval, s.cfg.Thresholds.UnhealthyTimeout, s.cfg.Thresholds.RemovedTimeout)

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.source.Done():
			log.Println("heartbeat: upstream stream ended")
			return
		case err := <-s.source.Errors():
			log.Printf("heartbeat: stream error: %v", err)
		case rec := <-s.source.Records():
			s.processRecord(rec)
		case <-ticker.C:
			s.reap(time.Now())
		}
	}
}

// processRecord applies one telemetry sample. Unknown workers are ignored;
// registration happens through the registry's management surface.
func (s *Subscriber) processRecord(rec model.HeartbeatRecord) {
	if _, ok := s.reg.Get(rec.WorkerID); !ok {
		return
	}
	observability.HeartbeatsProcessed.Inc()

	now := time.Now()
	load := registry.CurrentLoad(rec.CPUUsage, rec.MemoryUsage)

	// Age of the sample itself; a fresh heartbeat classifies on load alone.
	age := time.Duration(0)
	if rec.TimestampMs > 0 {
		if sampleAge := now.Sub(time.UnixMilli(rec.TimestampMs)); sampleAge > 0 {
			age = sampleAge
		}
	}

	s.mu.Lock()
	cap, ok := s.capacity[rec.WorkerID]
	if !ok {
		cap = &model.WorkerCapacity{
			WorkerID:        rec.WorkerID,
			Health:          model.HealthHealthy,
			AvgTaskDuration: s.cfg.DefaultAvgDurationMs,
		}
		s.capacity[rec.WorkerID] = cap
	}
	prevHealth := cap.Health
	prevLoad := cap.LastLoad

	cap.QueueDepth = rec.QueueDepth
	cap.EstimatedFreeAt = registry.EstimatedFreeAt(now, rec.QueueDepth, cap.AvgTaskDuration)
	cap.Health = registry.ClassifyHealth(age, load, s.cfg.Thresholds)
	cap.LastLoad = load
	cap.UpdatedAt = now
	health := cap.Health
	s.mu.Unlock()

	s.reg.Touch(rec.WorkerID, now)
	s.reg.UpdateLoad(rec.WorkerID, load)
	s.reg.UpdateActiveTasks(rec.WorkerID, rec.QueueDepth)

	if health != prevHealth {
		s.emit(model.WorkerEvent{
			Type:      eventForHealth(health),
			WorkerID:  rec.WorkerID,
			Health:    health,
			Load:      load,
			Timestamp: now,
		})
	} else if registry.SignificantLoadChange(prevLoad, load) && s.loadLimiter.Allow(rec.WorkerID) {
		s.emit(model.WorkerEvent{
			Type:      model.EventWorkerLoadChanged,
			WorkerID:  rec.WorkerID,
			Health:    health,
			Load:      load,
			PrevLoad:  prevLoad,
			Timestamp: now,
		})
	}
}

// reap applies the age thresholds. Unhealthy workers are forced offline in
// the registry and emit worker_unhealthy exactly once per transition (Reap
// skips already-offline workers); removed workers are deleted from both the
// capacity map and the registry and emit worker_removed exactly once.
func (s *Subscriber) reap(now time.Time) {
	for _, w := range s.reg.Snapshot() {
		if now.Sub(w.LastHeartbeat) >= s.cfg.Thresholds.RemovedTimeout {
			s.mu.Lock()
			delete(s.capacity, w.ID)
			s.mu.Unlock()
			s.reg.Unregister(w.ID)
			s.loadLimiter.Forget(w.ID)
			log.Printf("heartbeat: worker %s removed (last heartbeat %v ago)", w.ID, now.Sub(w.LastHeartbeat))
			s.emit(model.WorkerEvent{
				Type:      model.EventWorkerRemoved,
				WorkerID:  w.ID,
				Health:    model.HealthRemoved,
				Timestamp: now,
			})
		}
	}

	for _, id := range s.reg.Reap(s.cfg.Thresholds.UnhealthyTimeout) {
		s.mu.Lock()
		if cap, ok := s.capacity[id]; ok {
			cap.Health = model.HealthUnhealthy
		}
		s.mu.Unlock()
		log.Printf("heartbeat: worker %s marked offline (stale heartbeat)", id)
		s.emit(model.WorkerEvent{
			Type:      model.EventWorkerUnhealthy,
			WorkerID:  id,
			Health:    model.HealthUnhealthy,
			Timestamp: now,
		})
	}

	s.updateHealthGauges()
}

// Capacity returns a copy of the capacity snapshot for a worker.
func (s *Subscriber) Capacity(workerID string) (*model.WorkerCapacity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cap, ok := s.capacity[workerID]
	if !ok {
		return nil, false
	}
	copied := *cap
	return &copied, true
}

// ObserveDuration folds a completed task's duration into the worker's
// rolling average (EMA, alpha 0.1), tightening estimatedFreeAt.
func (s *Subscriber) ObserveDuration(workerID string, durationMs float64) {
	if durationMs <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cap, ok := s.capacity[workerID]
	if !ok {
		return
	}
	cap.AvgTaskDuration = registry.BlendAvgDuration(cap.AvgTaskDuration, durationMs)
}

func (s *Subscriber) emit(ev model.WorkerEvent) {
	observability.WorkerEvents.WithLabelValues(string(ev.Type)).Inc()
	select {
	case s.events <- ev:
	default:
		observability.EventPublishFailures.WithLabelValues(string(ev.Type), "channel_full").Inc()
	}
}

func (s *Subscriber) updateHealthGauges() {
	counts := map[model.HealthClass]int{
		model.HealthHealthy:   0,
		model.HealthDegraded:  0,
		model.HealthUnhealthy: 0,
	}
	s.mu.RLock()
	for _, cap := range s.capacity {
		counts[cap.Health]++
	}
	s.mu.RUnlock()
	for class, n := range counts {
		observability.WorkerHealth.WithLabelValues(string(class)).Set(float64(n))
	}
}

func eventForHealth(h model.HealthClass) model.WorkerEventType {
	switch h {
	case model.HealthDegraded:
		return model.EventWorkerDegraded
	case model.HealthUnhealthy:
		return model.EventWorkerUnhealthy
	case model.HealthRemoved:
		return model.EventWorkerRemoved
	default:
		return model.EventWorkerHealthy
	}
}
