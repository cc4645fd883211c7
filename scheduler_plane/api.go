package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/itskum47/TaskFlux/scheduler_plane/feedback"
	"github.com/itskum47/TaskFlux/scheduler_plane/heartbeat"
	"github.com/itskum47/TaskFlux/scheduler_plane/model"
	"github.com/itskum47/TaskFlux/scheduler_plane/predictor"
	"github.com/itskum47/TaskFlux/scheduler_plane/registry"
	"github.com/itskum47/TaskFlux/scheduler_plane/scheduler"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// API is the scheduler's debug/management surface. The task-submission
// gateway lives elsewhere; this only exposes worker registration, state
// snapshots, weight updates and the event stream.
type API struct {
	reg        *registry.WorkerRegistry
	dispatcher *scheduler.Dispatcher
	scorer     *scheduler.Scorer
	pred       *predictor.HeuristicPredictor
	heartbeats *heartbeat.Subscriber
	feedbacks  *feedback.Subscriber
	hub        *EventHub
}

func NewAPI(
	reg *registry.WorkerRegistry,
	dispatcher *scheduler.Dispatcher,
	scorer *scheduler.Scorer,
	pred *predictor.HeuristicPredictor,
	heartbeats *heartbeat.Subscriber,
	feedbacks *feedback.Subscriber,
	hub *EventHub,
) *API {
	return &API{
		reg:        reg,
		dispatcher: dispatcher,
		scorer:     scorer,
		pred:       pred,
		heartbeats: heartbeats,
		feedbacks:  feedbacks,
		hub:        hub,
	}
}

// handleSnapshot returns the internal state for debugging.
func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := map[string]interface{}{
		"workers":     a.reg.Snapshot(),
		"breaker":     a.dispatcher.Breaker(),
		"weights":     a.scorer.CurrentWeights(),
		"accuracy":    a.feedbacks.Accuracy(),
		"predictions": a.pred.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

// handleWorkers registers (POST) or lists (GET) workers.
func (a *API) handleWorkers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a.reg.Snapshot())

	case http.MethodPost:
		var worker model.WorkerState
		if err := json.NewDecoder(r.Body).Decode(&worker); err != nil {
			http.Error(w, "invalid worker payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		if worker.ID == "" {
			http.Error(w, "worker id is required", http.StatusBadRequest)
			return
		}
		a.reg.Register(&worker)
		log.Printf("api: registered worker %s (max_concurrency=%d, capabilities=%v)",
			worker.ID, worker.MaxConcurrency, worker.Capabilities)
		w.WriteHeader(http.StatusCreated)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleWeights reads (GET) or replaces (POST) the scorer weight vector.
// Validation happens here, at the mutation point.
func (a *API) handleWeights(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a.scorer.CurrentWeights())

	case http.MethodPost:
		var weights scheduler.Weights
		if err := json.NewDecoder(r.Body).Decode(&weights); err != nil {
			http.Error(w, "invalid weights payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := a.scorer.UpdateWeights(weights); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		log.Printf("api: scorer weights updated to %+v", weights)
		w.WriteHeader(http.StatusOK)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePredictorReset drops all learned prediction state. Operator escape
// hatch.
func (a *API) handlePredictorReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.pred.Reset()
	log.Println("api: predictor state reset by operator")
	w.WriteHeader(http.StatusOK)
}

// handleEventsStream upgrades to WebSocket and streams scheduler events.
func (a *API) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: websocket upgrade failed: %v", err)
		return
	}
	a.hub.Register(conn)

	// Read pump: discard inbound frames, unregister on close.
	go func() {
		defer a.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
