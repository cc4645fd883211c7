package registry

import (
	"testing"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

func newTestRegistry() *WorkerRegistry {
	return NewWorkerRegistry(30 * time.Second)
}

func TestRegisterAndGetReturnsCopy(t *testing.T) {
	r := newTestRegistry()
	r.Register(&model.WorkerState{ID: "w1", MaxConcurrency: 4})

	w, ok := r.Get("w1")
	if !ok {
		t.Fatal("worker w1 not found after Register")
	}
	if w.Status != model.WorkerIdle {
		t.Errorf("default status should be idle, got %s", w.Status)
	}

	// Mutating the copy must not leak into the registry.
	w.Status = model.WorkerOffline
	again, _ := r.Get("w1")
	if again.Status != model.WorkerIdle {
		t.Error("Get must return a copy, not the live struct")
	}
}

func TestUpdateLoadClamped(t *testing.T) {
	r := newTestRegistry()
	r.Register(&model.WorkerState{ID: "w1", MaxConcurrency: 4})

	r.UpdateLoad("w1", 1.7)
	w, _ := r.Get("w1")
	if w.CurrentLoad != 1.0 {
		t.Errorf("load must clamp to 1.0, got %v", w.CurrentLoad)
	}

	r.UpdateLoad("w1", -0.3)
	w, _ = r.Get("w1")
	if w.CurrentLoad != 0 {
		t.Errorf("load must clamp to 0, got %v", w.CurrentLoad)
	}

	if err := r.UpdateLoad("nope", 0.5); err != ErrWorkerNotFound {
		t.Errorf("expected ErrWorkerNotFound, got %v", err)
	}
}

func TestAvailableFilters(t *testing.T) {
	r := newTestRegistry()
	r.Register(&model.WorkerState{ID: "w1", MaxConcurrency: 4})
	r.Register(&model.WorkerState{ID: "w2", MaxConcurrency: 4, Status: model.WorkerDraining})
	r.Register(&model.WorkerState{ID: "w3", MaxConcurrency: 2, ActiveTasks: 2}) // Saturated
	r.Register(&model.WorkerState{ID: "w4", MaxConcurrency: 4, LastHeartbeat: time.Now().Add(-time.Minute)})
	r.Register(&model.WorkerState{ID: "w5", MaxConcurrency: 4, Capabilities: []string{"gpu", "avx"}})

	got := r.Available(nil)
	if len(got) != 2 || got[0].ID != "w1" || got[1].ID != "w5" {
		ids := make([]string, 0, len(got))
		for _, w := range got {
			ids = append(ids, w.ID)
		}
		t.Fatalf("expected [w1 w5], got %v", ids)
	}

	// Capability superset filter.
	gpu := r.Available([]string{"gpu"})
	if len(gpu) != 1 || gpu[0].ID != "w5" {
		t.Errorf("capability filter failed: %v", gpu)
	}
	if both := r.Available([]string{"gpu", "tpu"}); len(both) != 0 {
		t.Errorf("missing capability must exclude, got %v", both)
	}
}

func TestAvailableDeterministicOrder(t *testing.T) {
	r := newTestRegistry()
	r.Register(&model.WorkerState{ID: "w3", MaxConcurrency: 4})
	r.Register(&model.WorkerState{ID: "w1", MaxConcurrency: 4})
	r.Register(&model.WorkerState{ID: "w2", MaxConcurrency: 4})

	for i := 0; i < 5; i++ {
		got := r.Available(nil)
		if got[0].ID != "w1" || got[1].ID != "w2" || got[2].ID != "w3" {
			t.Fatalf("enumeration must be sorted by id, got %v %v %v", got[0].ID, got[1].ID, got[2].ID)
		}
	}
}

func TestReapMarksOfflineWithoutDeleting(t *testing.T) {
	r := newTestRegistry()
	r.Register(&model.WorkerState{ID: "stale", MaxConcurrency: 4, LastHeartbeat: time.Now().Add(-time.Minute)})
	r.Register(&model.WorkerState{ID: "fresh", MaxConcurrency: 4})

	reaped := r.Reap(30 * time.Second)
	if len(reaped) != 1 || reaped[0] != "stale" {
		t.Fatalf("expected [stale], got %v", reaped)
	}

	w, ok := r.Get("stale")
	if !ok {
		t.Fatal("Reap must not delete workers")
	}
	if w.Status != model.WorkerOffline {
		t.Errorf("reaped worker must be offline, got %s", w.Status)
	}

	// Second reap must not report it again.
	if again := r.Reap(30 * time.Second); len(again) != 0 {
		t.Errorf("already-offline workers must not be reaped twice, got %v", again)
	}
}

func TestTouchRevivesOfflineWorker(t *testing.T) {
	r := newTestRegistry()
	r.Register(&model.WorkerState{ID: "w1", MaxConcurrency: 4, LastHeartbeat: time.Now().Add(-time.Minute)})
	r.Reap(30 * time.Second)

	r.Touch("w1", time.Now())
	w, _ := r.Get("w1")
	if w.Status != model.WorkerIdle {
		t.Errorf("a fresh heartbeat must revive an offline worker, got %s", w.Status)
	}
	if len(r.Available(nil)) != 1 {
		t.Error("revived worker must be available again")
	}
}

func TestUpdateActiveTasksDerivesStatus(t *testing.T) {
	r := newTestRegistry()
	r.Register(&model.WorkerState{ID: "w1", MaxConcurrency: 4})

	r.UpdateActiveTasks("w1", 2)
	w, _ := r.Get("w1")
	if w.Status != model.WorkerBusy {
		t.Errorf("active tasks > 0 should mark busy, got %s", w.Status)
	}

	r.UpdateActiveTasks("w1", 0)
	w, _ = r.Get("w1")
	if w.Status != model.WorkerIdle {
		t.Errorf("zero active tasks should mark idle, got %s", w.Status)
	}

	// Draining status must not be overridden by task counts.
	r.SetStatus("w1", model.WorkerDraining)
	r.UpdateActiveTasks("w1", 1)
	w, _ = r.Get("w1")
	if w.Status != model.WorkerDraining {
		t.Errorf("draining must stick, got %s", w.Status)
	}
}
