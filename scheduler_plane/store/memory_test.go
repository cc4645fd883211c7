package store

import (
	"context"
	"testing"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryPredictionStore()
	ctx := context.Background()

	in := map[string]model.EMAState{
		"render": {TaskType: "render", EMA: 1234.5, SampleCount: 42, LastUpdated: time.Now().UTC()},
		"encode": {TaskType: "encode", EMA: 800, SampleCount: 7, LastUpdated: time.Now().UTC()},
	}
	if err := s.SavePredictions(ctx, in); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	out, err := s.LoadPredictions(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if out["render"].EMA != 1234.5 || out["render"].SampleCount != 42 {
		t.Errorf("render entry mismatch: %+v", out["render"])
	}

	// The store holds a copy; caller mutations must not leak in.
	in["render"] = model.EMAState{TaskType: "render", EMA: 0}
	reloaded, _ := s.LoadPredictions(ctx)
	if reloaded["render"].EMA != 1234.5 {
		t.Error("store must copy on save")
	}

	if s.SaveCount() != 1 {
		t.Errorf("save count = %d, want 1", s.SaveCount())
	}
}

func TestMemoryStoreEmptyLoad(t *testing.T) {
	s := NewMemoryPredictionStore()
	out, err := s.LoadPredictions(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("fresh store must load empty, got %v", out)
	}
}
