package registry

import (
	"math"
	"testing"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

func TestCurrentLoad(t *testing.T) {
	cases := []struct {
		cpu, mem, want float64
	}{
		{0.5, 0.5, 0.5},
		{1.0, 0.0, 0.6},
		{0.0, 1.0, 0.4},
		{1.5, 2.0, 1.0}, // Inputs clamped before weighting
		{-1, -1, 0},
	}
	for _, c := range cases {
		if got := CurrentLoad(c.cpu, c.mem); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("CurrentLoad(%v, %v) = %v, want %v", c.cpu, c.mem, got, c.want)
		}
	}
}

func TestEstimatedFreeAt(t *testing.T) {
	now := time.Now()

	free := EstimatedFreeAt(now, 4, 500)
	if want := now.Add(2 * time.Second); !free.Equal(want) {
		t.Errorf("EstimatedFreeAt = %v, want %v", free, want)
	}

	// Never earlier than now.
	if free := EstimatedFreeAt(now, 0, 500); free.Before(now) {
		t.Errorf("empty queue must yield now, got %v", free)
	}
	if free := EstimatedFreeAt(now, -3, 500); free.Before(now) {
		t.Errorf("negative queue depth must yield now, got %v", free)
	}
}

func TestClassifyHealthOrdering(t *testing.T) {
	th := DefaultHealthThresholds()

	cases := []struct {
		age  time.Duration
		load float64
		want model.HealthClass
	}{
		{0, 0.2, model.HealthHealthy},
		{0, 0.95, model.HealthDegraded},
		{0, 0.9, model.HealthDegraded}, // Boundary: load >= 0.9
		{31 * time.Second, 0.1, model.HealthUnhealthy},
		{30 * time.Second, 0.1, model.HealthUnhealthy}, // Boundary: age >= timeout
		{5 * time.Minute, 0.1, model.HealthRemoved},
		{6 * time.Minute, 0.99, model.HealthRemoved}, // Removed wins over degraded
	}
	for _, c := range cases {
		if got := ClassifyHealth(c.age, c.load, th); got != c.want {
			t.Errorf("ClassifyHealth(age=%v, load=%v) = %v, want %v", c.age, c.load, got, c.want)
		}
	}
}

func TestSignificantLoadChange(t *testing.T) {
	if SignificantLoadChange(0.50, 0.55) {
		t.Error("0.05 delta must not be significant")
	}
	if !SignificantLoadChange(0.50, 0.60) {
		t.Error("0.10 delta must be significant")
	}
	if !SignificantLoadChange(0.60, 0.45) {
		t.Error("downward delta must count too")
	}
}

func TestBlendAvgDuration(t *testing.T) {
	// First observation seeds the average.
	if got := BlendAvgDuration(0, 2000); got != 2000 {
		t.Errorf("seed: got %v, want 2000", got)
	}
	// Subsequent observations blend with alpha 0.1.
	got := BlendAvgDuration(1000, 2000)
	if want := 0.1*2000 + 0.9*1000; math.Abs(got-want) > 1e-9 {
		t.Errorf("blend: got %v, want %v", got, want)
	}
}
