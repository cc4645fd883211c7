package feedback

import (
	"sync"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

// AccuracyTracker holds prediction samples in a bounded rolling window.
// Oldest samples are evicted on overflow.
type AccuracyTracker struct {
	mu      sync.RWMutex
	samples []model.PredictionSample
	next    int
	full    bool
	size    int
}

// NewAccuracyTracker creates a tracker with the given window size.
func NewAccuracyTracker(windowSize int) *AccuracyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &AccuracyTracker{
		samples: make([]model.PredictionSample, windowSize),
		size:    windowSize,
	}
}

// Add records one sample, evicting the oldest when the window is full.
func (t *AccuracyTracker) Add(sample model.PredictionSample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.next] = sample
	t.next++
	if t.next == t.size {
		t.next = 0
		t.full = true
	}
}

// Len returns the number of samples currently held.
func (t *AccuracyTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.full {
		return t.size
	}
	return t.next
}

// Accuracy returns the fraction of held samples that were within the
// threshold. An empty window yields 0.
func (t *AccuracyTracker) Accuracy() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.next
	if t.full {
		n = t.size
	}
	if n == 0 {
		return 0
	}
	within := 0
	for i := 0; i < n; i++ {
		if t.samples[i].WithinThreshold {
			within++
		}
	}
	return float64(within) / float64(n)
}
