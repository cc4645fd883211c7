package predictor

import (
	"math"
	"testing"
)

func TestBlend(t *testing.T) {
	// alpha*sample + (1-alpha)*current
	got := Blend(5000, 1000, 0.3)
	want := 0.3*1000 + 0.7*5000
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Blend(5000, 1000, 0.3) = %v, want %v", got, want)
	}
}

func TestBlendFoldsHistory(t *testing.T) {
	// EMA after a sequence must equal the fold over the sample history.
	alpha := 0.3
	samples := []float64{1000, 1200, 800, 950, 1100}

	ema := samples[0]
	for _, s := range samples[1:] {
		ema = Blend(ema, s, alpha)
	}

	expected := samples[0]
	for _, s := range samples[1:] {
		expected = alpha*s + (1-alpha)*expected
	}
	if math.Abs(ema-expected) > 1e-9 {
		t.Errorf("folded EMA %v does not match history fold %v", ema, expected)
	}
}

func TestConfidence(t *testing.T) {
	cases := []struct {
		samples   int64
		threshold int64
		want      float64
	}{
		{0, 100, 0},
		{10, 100, 0.10},
		{100, 100, 1},
		{250, 100, 1},
		{5, 0, 1}, // Degenerate threshold yields full confidence
	}
	for _, c := range cases {
		if got := Confidence(c.samples, c.threshold); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("Confidence(%d, %d) = %v, want %v", c.samples, c.threshold, got, c.want)
		}
	}
}
