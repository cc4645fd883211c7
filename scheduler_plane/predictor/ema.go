package predictor

// Blend folds one sample into an exponential moving average. The first
// sample for a type seeds the average directly instead of blending.
func Blend(current, sample, alpha float64) float64 {
	return alpha*sample + (1-alpha)*current
}

// Confidence maps a sample count to a confidence value in [0,1].
// min(1, sampleCount/threshold); a threshold <= 0 yields full confidence
// for any observed sample.
func Confidence(sampleCount, threshold int64) float64 {
	if sampleCount <= 0 {
		return 0
	}
	if threshold <= 0 || sampleCount >= threshold {
		return 1
	}
	return float64(sampleCount) / float64(threshold)
}
