package memory

// histogramWindow bounds how many recent runs feed the score histogram.
const histogramWindow = 1000

// histogramBuckets in ascending order. The final bucket holds exactly 1.0;
// the others are half-open [lo, hi).
var histogramBuckets = []string{"0-0.2", "0.2-0.4", "0.4-0.6", "0.6-0.8", "0.8-1.0", "1.0"}

// scoreHistogram counts scores into the fixed buckets. Every bucket is
// present in the result, zero or not. A score of exactly 1.0 lands in the
// "1.0" bucket, never in "0.8-1.0".
func scoreHistogram(scores []float64) map[string]int {
	hist := make(map[string]int, len(histogramBuckets))
	for _, name := range histogramBuckets {
		hist[name] = 0
	}
	for _, s := range scores {
		hist[bucketFor(s)]++
	}
	return hist
}

func bucketFor(score float64) string {
	switch {
	case score >= 1.0:
		return "1.0"
	case score >= 0.8:
		return "0.8-1.0"
	case score >= 0.6:
		return "0.6-0.8"
	case score >= 0.4:
		return "0.4-0.6"
	case score >= 0.2:
		return "0.2-0.4"
	default:
		return "0-0.2"
	}
}
