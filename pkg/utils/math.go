package utils

// JainIndex computes Jain's fairness index (sum x)^2 / (n * sum x^2).
// It is 1 when every value is equal and 1/n when one value takes everything.
func JainIndex(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum, sumSq := 0.0, 0.0
	for _, v := range values {
		sum += v
		sumSq += v * v
	}
	if sumSq == 0 {
		return 0
	}
	return (sum * sum) / (float64(len(values)) * sumSq)
}
