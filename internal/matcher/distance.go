package matcher

import (
	"fmt"
	"math"
)

// DistanceFunc compares two embeddings; smaller means more similar.
type DistanceFunc func(a, b []float64) float64

// EuclideanDist is the L2 distance used by dlib-style 128-d encodings.
// Mismatched or empty vectors are infinitely far apart.
func EuclideanDist(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CosineDist returns 1 - cos(a, b), in [0, 2].
func CosineDist(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}
	var dot, sumA, sumB float64
	for i := range a {
		dot += a[i] * b[i]
		sumA += a[i] * a[i]
		sumB += b[i] * b[i]
	}
	// Return max distance if a vector is zero to avoid division by zero
	if sumA == 0 || sumB == 0 {
		return 2.0
	}
	return 1.0 - (dot / (math.Sqrt(sumA) * math.Sqrt(sumB)))
}

const (
	MetricEuclidean = "euclidean"
	MetricCosine    = "cosine"
)

// ParseMetric maps a metric name to its distance function.
func ParseMetric(name string) (DistanceFunc, error) {
	switch name {
	case "", MetricEuclidean:
		return EuclideanDist, nil
	case MetricCosine:
		return CosineDist, nil
	default:
		return nil, fmt.Errorf("unknown distance metric %q (want %s or %s)", name, MetricEuclidean, MetricCosine)
	}
}
