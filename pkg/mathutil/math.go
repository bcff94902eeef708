// Package mathutil provides mathematical utility functions for the Go server.
package mathutil

import "math"

// ClampInt clamps an integer value to a range [min, max].
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampLimit validates a pagination limit, applying default and max constraints.
// If limit <= 0, returns defaultVal. If limit > maxVal, returns maxVal.
func ClampLimit(limit, defaultVal, maxVal int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit > maxVal {
		return maxVal
	}
	return limit
}

// ClampFloat clamps a float32 value to a range [min, max].
func ClampFloat(value, min, max float32) float32 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// UniformVector returns an n-dimensional vector with every component set to
// 1/n. Used as a degenerate query vector when no text or topic input is given.
func UniformVector(n int) []float32 {
	if n <= 0 {
		return nil
	}
	v := make([]float32, n)
	fill := float32(1) / float32(n)
	for i := range v {
		v[i] = fill
	}
	return v
}

// MeanVector computes the component-wise mean of the given vectors. All
// vectors must share the same dimension; shorter vectors are ignored beyond
// their length. Returns nil for empty input.
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	out := make([]float32, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			out[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}

// BlendVectors linearly interpolates between two vectors of the same
// dimension: (1-alpha)*a + alpha*b. alpha is clamped to [0, 1]. If either
// vector is nil the other is returned unchanged.
func BlendVectors(a, b []float32, alpha float32) []float32 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	alpha = ClampFloat(alpha, 0, 1)
	out := make([]float32, len(a))
	for i := range a {
		var bv float32
		if i < len(b) {
			bv = b[i]
		}
		out[i] = (1-alpha)*a[i] + alpha*bv
	}
	return out
}

// Normalize scales a vector to unit length. Zero vectors are returned as-is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f / norm
	}
	return out
}
