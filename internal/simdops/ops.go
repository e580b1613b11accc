// Package simdops wraps the SIMD kernels used by the tempo pipeline's
// history maintenance. The pipeline is float64 end to end, so only the
// f64 entry points are exposed.
package simdops

import "github.com/tphakala/simd/f64"

// Sum returns the sum of all elements.
func Sum(a []float64) float64 {
	return f64.Sum(a)
}

// Scale writes dst[i] = a[i] * s. dst and a may alias.
func Scale(dst, a []float64, s float64) {
	f64.Scale(dst, a, s)
}

// Max returns the maximum element of a, or 0 for an empty slice.
// No SIMD kernel covers max reduction; the scalar loop lives here so
// callers keep a single import for slice reductions.
func Max(a []float64) float64 {
	var m float64
	for i, v := range a {
		if i == 0 || v > m {
			m = v
		}
	}
	return m
}
