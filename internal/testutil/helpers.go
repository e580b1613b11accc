// Package testutil provides reusable helpers for tempo pipeline tests.
package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Default tolerances for various test scenarios.
const (
	DefaultTolerance = 1e-10
	BPMTolerance     = 1.0
	PhaseTolerance   = 0.05
)

// AssertNoNaNOrInf verifies that no elements in the slice are NaN or Inf.
func AssertNoNaNOrInf(t *testing.T, s []float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if math.IsNaN(v) {
			return assert.Fail(t, "found NaN", "s[%d] is NaN", i)
		}
		if math.IsInf(v, 0) {
			return assert.Fail(t, "found Inf", "s[%d] is Inf", i)
		}
	}
	return true
}

// AssertAllInRange verifies that all elements are within [min, max].
func AssertAllInRange(t *testing.T, s []float64, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if v < minVal || v > maxVal {
			return assert.Fail(t, "value out of range",
				"s[%d]=%f is outside range [%f, %f]", i, v, minVal, maxVal)
		}
	}
	return true
}

// AssertInRange verifies that a value is within [min, max].
func AssertInRange(t *testing.T, value, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	if value < minVal || value > maxVal {
		return assert.Fail(t, "value out of range",
			"value %f is outside range [%f, %f]", value, minVal, maxVal)
	}
	return true
}

// AssertRelativeError verifies that the relative error between actual and expected is within tolerance.
func AssertRelativeError(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	if expected == 0 {
		return assert.InDelta(t, expected, actual, tolerance, msgAndArgs...)
	}
	relError := math.Abs(actual-expected) / math.Abs(expected)
	return assert.LessOrEqual(t, relError, tolerance,
		"relative error %e exceeds tolerance %e (expected=%f, actual=%f)",
		relError, tolerance, expected, actual)
}

// ClickNovelty generates n samples of a synthetic onset-novelty series
// at the given series rate: an impulse of height 1 on every beat of a
// click track at bpm, zero elsewhere.
func ClickNovelty(bpm, rate float64, n int) []float64 {
	out := make([]float64, n)
	period := rate * 60.0 / bpm
	next := 0.0
	for i := 0; i < n; i++ {
		if float64(i) >= next {
			out[i] = 1.0
			next += period
		}
	}
	return out
}

// ClickBands generates nHops hops of per-band energies for a click
// track at bpm: a broadband burst on every beat, a low noise floor in
// between. numBands controls the frame width and hop/sampleRate set
// the hop timing.
func ClickBands(bpm float64, sampleRate, hopSize, nHops, numBands int) [][]float64 {
	out := make([][]float64, nHops)
	periodHops := float64(sampleRate) * 60.0 / bpm / float64(hopSize)
	next := 0.0
	for i := 0; i < nHops; i++ {
		frame := make([]float64, numBands)
		for b := range frame {
			frame[b] = 0.01
		}
		if float64(i) >= next {
			for b := range frame {
				frame[b] = 1.0
			}
			next += periodHops
		}
		out[i] = frame
	}
	return out
}
