// Package goertzel implements a single-frequency recursive energy
// detector. The same structure serves audio-frequency analysis and,
// retuned to sub-hertz rates, periodicity detection in onset-strength
// series.
package goertzel

import "math"

// Resonator detects energy at one target frequency within a sampled
// series. State between blocks is not retained; each ProcessWindowed
// call evaluates one complete block.
type Resonator struct {
	coeff  float64
	sine   float64
	cosine float64
}

// New builds a resonator for targetFreq at the given series rate, both
// in Hz (or any consistent unit pair).
func New(targetFreq, seriesRate float64) Resonator {
	w := 2 * math.Pi * targetFreq / seriesRate
	return Resonator{
		coeff:  2 * math.Cos(w),
		sine:   math.Sin(w),
		cosine: math.Cos(w),
	}
}

// ProcessWindowed runs the recurrence over block, multiplying each
// sample by the matching window weight, and returns the normalized
// magnitude and the phase in radians. block and window must have equal
// length; magnitude is normalized by half the block length.
func (r Resonator) ProcessWindowed(block, window []float64) (mag, phase float64) {
	var q1, q2 float64
	for i, s := range block {
		q0 := r.coeff*q1 - q2 + s*window[i]
		q2 = q1
		q1 = q0
	}
	return r.finish(q1, q2, len(block))
}

// Process runs the recurrence over block without windowing.
func (r Resonator) Process(block []float64) (mag, phase float64) {
	var q1, q2 float64
	for _, s := range block {
		q0 := r.coeff*q1 - q2 + s
		q2 = q1
		q1 = q0
	}
	return r.finish(q1, q2, len(block))
}

func (r Resonator) finish(q1, q2 float64, n int) (float64, float64) {
	real := q1 - q2*r.cosine
	imag := q2 * r.sine

	phase := math.Atan2(imag, real)

	magSq := q1*q1 + q2*q2 - q1*q2*r.coeff
	if magSq < 0 {
		magSq = 0
	}
	mag := math.Sqrt(magSq)
	if n > 0 {
		mag /= float64(n) / 2
	}
	return mag, phase
}
