package goertzel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/synqing/go-tempo-tracker/internal/testutil"
)

func sine(freq, rate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / rate)
	}
	return out
}

func TestResonator_DetectsTargetFrequency(t *testing.T) {
	const rate = 1000.0
	block := sine(50, rate, 1000)

	onMag, _ := New(50, rate).Process(block)
	offMag, _ := New(73, rate).Process(block)

	testutil.AssertRelativeError(t, 1.0, onMag, 0.05, "on-target magnitude should recover the amplitude")
	assert.Less(t, offMag, 0.1, "off-target magnitude should be near zero")
}

func TestResonator_SubHertzSeries(t *testing.T) {
	// Periodicity detection in an onset series: 2 Hz beat at a 100 Hz
	// series rate, the same regime the tempo bank runs in.
	const rate = 100.0
	block := sine(2, rate, 500)

	mag, _ := New(2, rate).Process(block)
	far, _ := New(2.9, rate).Process(block)

	assert.Greater(t, mag, 3*far)
}

func TestResonator_ClickTrainBeatFrequency(t *testing.T) {
	// An onset impulse train at 120 BPM carries its strongest in-band
	// energy at 2 Hz.
	const rate = 43.066
	series := testutil.ClickNovelty(120, rate, 500)

	on, _ := New(2.0, rate).Process(series)
	off, _ := New(1.62, rate).Process(series)

	assert.Greater(t, on, 2*off)
}

func TestResonator_WindowedMatchesRectangular(t *testing.T) {
	const rate = 1000.0
	block := sine(50, rate, 500)
	window := make([]float64, len(block))
	for i := range window {
		window[i] = 1
	}

	m1, p1 := New(50, rate).Process(block)
	m2, p2 := New(50, rate).ProcessWindowed(block, window)

	assert.InDelta(t, m1, m2, 1e-12)
	assert.InDelta(t, p1, p2, 1e-12)
}

func TestResonator_ZeroInput(t *testing.T) {
	block := make([]float64, 256)
	mag, phase := New(10, 100).Process(block)

	assert.Zero(t, mag)
	assert.False(t, math.IsNaN(phase))
}

func TestResonator_PhaseTracksShift(t *testing.T) {
	const rate = 1000.0
	const freq = 50.0
	n := 1000

	blockA := make([]float64, n)
	blockB := make([]float64, n)
	for i := range blockA {
		blockA[i] = math.Cos(2 * math.Pi * freq * float64(i) / rate)
		blockB[i] = math.Cos(2*math.Pi*freq*float64(i)/rate + math.Pi/2)
	}

	_, pa := New(freq, rate).Process(blockA)
	_, pb := New(freq, rate).Process(blockB)

	diff := pb - pa
	for diff > math.Pi {
		diff -= 2 * math.Pi
	}
	for diff < -math.Pi {
		diff += 2 * math.Pi
	}
	assert.InDelta(t, math.Pi/2, math.Abs(diff), 0.1)
}
