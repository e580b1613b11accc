// Package spectral reduces raw audio frames to the log-spaced band
// energies the tempo pipeline consumes. It exists for the offline and
// live front ends; the pipeline itself never touches raw samples.
package spectral

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/window"
)

// Analyzer converts fixed-size audio frames into per-band magnitudes
// and frame RMS. Bands are log-spaced between the low and high edges,
// so the lowest band isolates sub-bass where kick energy lives.
type Analyzer struct {
	sampleRate int
	frameSize  int
	numBands   int

	win   []float64
	edges []float64 // numBands+1 frequency edges in Hz

	scratch []float64
}

// NewAnalyzer builds an analyzer for frames of frameSize samples.
// lowHz and highHz bound the analysis range; highHz is clamped to
// Nyquist.
func NewAnalyzer(sampleRate, frameSize, numBands int, lowHz, highHz float64) (*Analyzer, error) {
	if frameSize <= 0 || frameSize&(frameSize-1) != 0 {
		return nil, fmt.Errorf("frame size must be a positive power of two, got %d", frameSize)
	}
	if numBands <= 0 {
		return nil, fmt.Errorf("band count must be positive, got %d", numBands)
	}
	nyquist := float64(sampleRate) / 2
	if highHz > nyquist {
		highHz = nyquist
	}
	if lowHz <= 0 || lowHz >= highHz {
		return nil, fmt.Errorf("invalid band range [%g, %g] Hz", lowHz, highHz)
	}

	win := make([]float64, frameSize)
	for i := range win {
		win[i] = 1
	}
	window.Hann(win)

	edges := make([]float64, numBands+1)
	ratio := math.Pow(highHz/lowHz, 1/float64(numBands))
	edges[0] = lowHz
	for i := 1; i <= numBands; i++ {
		edges[i] = edges[i-1] * ratio
	}

	return &Analyzer{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		numBands:   numBands,
		win:        win,
		edges:      edges,
		scratch:    make([]float64, frameSize),
	}, nil
}

// Analyze reduces one frame to band magnitudes and RMS. samples must
// have exactly the configured frame size.
func (a *Analyzer) Analyze(samples []float64) (bands []float64, rms float64, err error) {
	if len(samples) != a.frameSize {
		return nil, 0, fmt.Errorf("frame has %d samples, want %d", len(samples), a.frameSize)
	}

	var sumSq float64
	for i, s := range samples {
		a.scratch[i] = s * a.win[i]
		sumSq += s * s
	}
	rms = math.Sqrt(sumSq / float64(a.frameSize))

	spectrum := fft.FFTReal(a.scratch)

	binHz := float64(a.sampleRate) / float64(a.frameSize)
	bands = make([]float64, a.numBands)
	counts := make([]int, a.numBands)
	for bin := 1; bin < a.frameSize/2; bin++ {
		freq := float64(bin) * binHz
		bi := a.bandIndex(freq)
		if bi < 0 {
			continue
		}
		bands[bi] += cmplxAbs(spectrum[bin])
		counts[bi]++
	}
	for i := range bands {
		if counts[i] > 0 {
			bands[i] /= float64(counts[i]) * float64(a.frameSize) / 2
		}
	}
	return bands, rms, nil
}

func (a *Analyzer) bandIndex(freq float64) int {
	if freq < a.edges[0] || freq >= a.edges[a.numBands] {
		return -1
	}
	for i := 0; i < a.numBands; i++ {
		if freq < a.edges[i+1] {
			return i
		}
	}
	return a.numBands - 1
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// BandEdges returns the frequency edges in Hz, low to high. The slice
// has one more entry than the band count.
func (a *Analyzer) BandEdges() []float64 {
	out := make([]float64, len(a.edges))
	copy(out, a.edges)
	return out
}
