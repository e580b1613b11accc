package tempotracker

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/window"

	"github.com/synqing/go-tempo-tracker/internal/goertzel"
	"github.com/synqing/go-tempo-tracker/internal/simdops"
)

// beatShiftPercent rotates extracted phases slightly ahead of the
// detected energy peak so visual pulses land on the perceived beat.
const beatShiftPercent = 0.08

// historyDecay fades old onset events so stale beats cannot outvote
// the current rhythm.
const historyDecay = 0.999

// tempoBin is one per-BPM periodicity detector.
type tempoBin struct {
	bpm       float64
	res       goertzel.Resonator
	blockSize int
	win       []float64
}

// ResonatorBank detects periodicity in the novelty series across the
// tempo range. It owns the novelty history and a bank of per-BPM
// detectors whose expensive recompute is self-throttled; between
// recomputes the bank only accumulates history.
type ResonatorBank struct {
	sampleRate float64
	logRate    float64

	bins   [NumTempoBins]tempoBin
	raw    [NumTempoBins]float64
	phase  [NumTempoBins]float64
	smooth [NumTempoBins]float64

	history  []float64
	histNorm []float64

	recomputeEvery uint64
	lastRecompute  uint64
	primed         bool

	silenceThreshold float64
	silenceLevel     float64

	last ResonatorFrame
}

// NewResonatorBank builds the bank. sampleRate is the audio rate used
// to interpret AudioTime; logRate is the rate at which novelty values
// arrive, in Hz.
func NewResonatorBank(sampleRate, logRate float64, tuning PipelineTuning) *ResonatorBank {
	b := &ResonatorBank{
		sampleRate:       sampleRate,
		logRate:          logRate,
		history:          make([]float64, noveltyHistoryLen),
		histNorm:         make([]float64, noveltyHistoryLen),
		recomputeEvery:   uint64(sampleRate / recomputeHz),
		silenceThreshold: tuning.SilenceThreshold,
	}

	lut := gaussianLUT(windowLUTSize)

	// Neighbor spacing is 1 BPM, so every bin shares the same target
	// resolving bandwidth; the block formula is kept per bin to stay
	// valid if the range is ever retuned.
	for i := range b.bins {
		bpm := BPMMin + float64(i)
		hz := bpm / 60.0

		neighborDistHz := 1.0 / 60.0
		block := int(logRate / (neighborDistHz * 0.5))
		if block > noveltyHistoryLen {
			block = noveltyHistoryLen
		}
		if block < minBlockSize {
			block = minBlockSize
		}

		b.bins[i] = tempoBin{
			bpm:       bpm,
			res:       goertzel.New(hz, logRate),
			blockSize: block,
			win:       sampleWindow(lut, block),
		}
	}
	return b
}

// gaussianLUT returns an n-point Gaussian window table.
func gaussianLUT(n int) []float64 {
	lut := make([]float64, n)
	for i := range lut {
		lut[i] = 1
	}
	return window.Gaussian{Sigma: windowSigma}.Transform(lut)
}

// sampleWindow resamples the shared LUT down to a block-sized window.
func sampleWindow(lut []float64, block int) []float64 {
	w := make([]float64, block)
	step := float64(len(lut)) / float64(block)
	pos := 0.0
	for i := range w {
		idx := int(pos)
		if idx >= len(lut) {
			idx = len(lut) - 1
		}
		w[i] = lut[idx]
		pos += step
	}
	return w
}

// Update appends one novelty value and, when the recompute gate has
// elapsed, re-evaluates the bank and emits a fresh frame. frameReady
// is false on gated cycles; the returned frame is then the most recent
// complete one.
func (b *ResonatorBank) Update(novelty float64, t AudioTime) (frameReady bool, frame ResonatorFrame) {
	b.append(novelty)

	if b.primed && t.SampleIndex-b.lastRecompute < b.recomputeEvery {
		return false, b.last
	}
	b.lastRecompute = t.SampleIndex
	b.primed = true

	b.normalizeHistory()
	b.checkSilence()
	b.computeMagnitudes()

	b.last = ResonatorFrame{
		T:            t,
		Candidates:   b.extractCandidates(),
		SilenceLevel: b.silenceLevel,
	}
	return true, b.last
}

// append shifts the history left and fades old events. The buffer is
// kept contiguous, oldest first, so resonators can window the most
// recent span directly.
func (b *ResonatorBank) append(novelty float64) {
	simdops.Scale(b.history, b.history, historyDecay)
	copy(b.history, b.history[1:])
	if novelty < noveltyFloor {
		novelty = noveltyFloor
	}
	b.history[len(b.history)-1] = novelty
}

// normalizeHistory auto-scales the history into histNorm so resonator
// magnitudes are comparable regardless of input level.
func (b *ResonatorBank) normalizeHistory() {
	maxVal := simdops.Max(b.history)
	if maxVal < 1e-5 {
		maxVal = 1e-5
	}
	simdops.Scale(b.histNorm, b.history, 1/maxVal)
}

// checkSilence measures onset contrast over the recent window. Low
// contrast means no rhythm is present; confidence is suppressed and
// the history is faded faster so stale tempi cannot hold the lock.
func (b *ResonatorBank) checkSilence() {
	frames := int(silenceWindowSec * b.logRate)
	if frames > len(b.histNorm) {
		frames = len(b.histNorm)
	}
	recent := b.histNorm[len(b.histNorm)-frames:]

	minVal, maxVal := 1.0, 0.0
	for _, v := range recent {
		if v > 0.5 {
			v = 0.5
		}
		s := math.Sqrt(v * 2)
		if s > maxVal {
			maxVal = s
		}
		if s < minVal {
			minVal = s
		}
	}

	contrast := math.Abs(maxVal - minVal)
	raw := 1 - contrast
	if raw > b.silenceThreshold {
		span := 1 - b.silenceThreshold
		if span < 0.001 {
			span = 0.001
		}
		b.silenceLevel = (raw - b.silenceThreshold) / span
		simdops.Scale(b.history, b.history, 1-b.silenceLevel*silenceHistoryDecay)
	} else {
		b.silenceLevel = 0
	}
}

// computeMagnitudes runs every resonator over its windowed slice of
// the normalized history, auto-ranges the result, and smooths it
// across recompute cycles.
func (b *ResonatorBank) computeMagnitudes() {
	maxRaw := 0.0
	for i := range b.bins {
		bin := &b.bins[i]
		block := b.histNorm[len(b.histNorm)-bin.blockSize:]
		mag, ph := bin.res.ProcessWindowed(block, bin.win)
		b.raw[i] = mag
		b.phase[i] = ph
		if mag > maxRaw {
			maxRaw = mag
		}
	}

	if maxRaw < autorangeFloor {
		maxRaw = autorangeFloor
	}
	scale := 1 / maxRaw

	for i := range b.bins {
		s := b.raw[i] * scale
		if s < 0 {
			s = 0
		} else if s > 1 {
			s = 1
		}
		// Cubing exaggerates the dominant tempo against the noise
		// floor before smoothing.
		s = s * s * s
		b.smooth[i] = b.smooth[i]*magnitudeSmoothing + s*(1-magnitudeSmoothing)
	}
}

// extractCandidates picks the strongest local peaks, refines each to
// sub-integer BPM precision, and reads off a phase estimate.
func (b *ResonatorBank) extractCandidates() []Candidate {
	type peak struct {
		bin int
		mag float64
	}
	peaks := make([]peak, 0, NumTempoBins)
	for i := range b.smooth {
		left := i == 0 || b.smooth[i] >= b.smooth[i-1]
		right := i == NumTempoBins-1 || b.smooth[i] > b.smooth[i+1]
		if left && right && b.smooth[i] > 0 {
			peaks = append(peaks, peak{bin: i, mag: b.smooth[i]})
		}
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].mag > peaks[j].mag })
	if len(peaks) > MaxCandidates {
		peaks = peaks[:MaxCandidates]
	}

	out := make([]Candidate, 0, len(peaks))
	for _, p := range peaks {
		bpm := BPMMin + float64(p.bin) + b.peakOffset(p.bin)
		if bpm < BPMMin {
			bpm = BPMMin
		} else if bpm > BPMMax {
			bpm = BPMMax
		}

		phase := b.phase[p.bin] + math.Pi*beatShiftPercent
		phase01 := phase/(2*math.Pi) + 0.5
		phase01 -= math.Floor(phase01)

		c := Candidate{BPM: bpm, Magnitude: p.mag, Phase: phase01}
		if math.IsNaN(c.BPM) || math.IsInf(c.BPM, 0) ||
			math.IsNaN(c.Magnitude) || math.IsInf(c.Magnitude, 0) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// peakOffset refines a peak bin by parabolic interpolation against its
// neighbors, returning a sub-bin BPM offset in [-0.5, 0.5].
func (b *ResonatorBank) peakOffset(bin int) float64 {
	if bin <= 0 || bin >= NumTempoBins-1 {
		return 0
	}
	l := b.smooth[bin-1]
	c := b.smooth[bin]
	r := b.smooth[bin+1]
	denom := l - 2*c + r
	if math.Abs(denom) < 1e-12 {
		return 0
	}
	d := 0.5 * (l - r) / denom
	if d > 0.5 {
		d = 0.5
	} else if d < -0.5 {
		d = -0.5
	}
	return d
}

// SilenceLevel returns the current silence estimate in [0, 1].
func (b *ResonatorBank) SilenceLevel() float64 {
	return b.silenceLevel
}

// Reset clears the history and all smoothed magnitudes.
func (b *ResonatorBank) Reset() {
	for i := range b.history {
		b.history[i] = 0
		b.histNorm[i] = 0
	}
	b.raw = [NumTempoBins]float64{}
	b.phase = [NumTempoBins]float64{}
	b.smooth = [NumTempoBins]float64{}
	b.primed = false
	b.lastRecompute = 0
	b.silenceLevel = 0
	b.last = ResonatorFrame{}
}
