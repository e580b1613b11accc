package tempotracker

import "math"

// BeatClock is a software phase-locked loop that turns tactus frames
// into a continuous beat phase, discrete beat ticks, and bar position.
// Phase advances from audio deltas every hop; tempo and phase are
// nudged toward the resolver with bounded corrections so the clock
// never jumps.
type BeatClock struct {
	tuning ContractTuning

	sampleRate float64

	bpm        float64
	phase01    float64
	locked     bool
	confidence float64

	phaseErr float64
	freqErr  float64

	beatIndex     uint64
	lastTickIndex uint64
	haveTick      bool
}

// NewBeatClock builds a clock. sampleRate interprets the sample-index
// deltas used for phase advance and tick debounce.
func NewBeatClock(sampleRate float64, tuning ContractTuning) *BeatClock {
	return &BeatClock{
		tuning:     tuning,
		sampleRate: sampleRate,
		bpm:        tuning.BPMLow,
	}
}

// wrapHalf maps a phase difference into [-0.5, 0.5) so corrections
// take the short way around the circle.
func wrapHalf(d float64) float64 {
	d -= math.Floor(d + 0.5)
	return d
}

// Tick advances the clock by deltaSeconds of audio and reports the
// resulting state. A beat tick fires on phase wraparound, suppressed
// when the previous tick was less than 60% of a beat period ago by
// sample index. Spurious double-fires from phase corrections near the
// wrap point are the failure this guards against.
func (c *BeatClock) Tick(now AudioTime, deltaSeconds float64) BeatClockState {
	if deltaSeconds < 0 {
		deltaSeconds = 0
	}

	c.phase01 += c.bpm / 60.0 * deltaSeconds
	tick := false
	if c.phase01 >= 1 {
		c.phase01 -= math.Floor(c.phase01)
		tick = c.debounce(now)
	}

	if tick {
		if c.haveTick {
			c.beatIndex++
		}
		c.lastTickIndex = now.SampleIndex
		c.haveTick = true
	}

	return c.state(now, tick)
}

// debounce rejects a tick that arrives sooner than tickDebounceFactor
// of the current beat period after the previous one.
func (c *BeatClock) debounce(now AudioTime) bool {
	if !c.haveTick {
		return true
	}
	if c.bpm <= 0 {
		return false
	}
	periodSamples := 60.0 / c.bpm * c.sampleRate
	elapsed := float64(now.SampleIndex - c.lastTickIndex)
	return elapsed >= tickDebounceFactor*periodSamples
}

// UpdateFromTactus nudges the clock toward the resolver's tempo and
// phase hint. Corrections are proportional and capped so a bad frame
// cannot yank the clock.
func (c *BeatClock) UpdateFromTactus(frame TactusFrame) {
	c.locked = frame.Locked
	c.confidence = frame.Confidence

	if frame.BPM <= 0 {
		return
	}
	target := clampRange(frame.BPM, c.tuning.BPMLow, c.tuning.BPMHigh)

	c.freqErr = target - c.bpm
	step := c.tuning.FreqGain * c.freqErr
	step = clampRange(step, -c.tuning.MaxBPMStep, c.tuning.MaxBPMStep)
	c.bpm = clampRange(c.bpm+step, c.tuning.BPMLow, c.tuning.BPMHigh)

	c.phaseErr = wrapHalf(frame.PhaseHint - c.phase01)
	adj := c.tuning.PhaseGain * c.phaseErr
	adj = clampRange(adj, -c.tuning.MaxPhaseStep, c.tuning.MaxPhaseStep)
	c.phase01 += adj
	c.phase01 -= math.Floor(c.phase01)
}

func (c *BeatClock) state(now AudioTime, tick bool) BeatClockState {
	beatInBar := 0
	if c.tuning.BeatsPerBar > 0 {
		beatInBar = int(c.beatIndex % uint64(c.tuning.BeatsPerBar))
	}
	return BeatClockState{
		T:          now,
		Phase01:    c.phase01,
		BPM:        c.bpm,
		Locked:     c.locked,
		Confidence: c.confidence,
		PhaseError: c.phaseErr,
		FreqError:  c.freqErr,
		Tick:       tick,
		BeatIndex:  c.beatIndex,
		BeatInBar:  beatInBar,
		Downbeat:   tick && beatInBar == 0,
	}
}

// State reports the clock without advancing it.
func (c *BeatClock) State(now AudioTime) BeatClockState {
	return c.state(now, false)
}

// Reset returns the clock to silence: phase zero, tempo at the low
// bound, no beat history.
func (c *BeatClock) Reset() {
	c.bpm = c.tuning.BPMLow
	c.phase01 = 0
	c.locked = false
	c.confidence = 0
	c.phaseErr = 0
	c.freqErr = 0
	c.beatIndex = 0
	c.lastTickIndex = 0
	c.haveTick = false
}
