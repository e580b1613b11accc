package tempotracker

import (
	"math"
	"testing"
)

func tactusFor(bpm, phase float64) TactusFrame {
	return TactusFrame{BPM: bpm, PhaseHint: phase, Locked: true, Confidence: 1}
}

// TestBeatClock_PhaseAdvances verifies phase moves at the clock tempo.
func TestBeatClock_PhaseAdvances(t *testing.T) {
	c := NewBeatClock(1000, DefaultContractTuning())

	// Converge the clock onto 120 BPM.
	for i := 0; i < 100; i++ {
		c.UpdateFromTactus(tactusFor(120, c.State(AudioTime{}).Phase01))
	}

	st := c.State(AudioTime{})
	if math.Abs(st.BPM-120) > 0.5 {
		t.Fatalf("clock BPM = %v, want 120", st.BPM)
	}

	// One beat at 120 BPM is 0.5 s.
	before := st.Phase01
	st = c.Tick(AudioTime{SampleIndex: 100}, 0.1)
	got := st.Phase01 - before
	if got < 0 {
		got += 1
	}
	if math.Abs(got-0.2) > 1e-9 {
		t.Errorf("phase advanced %v over 0.1s at 120 BPM, want 0.2", got)
	}
}

// TestBeatClock_TickDebounce verifies a wrap arriving sooner than 60%
// of a beat period after the previous tick is suppressed.
func TestBeatClock_TickDebounce(t *testing.T) {
	c := NewBeatClock(1000, DefaultContractTuning())
	// Default clock tempo is the low bound, 60 BPM: period 1000 samples.

	st := c.Tick(AudioTime{SampleIndex: 1000}, 1.0)
	if !st.Tick {
		t.Fatal("first wraparound must tick")
	}

	st = c.Tick(AudioTime{SampleIndex: 1100}, 1.0)
	if st.Tick {
		t.Error("wrap 100 samples after a tick must be debounced")
	}

	st = c.Tick(AudioTime{SampleIndex: 2100}, 1.0)
	if !st.Tick {
		t.Error("wrap a full period later must tick")
	}
}

// TestBeatClock_CorrectionsBounded verifies a wild tactus frame cannot
// yank the clock by more than the per-update caps.
func TestBeatClock_CorrectionsBounded(t *testing.T) {
	tuning := DefaultContractTuning()
	c := NewBeatClock(1000, tuning)

	before := c.State(AudioTime{})
	c.UpdateFromTactus(tactusFor(500, 0.5))
	after := c.State(AudioTime{})

	if math.Abs(after.BPM-before.BPM) > tuning.MaxBPMStep+1e-9 {
		t.Errorf("BPM moved %v in one update, cap is %v", after.BPM-before.BPM, tuning.MaxBPMStep)
	}
	d := math.Abs(wrapHalf(after.Phase01 - before.Phase01))
	if d > tuning.MaxPhaseStep+1e-9 {
		t.Errorf("phase moved %v in one update, cap is %v", d, tuning.MaxPhaseStep)
	}
	if after.BPM > tuning.BPMHigh {
		t.Errorf("BPM %v exceeds high bound %v", after.BPM, tuning.BPMHigh)
	}
}

// TestBeatClock_BarTracking verifies beat-in-bar wraps at the bar
// length and the first beat of each bar is the downbeat.
func TestBeatClock_BarTracking(t *testing.T) {
	tuning := DefaultContractTuning()
	c := NewBeatClock(1000, tuning)

	var downbeats, ticks int
	idx := uint64(0)
	for i := 0; i < 16; i++ {
		idx += 1000
		st := c.Tick(AudioTime{SampleIndex: idx}, 1.0)
		if !st.Tick {
			t.Fatalf("beat %d: expected a tick", i)
		}
		ticks++
		if st.Downbeat {
			downbeats++
		}
		if st.BeatInBar != i%tuning.BeatsPerBar {
			t.Errorf("beat %d: BeatInBar = %d, want %d", i, st.BeatInBar, i%tuning.BeatsPerBar)
		}
	}
	if downbeats != ticks/tuning.BeatsPerBar {
		t.Errorf("downbeats = %d over %d ticks, want %d", downbeats, ticks, ticks/tuning.BeatsPerBar)
	}
}

func TestBeatClock_LockPassthrough(t *testing.T) {
	c := NewBeatClock(1000, DefaultContractTuning())

	c.UpdateFromTactus(TactusFrame{BPM: 100, Locked: true, Confidence: 0.8})
	st := c.State(AudioTime{})
	if !st.Locked || st.Confidence != 0.8 {
		t.Errorf("Locked/Confidence = %v/%v, want true/0.8", st.Locked, st.Confidence)
	}
}

func TestBeatClock_Reset(t *testing.T) {
	tuning := DefaultContractTuning()
	c := NewBeatClock(1000, tuning)

	for i := 0; i < 10; i++ {
		c.Tick(AudioTime{SampleIndex: uint64(i+1) * 1000}, 1.0)
		c.UpdateFromTactus(tactusFor(150, 0.3))
	}
	c.Reset()

	st := c.State(AudioTime{})
	if st.Phase01 != 0 || st.BeatIndex != 0 || st.Locked {
		t.Errorf("post-reset state = %+v, want zeroed", st)
	}
	if st.BPM != tuning.BPMLow {
		t.Errorf("post-reset BPM = %v, want low bound %v", st.BPM, tuning.BPMLow)
	}
}

func TestWrapHalf(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{0.25, 0.25},
		{0.75, -0.25},
		{-0.75, 0.25},
		{1.0, 0},
		{0.5, -0.5},
	}
	for _, tt := range tests {
		if got := wrapHalf(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("wrapHalf(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
