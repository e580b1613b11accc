package tempotracker

import (
	"math"
	"testing"
)

// driveBank feeds a synthetic click-track novelty series into a bank
// and returns the last emitted frame. logRate is the novelty series
// rate; sampleRate only scales the AudioTime stamps.
func driveBank(t *testing.T, bank *ResonatorBank, bpm, sampleRate, logRate float64, seconds float64) ResonatorFrame {
	t.Helper()

	n := int(seconds * logRate)
	period := logRate * 60.0 / bpm
	samplesPerLog := uint64(sampleRate / logRate)

	var last ResonatorFrame
	next := 0.0
	for i := 0; i < n; i++ {
		nov := 0.0
		if bpm > 0 && float64(i) >= next {
			nov = 4.0
			next += period
		}
		at := AudioTime{SampleIndex: uint64(i) * samplesPerLog}
		if ready, frame := bank.Update(nov, at); ready {
			last = frame
		}
	}
	return last
}

// TestResonatorBank_DetectsClickTrack verifies a 120 BPM impulse train
// puts the top candidate at 120 BPM.
func TestResonatorBank_DetectsClickTrack(t *testing.T) {
	const (
		sampleRate = 44100.0
		logRate    = 43.066
		bpm        = 120.0
	)
	bank := NewResonatorBank(sampleRate, logRate, DefaultPipelineTuning())

	frame := driveBank(t, bank, bpm, sampleRate, logRate, 12.0)

	if len(frame.Candidates) == 0 {
		t.Fatal("no candidates emitted")
	}
	top := frame.Candidates[0]
	if math.Abs(top.BPM-bpm) > 1.5 {
		t.Errorf("top candidate = %.2f BPM, want %.0f +- 1.5", top.BPM, bpm)
	}
	if top.Magnitude <= 0 {
		t.Errorf("top magnitude = %v, want > 0", top.Magnitude)
	}
	if frame.SilenceLevel > 0.1 {
		t.Errorf("silence level = %v on a click track, want ~0", frame.SilenceLevel)
	}
}

// TestResonatorBank_CandidatesOrderedAndBounded verifies the frame
// contract: at most MaxCandidates entries, descending magnitude, BPM
// inside the tracked range, phase in [0, 1).
func TestResonatorBank_CandidatesOrderedAndBounded(t *testing.T) {
	bank := NewResonatorBank(44100, 43.066, DefaultPipelineTuning())
	frame := driveBank(t, bank, 97.0, 44100, 43.066, 10.0)

	if len(frame.Candidates) > MaxCandidates {
		t.Fatalf("got %d candidates, max is %d", len(frame.Candidates), MaxCandidates)
	}
	for i, c := range frame.Candidates {
		if i > 0 && c.Magnitude > frame.Candidates[i-1].Magnitude {
			t.Errorf("candidates not in descending magnitude order at %d", i)
		}
		if c.BPM < BPMMin || c.BPM > BPMMax {
			t.Errorf("candidate %d BPM %.2f outside [%.0f, %.0f]", i, c.BPM, float64(BPMMin), float64(BPMMax))
		}
		if c.Phase < 0 || c.Phase >= 1 {
			t.Errorf("candidate %d phase %.3f outside [0, 1)", i, c.Phase)
		}
		if math.IsNaN(c.Magnitude) || math.IsInf(c.Magnitude, 0) {
			t.Errorf("candidate %d magnitude is not finite", i)
		}
	}
}

// TestResonatorBank_RecomputeThrottled verifies the gate: updates
// inside the recompute interval reuse the previous frame.
func TestResonatorBank_RecomputeThrottled(t *testing.T) {
	const sampleRate = 44100.0
	bank := NewResonatorBank(sampleRate, 43.066, DefaultPipelineTuning())

	ready, _ := bank.Update(1.0, AudioTime{SampleIndex: 0})
	if !ready {
		t.Fatal("first update must recompute")
	}

	// Well inside the throttle interval.
	ready, _ = bank.Update(1.0, AudioTime{SampleIndex: 1024})
	if ready {
		t.Error("update inside the recompute interval must be gated")
	}

	ready, _ = bank.Update(1.0, AudioTime{SampleIndex: uint64(sampleRate)})
	if !ready {
		t.Error("update past the recompute interval must recompute")
	}
}

// TestResonatorBank_SilenceDetection verifies a flat novelty series
// drives the silence level high.
func TestResonatorBank_SilenceDetection(t *testing.T) {
	bank := NewResonatorBank(44100, 43.066, DefaultPipelineTuning())
	frame := driveBank(t, bank, 0, 44100, 43.066, 10.0)

	if frame.SilenceLevel < 0.5 {
		t.Errorf("silence level = %v for flat input, want >= 0.5", frame.SilenceLevel)
	}
}

func TestResonatorBank_Reset(t *testing.T) {
	const logRate = 43.066
	bank := NewResonatorBank(44100, logRate, DefaultPipelineTuning())
	driveBank(t, bank, 120, 44100, logRate, 6.0)

	bank.Reset()

	ready, frame := bank.Update(0, AudioTime{SampleIndex: 0})
	if !ready {
		t.Fatal("first post-reset update must recompute")
	}
	for _, c := range frame.Candidates {
		if c.Magnitude > 0.01 {
			t.Errorf("post-reset candidate at %.1f BPM keeps magnitude %v", c.BPM, c.Magnitude)
		}
	}
}
