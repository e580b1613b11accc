// Package tempotracker provides real-time musical tempo tracking in
// pure Go.
//
// The pipeline turns a stream of per-hop band energies into a stable
// beat-level tempo estimate and a continuous beat clock. It runs four
// stages:
//
//   - Novelty extraction: perceptually weighted spectral flux reduces
//     each hop's band energies to one onset-strength scalar.
//   - Resonator bank: one Goertzel periodicity detector per BPM over
//     the tracked range scores the recent onset history and emits
//     refined tempo candidates with phase estimates.
//   - Tactus resolution: octave-family scoring, a perceptual tempo
//     prior, and a decaying evidence map choose one beat-level tempo,
//     protected by a lock state machine with hysteresis.
//   - Beat clock: a software PLL converts the resolved tempo into a
//     continuous beat phase, discrete beat ticks, and bar position.
//
// # Quick Start
//
//	tracker, err := tempotracker.NewTracker(tempotracker.DefaultConfig(44100, 512))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Feed one hop of band energies per capture period.
//	err = tracker.ProcessHop(bands, rms, tempotracker.AudioTime{
//	    SampleIndex: hopStart,
//	    WallClockMs: wallMs,
//	})
//
//	// Read results from any goroutine, wait-free.
//	if beat, _, ok := tracker.BeatFrames(); ok {
//	    fmt.Printf("%.1f BPM phase %.2f\n", beat.Clock.BPM, beat.Clock.Phase01)
//	}
//
// For a capture backend, implement CaptureSource and drive the whole
// loop with Tracker.Run; transient capture faults skip the affected
// hop and fatal ones stop the loop.
//
// # Time
//
// Every frame is stamped with an AudioTime. The sample index is the
// single authoritative ordering key; wall-clock milliseconds ride
// along for display only. All internal timers (lock verification,
// tick debounce, recompute throttling) count samples, never wall
// time, so processing faster or slower than real time never changes
// the results.
package tempotracker
