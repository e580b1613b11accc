package tempotracker

// PipelineTuning holds the runtime-tunable front-end and tempo-prior
// parameters. Values arrive from an external configuration layer and
// must pass through Clamp before use; Clamp is idempotent.
type PipelineTuning struct {
	// DCAlpha is the DC-blocking filter coefficient.
	DCAlpha float64

	// AGC parameters for the upstream gain stage.
	AGCTargetRMS float64
	AGCMinGain   float64
	AGCMaxGain   float64
	AGCAttack    float64
	AGCRelease   float64

	// Noise gate parameters.
	NoiseFloorMin   float64
	GateStartFactor float64
	GateRangeFactor float64

	// NoveltyZClamp bounds the z-scored novelty magnitude.
	NoveltyZClamp float64

	// SilenceThreshold is the novelty-contrast level above which the
	// history is considered silent.
	SilenceThreshold float64

	// Tempo prior parameters for tactus scoring.
	PriorCenterBPM float64
	PriorSigmaBPM  float64

	// MinCandidateScore is the floor below which a resolver update
	// holds the previous lock instead of adopting a winner.
	MinCandidateScore float64
}

// DefaultPipelineTuning returns the tuning used when none is supplied.
func DefaultPipelineTuning() PipelineTuning {
	return PipelineTuning{
		DCAlpha:           0.001,
		AGCTargetRMS:      0.25,
		AGCMinGain:        1.0,
		AGCMaxGain:        40.0,
		AGCAttack:         0.03,
		AGCRelease:        0.015,
		NoiseFloorMin:     0.0004,
		GateStartFactor:   1.0,
		GateRangeFactor:   1.5,
		NoveltyZClamp:     6.0,
		SilenceThreshold:  0.5,
		PriorCenterBPM:    priorCenterBPM,
		PriorSigmaBPM:     priorSigmaBPM,
		MinCandidateScore: 0.02,
	}
}

// Clamp forces every field into its safe range. Applying Clamp twice
// yields the same result as applying it once.
func (t *PipelineTuning) Clamp() {
	t.DCAlpha = clampRange(t.DCAlpha, 1e-5, 0.1)
	t.AGCTargetRMS = clampRange(t.AGCTargetRMS, 0.01, 1.0)
	t.AGCMinGain = clampRange(t.AGCMinGain, 0.1, 10.0)
	t.AGCMaxGain = clampRange(t.AGCMaxGain, t.AGCMinGain, 100.0)
	t.AGCAttack = clampRange(t.AGCAttack, 0.001, 0.5)
	t.AGCRelease = clampRange(t.AGCRelease, 0.001, 0.5)
	t.NoiseFloorMin = clampRange(t.NoiseFloorMin, 0.0, 0.1)
	t.GateStartFactor = clampRange(t.GateStartFactor, 0.5, 3.0)
	t.GateRangeFactor = clampRange(t.GateRangeFactor, 0.5, 3.0)
	t.NoveltyZClamp = clampRange(t.NoveltyZClamp, 1.0, 6.0)
	t.SilenceThreshold = clampRange(t.SilenceThreshold, 0.1, 0.9)
	t.PriorCenterBPM = clampRange(t.PriorCenterBPM, BPMMin, BPMMax)
	t.PriorSigmaBPM = clampRange(t.PriorSigmaBPM, 5.0, 60.0)
	t.MinCandidateScore = clampRange(t.MinCandidateScore, 0.0, 1.0)
}

// ContractTuning holds the runtime-tunable output-contract parameters
// consumed by the beat clock. Clamp is idempotent.
type ContractTuning struct {
	// BPMLow and BPMHigh bound the clock tempo.
	BPMLow  float64
	BPMHigh float64

	// PhaseGain scales the proportional phase correction; the applied
	// correction is further capped at MaxPhaseStep per update.
	PhaseGain    float64
	MaxPhaseStep float64

	// FreqGain scales the frequency correction; the applied correction
	// is capped at MaxBPMStep per update.
	FreqGain   float64
	MaxBPMStep float64

	// BeatsPerBar drives downbeat derivation.
	BeatsPerBar int
}

// DefaultContractTuning returns the tuning used when none is supplied.
func DefaultContractTuning() ContractTuning {
	return ContractTuning{
		BPMLow:       BPMMin,
		BPMHigh:      BPMMax,
		PhaseGain:    0.1,
		MaxPhaseStep: 0.05,
		FreqGain:     0.2,
		MaxBPMStep:   3.0,
		BeatsPerBar:  4,
	}
}

// Clamp forces every field into its safe range. Applying Clamp twice
// yields the same result as applying it once.
func (t *ContractTuning) Clamp() {
	t.BPMLow = clampRange(t.BPMLow, BPMMin, BPMMax)
	t.BPMHigh = clampRange(t.BPMHigh, t.BPMLow, BPMMax)
	t.PhaseGain = clampRange(t.PhaseGain, 0.0, 1.0)
	t.MaxPhaseStep = clampRange(t.MaxPhaseStep, 0.001, 0.25)
	t.FreqGain = clampRange(t.FreqGain, 0.0, 1.0)
	t.MaxBPMStep = clampRange(t.MaxBPMStep, 0.1, 10.0)
	if t.BeatsPerBar < 1 {
		t.BeatsPerBar = 1
	}
	if t.BeatsPerBar > 16 {
		t.BeatsPerBar = 16
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
