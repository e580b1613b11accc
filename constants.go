package tempotracker

// Tempo range constants
const (
	// BPMMin and BPMMax bound every tempo estimate in the pipeline.
	BPMMin = 60.0
	BPMMax = 180.0

	// NumTempoBins is one resonator per integer BPM across the range.
	NumTempoBins = 121

	// MaxCandidates is the number of ranked hypotheses per frame.
	MaxCandidates = 12
)

// Band analysis constants
const (
	// NumBands is the size of the band-energy vector consumed per hop.
	NumBands = 8
)

// Novelty history constants
const (
	// noveltyHistoryLen covers roughly 8 seconds at the beat-lane rate.
	noveltyHistoryLen = 500

	// noveltyFloor keeps decayed history entries from reaching zero.
	noveltyFloor = 1e-5

	// zScoreAlpha is the EMA weight for the running mean and variance
	// feeding novelty normalization.
	zScoreAlpha = 0.05
)

// Resonator bank constants
const (
	// recomputeHz throttles the full bank recompute.
	recomputeHz = 10.0

	// magnitudeSmoothing is the EMA factor applied to raw resonator
	// magnitudes across recompute cycles.
	magnitudeSmoothing = 0.88

	// windowLUTSize is the length of the shared Gaussian window table.
	windowLUTSize = 4096

	// windowSigma is the Gaussian window sigma as a fraction of the
	// window length.
	windowSigma = 0.4

	// minBlockSize bounds the adaptive per-bin analysis block.
	minBlockSize = 32

	// autorangeFloor prevents division blowups when history is quiet.
	autorangeFloor = 0.02
)

// Silence detection constants
const (
	// silenceWindowSec is the span of history inspected for contrast.
	silenceWindowSec = 2.56

	// silenceHistoryDecay is applied to history while silence holds.
	silenceHistoryDecay = 0.10
)

// Tactus resolver constants
const (
	densityDecay       = 0.968
	densityKernelR1    = 0.5
	densityKernelR2    = 0.25
	densityTopK        = 6
	densityBoost       = 0.8
	priorCenterBPM     = 120.0
	priorSigmaBPM      = 35.0
	familyTolerance    = 0.03
	familyWeight       = 0.4
	groupToleranceBPM  = 3.0
	distantCompetitor  = 6.0
	octaveOverrideBPM  = 80.0
	octavePriorRatio   = 2.0
	octaveScoreRatio   = 0.3
	verifySeconds      = 2.5
	pendingCompetitor  = 5.0
	pendingAdvantage   = 1.10
	pendingRecurBPM    = 3.0
	pendingRecurCount  = 15
	stabilityWindowBPM = 2.5
	stabilityBonus     = 0.10
	lockTrackAlpha     = 0.01
	challengerRatio    = 1.15
	challengerRecurBPM = 4.0
	challengerCount    = 8
	confidenceShaping  = 0.2
)

// Beat clock constants
const (
	// tickDebounceFactor is the minimum spacing between beat ticks as
	// a fraction of the current beat period.
	tickDebounceFactor = 0.6
)

// Lane scheduling constants
const (
	// beatLaneDivisor runs the beat lane every Nth fast-lane tick.
	beatLaneDivisor = 2
)
