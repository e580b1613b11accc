package tempotracker

// AudioTime stamps every frame flowing through the pipeline.
// SampleIndex is the authoritative ordering key; wall-clock time is
// advisory and must never be used to order frames.
type AudioTime struct {
	// SampleIndex is a monotonic count of input samples since start.
	SampleIndex uint64

	// WallClockMs is an advisory wall-clock timestamp in milliseconds.
	WallClockMs uint32
}

// SamplesBetween returns the signed sample distance from a to b.
func SamplesBetween(a, b AudioTime) int64 {
	return int64(b.SampleIndex) - int64(a.SampleIndex)
}

// Candidate is one tempo hypothesis produced by the resonator bank.
// Candidates are created fresh on every resonator recompute and are
// never persisted across frames.
type Candidate struct {
	// BPM is the refined tempo estimate, always within [BPMMin, BPMMax].
	BPM float64

	// Magnitude is the smoothed resonator energy at this tempo, >= 0.
	Magnitude float64

	// Phase is the beat phase read off the resonator, in [0, 1).
	Phase float64
}

// ResonatorFrame is the resonator bank's periodic output: up to
// MaxCandidates tempo hypotheses ordered by descending magnitude.
type ResonatorFrame struct {
	T          AudioTime
	Candidates []Candidate

	// SilenceLevel is the current novelty-contrast silence estimate
	// in [0, 1]; 1 means the recent history shows no onset activity.
	SilenceLevel float64
}

// LockState describes the tactus resolver's lock progression.
type LockState int

const (
	// LockUnlocked means no tempo has been adopted yet.
	LockUnlocked LockState = iota

	// LockPending means a tempo was adopted and is being verified.
	LockPending

	// LockVerified means the tempo survived verification and is
	// protected by challenger hysteresis.
	LockVerified
)

// String returns the lock state name.
func (s LockState) String() string {
	switch s {
	case LockUnlocked:
		return "unlocked"
	case LockPending:
		return "pending"
	case LockVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// TactusFrame is the tactus resolver's per-update output: the single
// perceptual beat-level tempo chosen from the resonator candidates.
type TactusFrame struct {
	T AudioTime

	// BPM is the current lock tempo.
	BPM float64

	// Confidence combines consensus evidence into [0, 1].
	Confidence float64

	// DensityConf is the raw grouped-consensus confidence in [0, 1].
	DensityConf float64

	// PhaseHint is the winning candidate's beat phase in [0, 1).
	PhaseHint float64

	// Locked is true once the lock state machine reaches verification.
	Locked bool

	// State is the resolver's lock state.
	State LockState

	// WinningBin is the density-map bin index of the lock tempo.
	WinningBin int

	// ChallengerFrames counts consecutive updates the current
	// challenger has recurred; zero when there is no challenger.
	ChallengerFrames int

	// FamilyScore is the winner's raw octave-family score before
	// confidence shaping. Diagnostic only; unbounded.
	FamilyScore float64

	// SilenceLevel passes through the resonator bank's estimate.
	SilenceLevel float64
}

// BeatClockState is the beat clock's continuously advancing output.
type BeatClockState struct {
	T AudioTime

	// Phase01 is the beat phase in [0, 1); 0 is the beat instant.
	Phase01 float64

	// BPM is the smoothed clock tempo.
	BPM float64

	// Locked and Confidence are passed through from the resolver.
	Locked     bool
	Confidence float64

	// PhaseError and FreqError are the most recent raw errors against
	// the resolver's hints, before correction clamping.
	PhaseError float64
	FreqError  float64

	// Tick is true for exactly one clock update at each beat instant.
	Tick bool

	// BeatIndex counts beats since start; BeatInBar wraps it by the
	// configured bar length. Downbeat marks the first beat of a bar.
	BeatIndex uint64
	BeatInBar int
	Downbeat  bool
}

// FastFrame is published on the fast lane every pipeline tick.
type FastFrame struct {
	T       AudioTime
	Bands   [NumBands]float64
	RMS     float64
	Novelty float64
}

// BeatFrame is published on the beat lane after every resolver and
// beat-clock update.
type BeatFrame struct {
	T      AudioTime
	Tactus TactusFrame
	Clock  BeatClockState
}
