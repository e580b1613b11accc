package tempotracker

import (
	"math"

	"github.com/synqing/go-tempo-tracker/internal/simdops"
)

// densityMagFloor is the minimum candidate magnitude that may
// contribute evidence to the density map.
const densityMagFloor = 0.01

// TactusResolver chooses one perceptual beat-level tempo from the
// resonator candidates. It resolves octave ambiguity with family
// scoring and a tempo prior, accumulates multi-second evidence in a
// decaying density map, and keeps the choice stable through a
// lock/hysteresis state machine.
type TactusResolver struct {
	tuning     PipelineTuning
	sampleRate float64

	density [NumTempoBins]float64

	state   LockState
	lockBPM float64

	// Verification timer, in samples.
	verifyDeadline uint64

	// Competitor tracking while pending. Reset on every transition.
	competitorBPM    float64
	competitorFrames int

	// Challenger tracking while verified. Reset on every transition.
	challengerBPM    float64
	challengerFrames int

	lastPhaseHint float64
	haveLock      bool
}

// NewTactusResolver builds a resolver. sampleRate interprets the
// AudioTime stamps used by the verification timer.
func NewTactusResolver(sampleRate float64, tuning PipelineTuning) *TactusResolver {
	return &TactusResolver{
		tuning:     tuning,
		sampleRate: sampleRate,
		state:      LockUnlocked,
	}
}

// prior returns the perceptual tempo weighting for a BPM, a Gaussian
// centered on the common-tempo region.
func (r *TactusResolver) prior(bpm float64) float64 {
	d := (bpm - r.tuning.PriorCenterBPM) / r.tuning.PriorSigmaBPM
	return math.Exp(-0.5 * d * d)
}

// binFor maps a BPM to its density-map bin.
func binFor(bpm float64) int {
	bin := int(math.Round(bpm - BPMMin))
	if bin < 0 {
		bin = 0
	} else if bin > NumTempoBins-1 {
		bin = NumTempoBins - 1
	}
	return bin
}

// Update consumes one resonator frame and returns the resolved tactus.
func (r *TactusResolver) Update(frame ResonatorFrame) TactusFrame {
	cands := dropNonFinite(frame.Candidates)

	r.accrueDensity(cands)
	scores := r.scoreCandidates(cands)

	best := -1
	for i := range cands {
		if best < 0 || scores[i] > scores[best] {
			best = i
		}
	}

	if best < 0 || scores[best] < r.tuning.MinCandidateScore {
		return r.holdFrame(frame)
	}

	best = r.octaveOverride(cands, scores, best)

	densityConf := r.groupedConfidence(cands, scores, best)

	winner := cands[best]
	r.advanceLock(winner, scores, cands, best, frame.T)
	r.lastPhaseHint = winner.Phase

	return r.emit(frame, densityConf, scores[best], winner.Phase)
}

func dropNonFinite(cands []Candidate) []Candidate {
	out := cands[:0:0]
	for _, c := range cands {
		if math.IsNaN(c.BPM) || math.IsInf(c.BPM, 0) ||
			math.IsNaN(c.Magnitude) || math.IsInf(c.Magnitude, 0) || c.Magnitude < 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}

// accrueDensity decays the map and splats a triangular kernel for the
// strongest candidates. This is multi-second evidence accumulation,
// independent of any single frame's winner.
func (r *TactusResolver) accrueDensity(cands []Candidate) {
	simdops.Scale(r.density[:], r.density[:], densityDecay)

	n := len(cands)
	if n > densityTopK {
		n = densityTopK
	}
	for _, c := range cands[:n] {
		if c.Magnitude < densityMagFloor {
			continue
		}
		center := binFor(c.BPM)
		r.splat(center, c.Magnitude)
		r.splat(center-1, c.Magnitude*densityKernelR1)
		r.splat(center+1, c.Magnitude*densityKernelR1)
		r.splat(center-2, c.Magnitude*densityKernelR2)
		r.splat(center+2, c.Magnitude*densityKernelR2)
	}
}

func (r *TactusResolver) splat(bin int, w float64) {
	if bin >= 0 && bin < NumTempoBins {
		r.density[bin] += w
	}
}

// scoreCandidates combines resonator magnitude, the tempo prior,
// octave-family evidence, long-term density, and the lock stability
// bonus into one score per candidate.
func (r *TactusResolver) scoreCandidates(cands []Candidate) []float64 {
	maxDensity := simdops.Max(r.density[:])

	scores := make([]float64, len(cands))
	for i, c := range cands {
		p := r.prior(c.BPM)
		score := c.Magnitude * p

		if half := findNear(cands, c.BPM/2); half >= 0 {
			score += familyWeight * cands[half].Magnitude * p
		}
		if double := findNear(cands, c.BPM*2); double >= 0 {
			score += familyWeight * cands[double].Magnitude * p
		}

		if maxDensity > 0 {
			local := r.density[binFor(c.BPM)] / maxDensity
			score *= 1 + densityBoost*local
		}

		if r.state == LockVerified && math.Abs(c.BPM-r.lockBPM) <= stabilityWindowBPM {
			score += stabilityBonus
		}

		scores[i] = score
	}
	return scores
}

// findNear returns the index of a candidate within the relative family
// tolerance of target, or -1.
func findNear(cands []Candidate, target float64) int {
	if target < BPMMin || target > BPMMax {
		return -1
	}
	best := -1
	for i, c := range cands {
		if math.Abs(c.BPM-target) <= familyTolerance*target {
			if best < 0 || c.Magnitude > cands[best].Magnitude {
				best = i
			}
		}
	}
	return best
}

// octaveOverride switches a slow winner to its double when the double
// is a clearly better tactus: its prior must be at least twice as good
// and its own score at least 30% of the winner's.
func (r *TactusResolver) octaveOverride(cands []Candidate, scores []float64, best int) int {
	winner := cands[best]
	if winner.BPM >= octaveOverrideBPM {
		return best
	}
	doubleBPM := winner.BPM * 2
	if doubleBPM > BPMMax {
		return best
	}
	di := findNear(cands, doubleBPM)
	if di < 0 {
		return best
	}
	if r.prior(doubleBPM) < octavePriorRatio*r.prior(winner.BPM) {
		return best
	}
	if scores[di] < octaveScoreRatio*scores[best] {
		return best
	}
	return di
}

// groupedConfidence measures consensus: candidates within the group
// tolerance of the winner agree with it, and only candidates at least
// the competitor distance away count as competition. Unanimous
// near-duplicate agreement is full confidence, not rivalry.
func (r *TactusResolver) groupedConfidence(cands []Candidate, scores []float64, best int) float64 {
	winBPM := cands[best].BPM

	var consensus, distant float64
	for i, c := range cands {
		d := math.Abs(c.BPM - winBPM)
		switch {
		case d <= groupToleranceBPM:
			consensus += scores[i]
		case d >= distantCompetitor:
			if scores[i] > distant {
				distant = scores[i]
			}
		}
	}

	if distant < 1e-9 {
		return 1.0
	}
	conf := (consensus - distant) / (consensus + distant)
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return conf
}

// advanceLock runs the UNLOCKED -> PENDING -> VERIFIED state machine.
// All per-state tracking lives in explicit fields and is reset on
// every transition.
func (r *TactusResolver) advanceLock(winner Candidate, scores []float64, cands []Candidate, best int, t AudioTime) {
	switch r.state {
	case LockUnlocked:
		r.lockBPM = winner.BPM
		r.toPending(t)

	case LockPending:
		r.trackCompetitor(scores, cands)
		if r.competitorFrames >= pendingRecurCount {
			r.lockBPM = r.competitorBPM
			r.toPending(t)
			break
		}
		if t.SampleIndex >= r.verifyDeadline {
			r.toVerified()
		}

	case LockVerified:
		if math.Abs(winner.BPM-r.lockBPM) <= stabilityWindowBPM {
			// The winner agrees with the lock; slow-track toward it.
			r.lockBPM = r.lockBPM*(1-lockTrackAlpha) + winner.BPM*lockTrackAlpha
			r.challengerBPM = 0
			r.challengerFrames = 0
			break
		}
		r.trackChallenger(winner, scores, cands, best)
		if r.challengerFrames >= challengerCount {
			r.lockBPM = winner.BPM
			r.challengerBPM = 0
			r.challengerFrames = 0
		}
	}
	r.haveLock = true
}

// toPending enters PENDING and restarts the verification timer.
func (r *TactusResolver) toPending(t AudioTime) {
	r.state = LockPending
	r.verifyDeadline = t.SampleIndex + uint64(verifySeconds*r.sampleRate)
	r.competitorBPM = 0
	r.competitorFrames = 0
	r.challengerBPM = 0
	r.challengerFrames = 0
}

// toVerified enters VERIFIED with clean challenger tracking.
func (r *TactusResolver) toVerified() {
	r.state = LockVerified
	r.competitorBPM = 0
	r.competitorFrames = 0
	r.challengerBPM = 0
	r.challengerFrames = 0
}

// trackCompetitor watches for a distant candidate that consistently
// outscores the pending lock. bestScoreNear re-scores the incumbent
// from the current frame so the comparison is apples to apples.
func (r *TactusResolver) trackCompetitor(scores []float64, cands []Candidate) {
	incumbent := bestScoreNear(cands, scores, r.lockBPM, groupToleranceBPM)

	var comp Candidate
	compScore := -1.0
	for i, c := range cands {
		if math.Abs(c.BPM-r.lockBPM) <= pendingCompetitor {
			continue
		}
		if scores[i] > compScore {
			comp = c
			compScore = scores[i]
		}
	}

	if compScore < 0 || compScore < pendingAdvantage*incumbent || compScore < r.tuning.MinCandidateScore {
		r.competitorFrames = 0
		return
	}
	if r.competitorFrames > 0 && math.Abs(comp.BPM-r.competitorBPM) <= pendingRecurBPM {
		r.competitorFrames++
	} else {
		r.competitorFrames = 1
	}
	r.competitorBPM = comp.BPM
}

// trackChallenger applies verified-state hysteresis: the challenger
// must beat the re-scored incumbent by a margin and recur near itself
// for several consecutive updates before the switch commits. Any break
// in recurrence resets the counter.
func (r *TactusResolver) trackChallenger(winner Candidate, scores []float64, cands []Candidate, best int) {
	incumbent := bestScoreNear(cands, scores, r.lockBPM, groupToleranceBPM)

	if incumbent > 0 && scores[best] < challengerRatio*incumbent {
		r.challengerFrames = 0
		return
	}
	if r.challengerFrames > 0 && math.Abs(winner.BPM-r.challengerBPM) <= challengerRecurBPM {
		r.challengerFrames++
	} else {
		r.challengerFrames = 1
	}
	r.challengerBPM = winner.BPM
}

// bestScoreNear returns the best score among candidates within tol BPM
// of bpm, or 0 when none is present in the frame.
func bestScoreNear(cands []Candidate, scores []float64, bpm, tol float64) float64 {
	best := 0.0
	for i, c := range cands {
		if math.Abs(c.BPM-bpm) <= tol && scores[i] > best {
			best = scores[i]
		}
	}
	return best
}

// holdFrame re-publishes the previous lock when no candidate clears
// the minimum score. Confidence is derived solely from the density
// map around the held lock.
func (r *TactusResolver) holdFrame(frame ResonatorFrame) TactusFrame {
	densityConf := 0.0
	if r.haveLock {
		if maxD := simdops.Max(r.density[:]); maxD > 0 {
			densityConf = r.density[binFor(r.lockBPM)] / maxD
		}
	}
	return r.emit(frame, densityConf, 0, r.lastPhaseHint)
}

// emit builds the output frame with shaped confidence. The slight
// convex boost rewards strong consensus without ever exposing the
// raw, unbounded family score as confidence.
func (r *TactusResolver) emit(frame ResonatorFrame, densityConf, familyScore, phaseHint float64) TactusFrame {
	conf := densityConf * (1 - confidenceShaping*(1-densityConf))
	conf *= 1 - frame.SilenceLevel

	challenger := r.challengerFrames
	if r.state == LockPending {
		challenger = r.competitorFrames
	}

	return TactusFrame{
		T:                frame.T,
		BPM:              r.lockBPM,
		Confidence:       conf,
		DensityConf:      densityConf,
		PhaseHint:        phaseHint,
		Locked:           r.state == LockVerified,
		State:            r.state,
		WinningBin:       binFor(r.lockBPM),
		ChallengerFrames: challenger,
		FamilyScore:      familyScore,
		SilenceLevel:     frame.SilenceLevel,
	}
}

// Reset clears the density map and returns the lock machine to its
// initial state.
func (r *TactusResolver) Reset() {
	r.density = [NumTempoBins]float64{}
	r.state = LockUnlocked
	r.lockBPM = 0
	r.verifyDeadline = 0
	r.competitorBPM = 0
	r.competitorFrames = 0
	r.challengerBPM = 0
	r.challengerFrames = 0
	r.lastPhaseHint = 0
	r.haveLock = false
}
