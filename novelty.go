package tempotracker

import (
	"fmt"
	"math"

	"github.com/synqing/go-tempo-tracker/internal/simdops"
)

// bandWeights bias the onset measure toward low frequencies so that
// kick-like transients dominate over cymbal and noise transients. The
// sub-bass band carries 25x the weight of the topmost band.
var bandWeights = [NumBands]float64{25.0, 16.0, 8.0, 4.0, 2.0, 1.5, 1.2, 1.0}

// NoveltyExtractor converts a per-hop band-energy vector into a single
// perceptually weighted onset-strength scalar. The raw flux is z-scored
// against running EMA statistics and half-wave rectified before it is
// handed to the resonator bank.
type NoveltyExtractor struct {
	prev      [NumBands]float64
	weightSum float64

	// Running statistics for z-scoring.
	mean     float64
	variance float64
	primed   bool

	// When set, the next hop only records its bands. Covers gaps in
	// the stream where the previous-hop vector is stale.
	resync bool

	zClamp float64
}

// NewNoveltyExtractor builds an extractor with the given z clamp bound.
func NewNoveltyExtractor(tuning PipelineTuning) *NoveltyExtractor {
	return &NoveltyExtractor{
		weightSum: simdops.Sum(bandWeights[:]),
		zClamp:    tuning.NoveltyZClamp,
	}
}

// Process computes the normalized novelty for the current hop.
// The only side effect is updating the previous-hop vector and the
// running statistics for the next call.
func (e *NoveltyExtractor) Process(bands []float64) (float64, error) {
	if len(bands) != NumBands {
		return 0, fmt.Errorf("%w: expected %d bands, got %d", ErrInvalidConfig, NumBands, len(bands))
	}

	if e.resync {
		copy(e.prev[:], bands)
		e.resync = false
		return 0, nil
	}

	var flux float64
	for i, b := range bands {
		delta := b - e.prev[i]
		if delta > 0 {
			flux += delta * bandWeights[i]
		}
		e.prev[i] = b
	}
	flux /= e.weightSum

	return e.normalize(flux), nil
}

// normalize z-scores the raw flux with EMA mean and variance, clamps
// the score, and half-wave rectifies it. The resonator bank detects
// periodicity in onset energy, which is non-negative by construction.
func (e *NoveltyExtractor) normalize(flux float64) float64 {
	if !e.primed {
		e.mean = flux
		e.variance = 0
		e.primed = true
		return 0
	}

	d := flux - e.mean
	e.mean += zScoreAlpha * d
	e.variance = (1-zScoreAlpha)*e.variance + zScoreAlpha*d*d

	std := math.Sqrt(e.variance)
	if std < 1e-9 {
		return 0
	}

	z := (flux - e.mean) / std
	if z > e.zClamp {
		z = e.zClamp
	} else if z < -e.zClamp {
		z = -e.zClamp
	}
	if z < 0 {
		return 0
	}
	return z
}

// ClearDelta discards the previous-hop band vector while keeping the
// running statistics. The next hop only records its bands and yields
// zero novelty, so a gap in the stream never registers as an onset.
func (e *NoveltyExtractor) ClearDelta() {
	e.resync = true
}

// Reset clears the previous-hop vector and the running statistics.
func (e *NoveltyExtractor) Reset() {
	e.prev = [NumBands]float64{}
	e.mean = 0
	e.variance = 0
	e.primed = false
	e.resync = false
}
