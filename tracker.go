package tempotracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/synqing/go-tempo-tracker/internal/snapshot"
)

// Hop is one capture period of analysis input: per-band energies, the
// frame RMS, and the timestamp of the hop's first sample.
type Hop struct {
	Bands []float64
	RMS   float64
	T     AudioTime
}

// CaptureSource delivers hops from an audio backend. ReadHop blocks
// until a hop is available or ctx is done. Backend faults are
// reported as *CaptureError so the tracker can tell fatal from
// transient.
type CaptureSource interface {
	ReadHop(ctx context.Context) (Hop, error)
}

// Tracker runs the full tempo pipeline over a stream of hops and
// publishes results through wait-free snapshots. Analysis happens on
// two cadences: the fast lane (novelty, clock phase) runs every hop,
// the beat lane (resonators, tactus, clock corrections) every second
// hop.
//
// ProcessHop, Pause, Resume and Reset are safe for concurrent use,
// but hops must come from a single producer so sample indices stay
// monotonic.
type Tracker struct {
	cfg Config

	mu sync.Mutex

	novelty  *NoveltyExtractor
	bank     *ResonatorBank
	resolver *TactusResolver
	clock    *BeatClock

	paused atomic.Bool

	hopCount    uint64
	lastIndex   uint64
	haveHop     bool
	laneNovelty float64
	lastTactus  TactusFrame

	fast  snapshot.Publisher[FastFrame]
	beats snapshot.Publisher[BeatFrame]
}

// NewTracker builds a tracker from cfg. Tuning values are clamped to
// their valid ranges before use.
func NewTracker(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Pipeline.Clamp()
	cfg.Contract.Clamp()

	t := &Tracker{
		cfg:     cfg,
		novelty: NewNoveltyExtractor(cfg.Pipeline),
	}

	sr := float64(cfg.SampleRate)
	// The resonator bank sees one novelty sample per beat-lane pass.
	logRate := sr / float64(cfg.HopSize*beatLaneDivisor)

	if cfg.Stages.EnableResonator {
		t.bank = NewResonatorBank(sr, logRate, cfg.Pipeline)
	}
	if cfg.Stages.EnableTactus {
		t.resolver = NewTactusResolver(sr, cfg.Pipeline)
	}
	if cfg.Stages.EnableBeatClock {
		t.clock = NewBeatClock(sr, cfg.Contract)
	}
	return t, nil
}

// ProcessHop feeds one hop of band energies through the pipeline.
// bands must have NumBands entries and t.SampleIndex must be greater
// than the previous hop's. Returns ErrPaused while the tracker is
// paused; the hop is discarded.
func (tr *Tracker) ProcessHop(bands []float64, rms float64, t AudioTime) error {
	if tr.paused.Load() {
		return ErrPaused
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.haveHop && t.SampleIndex <= tr.lastIndex {
		return fmt.Errorf("non-monotonic sample index %d after %d", t.SampleIndex, tr.lastIndex)
	}

	nov, err := tr.novelty.Process(bands)
	if err != nil {
		return err
	}

	var frame FastFrame
	frame.T = t
	copy(frame.Bands[:], bands)
	frame.RMS = rms
	frame.Novelty = nov
	tr.fast.Publish(frame)

	// The clock phase advances every hop so readers never see it
	// stall between beat-lane passes.
	var clockState BeatClockState
	if tr.clock != nil {
		dt := 0.0
		if tr.haveHop {
			dt = float64(t.SampleIndex-tr.lastIndex) / float64(tr.cfg.SampleRate)
		}
		clockState = tr.clock.Tick(t, dt)
	}

	tr.lastIndex = t.SampleIndex
	tr.haveHop = true
	tr.hopCount++

	// Onsets must survive the lane decimation, so the beat lane
	// consumes the louder of the two hops' novelty.
	if nov > tr.laneNovelty {
		tr.laneNovelty = nov
	}

	if tr.bank != nil && tr.hopCount%beatLaneDivisor == 0 {
		tr.beatLane(t)
		tr.laneNovelty = 0
		if tr.clock != nil {
			clockState = tr.clock.State(t)
		}
	}

	if tr.clock != nil || tr.resolver != nil {
		tr.beats.Publish(BeatFrame{T: t, Tactus: tr.lastTactus, Clock: clockState})
	}
	return nil
}

// beatLane runs the slow half of the pipeline on the accumulated
// novelty sample.
func (tr *Tracker) beatLane(t AudioTime) {
	ready, rf := tr.bank.Update(tr.laneNovelty, t)
	if !ready || tr.resolver == nil {
		return
	}
	tf := tr.resolver.Update(rf)
	tr.lastTactus = tf
	if tr.clock != nil {
		tr.clock.UpdateFromTactus(tf)
	}
}

// Run pulls hops from src until ctx is done or a fatal capture fault
// occurs. Transient faults (timeouts, read errors, overflows) skip
// the hop and keep going.
func (tr *Tracker) Run(ctx context.Context, src CaptureSource) error {
	for {
		hop, err := src.ReadHop(ctx)
		if err != nil {
			var ce *CaptureError
			if errors.As(err, &ce) && ce.Transient() {
				continue
			}
			return err
		}
		if err := tr.ProcessHop(hop.Bands, hop.RMS, hop.T); err != nil {
			if errors.Is(err, ErrPaused) {
				continue
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Pause stops consuming hops. Published snapshots stay readable.
func (tr *Tracker) Pause() {
	tr.paused.Store(true)
}

// Resume continues after Pause. The previous-hop band vector is
// discarded so the gap does not register as an onset; all other
// pipeline state, including the running novelty statistics, carries
// over.
func (tr *Tracker) Resume() {
	tr.mu.Lock()
	tr.novelty.ClearDelta()
	tr.laneNovelty = 0
	tr.mu.Unlock()
	tr.paused.Store(false)
}

// Reset returns every stage to its initial state and discards the
// current snapshots. Snapshot sequence numbers keep increasing across
// a reset.
func (tr *Tracker) Reset() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.novelty.Reset()
	if tr.bank != nil {
		tr.bank.Reset()
	}
	if tr.resolver != nil {
		tr.resolver.Reset()
	}
	if tr.clock != nil {
		tr.clock.Reset()
	}
	tr.hopCount = 0
	tr.lastIndex = 0
	tr.haveHop = false
	tr.laneNovelty = 0
	tr.lastTactus = TactusFrame{}
	tr.fast.Reset()
	tr.beats.Reset()
}

// FastFrames returns the most recent fast-lane snapshot.
func (tr *Tracker) FastFrames() (FastFrame, uint64, bool) {
	return tr.fast.Read()
}

// BeatFrames returns the most recent beat-lane snapshot.
func (tr *Tracker) BeatFrames() (BeatFrame, uint64, bool) {
	return tr.beats.Read()
}
