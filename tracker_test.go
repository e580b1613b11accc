package tempotracker

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/synqing/go-tempo-tracker/internal/testutil"
)

const (
	testRate = 44100
	testHop  = 512
)

// feedClickTrack pushes a synthetic click track through the tracker.
// Returns the final hop index.
func feedClickTrack(t *testing.T, tr *Tracker, bpm float64, seconds float64, startHop int) int {
	t.Helper()

	numHops := int(seconds * testRate / testHop)
	frames := testutil.ClickBands(bpm, testRate, testHop, numHops, NumBands)

	for n, bands := range frames {
		i := startHop + n
		rms := 0.01
		if bands[0] > 0.5 {
			rms = 0.8
		}
		at := AudioTime{
			SampleIndex: uint64(i * testHop),
			WallClockMs: uint32(i * testHop * 1000 / testRate),
		}
		if err := tr.ProcessHop(bands, rms, at); err != nil {
			t.Fatalf("hop %d: %v", i, err)
		}
	}
	return startHop + numHops
}

// TestTracker_LocksOnClickTrack is the end-to-end check: twelve
// seconds of a 120 BPM click track must produce a verified lock near
// 120 BPM with beats counting up.
func TestTracker_LocksOnClickTrack(t *testing.T) {
	tr, err := NewTracker(DefaultConfig(testRate, testHop))
	if err != nil {
		t.Fatal(err)
	}

	feedClickTrack(t, tr, 120, 12.0, 0)

	beat, _, ok := tr.BeatFrames()
	if !ok {
		t.Fatal("no beat frame published")
	}
	if beat.Tactus.State != LockVerified {
		t.Fatalf("lock state = %v, want verified", beat.Tactus.State)
	}
	if math.Abs(beat.Tactus.BPM-120) > 2.0 {
		t.Errorf("tracked BPM = %v, want 120 +- 2", beat.Tactus.BPM)
	}
	if beat.Tactus.Confidence < 0.5 {
		t.Errorf("confidence = %v on a clean click track, want >= 0.5", beat.Tactus.Confidence)
	}
	if beat.Clock.BeatIndex == 0 {
		t.Error("beat clock never advanced past the first beat")
	}
	if math.Abs(beat.Clock.BPM-120) > 5.0 {
		t.Errorf("clock BPM = %v, want near 120", beat.Clock.BPM)
	}
}

// TestTracker_FastLanePublishesEveryHop verifies the fast snapshot
// sequence advances once per hop.
func TestTracker_FastLanePublishesEveryHop(t *testing.T) {
	tr, err := NewTracker(DefaultConfig(testRate, testHop))
	if err != nil {
		t.Fatal(err)
	}

	bands := make([]float64, NumBands)
	for i := 0; i < 10; i++ {
		at := AudioTime{SampleIndex: uint64(i * testHop)}
		if err := tr.ProcessHop(bands, 0, at); err != nil {
			t.Fatal(err)
		}
		fast, seq, ok := tr.FastFrames()
		if !ok {
			t.Fatalf("hop %d: no fast frame", i)
		}
		if seq != uint64(i+1) {
			t.Errorf("hop %d: fast sequence = %d, want %d", i, seq, i+1)
		}
		if fast.T.SampleIndex != uint64(i*testHop) {
			t.Errorf("hop %d: fast frame timestamp %d", i, fast.T.SampleIndex)
		}
	}
}

// TestTracker_RejectsNonMonotonicTime verifies sample-index ordering
// is enforced.
func TestTracker_RejectsNonMonotonicTime(t *testing.T) {
	tr, err := NewTracker(DefaultConfig(testRate, testHop))
	if err != nil {
		t.Fatal(err)
	}

	bands := make([]float64, NumBands)
	if err := tr.ProcessHop(bands, 0, AudioTime{SampleIndex: 1024}); err != nil {
		t.Fatal(err)
	}
	if err := tr.ProcessHop(bands, 0, AudioTime{SampleIndex: 1024}); err == nil {
		t.Error("repeated sample index must be rejected")
	}
	if err := tr.ProcessHop(bands, 0, AudioTime{SampleIndex: 512}); err == nil {
		t.Error("backwards sample index must be rejected")
	}
	// Wall clock is advisory and must not affect ordering.
	if err := tr.ProcessHop(bands, 0, AudioTime{SampleIndex: 2048, WallClockMs: 0}); err != nil {
		t.Errorf("forward sample index with stale wall clock rejected: %v", err)
	}
}

func TestTracker_WrongBandCount(t *testing.T) {
	tr, err := NewTracker(DefaultConfig(testRate, testHop))
	if err != nil {
		t.Fatal(err)
	}

	err = tr.ProcessHop(make([]float64, NumBands+1), 0, AudioTime{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for wrong band count, got %v", err)
	}
}

// TestTracker_PauseResume verifies hops are refused while paused and
// accepted again after resume, with snapshots retained across the
// pause.
func TestTracker_PauseResume(t *testing.T) {
	tr, err := NewTracker(DefaultConfig(testRate, testHop))
	if err != nil {
		t.Fatal(err)
	}

	end := feedClickTrack(t, tr, 120, 3.0, 0)
	_, seqBefore, ok := tr.FastFrames()
	if !ok {
		t.Fatal("no fast frame before pause")
	}

	tr.Pause()
	bands := make([]float64, NumBands)
	err = tr.ProcessHop(bands, 0, AudioTime{SampleIndex: uint64(end * testHop)})
	if !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if _, seq, _ := tr.FastFrames(); seq != seqBefore {
		t.Error("paused hop must not publish")
	}

	tr.Resume()

	// The first hop after the gap must not read as an onset, even
	// when it lands loud against the stale previous-hop vector.
	loud := make([]float64, NumBands)
	for b := range loud {
		loud[b] = 1.0
	}
	at := AudioTime{SampleIndex: uint64((end + 10) * testHop)}
	if err := tr.ProcessHop(loud, 0.8, at); err != nil {
		t.Fatalf("hop after resume: %v", err)
	}
	fast, seqAfter, ok := tr.FastFrames()
	if !ok || seqAfter <= seqBefore {
		t.Fatal("no publication after resume")
	}
	if fast.Novelty != 0 {
		t.Errorf("first post-resume hop novelty = %v, want 0", fast.Novelty)
	}

	feedClickTrack(t, tr, 120, 1.0, end+11)
	if _, seq, _ := tr.FastFrames(); seq <= seqAfter {
		t.Error("no publications after resume")
	}
}

// TestTracker_Reset verifies a hard reset clears snapshots and the
// lock, and the tracker accepts a fresh timeline.
func TestTracker_Reset(t *testing.T) {
	tr, err := NewTracker(DefaultConfig(testRate, testHop))
	if err != nil {
		t.Fatal(err)
	}

	feedClickTrack(t, tr, 120, 8.0, 0)
	tr.Reset()

	if _, _, ok := tr.FastFrames(); ok {
		t.Error("fast snapshot must be cleared by reset")
	}
	if _, _, ok := tr.BeatFrames(); ok {
		t.Error("beat snapshot must be cleared by reset")
	}

	// The timeline restarts at zero after a reset.
	feedClickTrack(t, tr, 100, 1.0, 0)
	beat, _, ok := tr.BeatFrames()
	if !ok {
		t.Fatal("no beat frame after reset")
	}
	if beat.Tactus.State == LockVerified {
		t.Error("lock must not survive a reset")
	}
}

// TestTracker_StageSelection verifies disabled stages leave the beat
// snapshot unpublished while the fast lane still runs.
func TestTracker_StageSelection(t *testing.T) {
	cfg := DefaultConfig(testRate, testHop)
	cfg.Stages = StageSelection{}
	tr, err := NewTracker(cfg)
	if err != nil {
		t.Fatal(err)
	}

	feedClickTrack(t, tr, 120, 2.0, 0)

	if _, _, ok := tr.FastFrames(); !ok {
		t.Error("fast lane must publish with all later stages disabled")
	}
	if _, _, ok := tr.BeatFrames(); ok {
		t.Error("beat lane must not publish with no beat stages enabled")
	}
}

// fakeSource scripts a sequence of hops and faults.
type fakeSource struct {
	hops   []Hop
	faults map[int]*CaptureError
	i      int
}

func (s *fakeSource) ReadHop(ctx context.Context) (Hop, error) {
	if s.i >= len(s.hops) {
		return Hop{}, context.Canceled
	}
	i := s.i
	s.i++
	if f, ok := s.faults[i]; ok {
		return Hop{}, f
	}
	return s.hops[i], nil
}

// TestTracker_RunSkipsTransientFaults verifies the capture loop skips
// transient faults and stops on fatal ones.
func TestTracker_RunSkipsTransientFaults(t *testing.T) {
	tr, err := NewTracker(DefaultConfig(testRate, testHop))
	if err != nil {
		t.Fatal(err)
	}

	hops := make([]Hop, 6)
	for i := range hops {
		hops[i] = Hop{
			Bands: make([]float64, NumBands),
			T:     AudioTime{SampleIndex: uint64((i + 1) * testHop)},
		}
	}
	src := &fakeSource{
		hops: hops,
		faults: map[int]*CaptureError{
			1: NewCaptureError(FaultTimeout, nil),
			3: NewCaptureError(FaultOverflow, nil),
		},
	}

	err = tr.Run(context.Background(), src)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run ended with %v, want context.Canceled at stream end", err)
	}
	if _, seq, _ := tr.FastFrames(); seq != 4 {
		t.Errorf("processed %d hops, want 4 (two faults skipped)", seq)
	}
}

func TestTracker_RunStopsOnFatalFault(t *testing.T) {
	tr, err := NewTracker(DefaultConfig(testRate, testHop))
	if err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{
		hops:   make([]Hop, 3),
		faults: map[int]*CaptureError{0: NewCaptureError(FaultNotInitialized, nil)},
	}

	err = tr.Run(context.Background(), src)
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Run ended with %v, want ErrNotInitialized", err)
	}
}
