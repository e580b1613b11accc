// Command tempo-live tracks tempo from the default capture device and
// prints beats as they happen.
//
// Usage:
//
//	tempo-live                      # default device, 44.1 kHz
//	tempo-live -device usb -v       # pick a device by name substring
//	tempo-live -rate 48000 -hop 256
//
// Stop with Ctrl-C.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"

	tempotracker "github.com/synqing/go-tempo-tracker"
	"github.com/synqing/go-tempo-tracker/internal/spectral"
)

const (
	defaultRate      = 44100
	defaultHopSize   = 512
	defaultFrameSize = 2048

	bandLowHz  = 20.0
	bandHighHz = 8000.0

	// A hop read that takes longer than this is reported as a timeout
	// fault; the device has stalled.
	readTimeout = 500 * time.Millisecond

	// Capture chunks buffered between the device callback and the
	// analysis loop before overflow is declared.
	chunkQueueLen = 64

	statusInterval = time.Second
	msPerSec       = 1000
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	rate := flag.Int("rate", defaultRate, "Capture sample rate in Hz")
	hopSize := flag.Int("hop", defaultHopSize, "Hop size in samples")
	frameSize := flag.Int("frame", defaultFrameSize, "Analysis frame size in samples (power of two)")
	deviceName := flag.String("device", "", "Capture device name substring (default device if empty)")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer, err := spectral.NewAnalyzer(*rate, *frameSize, tempotracker.NumBands, bandLowHz, bandHighHz)
	if err != nil {
		return err
	}
	tracker, err := tempotracker.NewTracker(tempotracker.DefaultConfig(*rate, *hopSize))
	if err != nil {
		return err
	}

	src, err := newMicSource(*rate, *hopSize, *frameSize, *deviceName, analyzer, *verbose)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := src.Start(); err != nil {
		return err
	}
	fmt.Printf("Listening at %d Hz (hop %d). Ctrl-C to stop.\n", *rate, *hopSize)

	errCh := make(chan error, 1)
	go func() { errCh <- tracker.Run(ctx, src) }()

	printBeats(ctx, tracker)

	err = <-errCh
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printBeats polls the beat snapshot and reports each new beat plus a
// once-a-second status line.
func printBeats(ctx context.Context, tracker *tempotracker.Tracker) {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	status := time.NewTicker(statusInterval)
	defer status.Stop()

	var lastBeat uint64
	haveBeat := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			beat, _, ok := tracker.BeatFrames()
			if !ok {
				continue
			}
			if !haveBeat || beat.Clock.BeatIndex != lastBeat {
				if haveBeat && beat.Tactus.Locked {
					marker := "."
					if beat.Clock.Downbeat || beat.Clock.BeatInBar == 0 {
						marker = "|"
					}
					fmt.Printf("%s beat %d  %.1f BPM\n", marker, beat.Clock.BeatIndex, beat.Clock.BPM)
				}
				lastBeat = beat.Clock.BeatIndex
				haveBeat = true
			}
		case <-status.C:
			beat, _, ok := tracker.BeatFrames()
			if !ok {
				continue
			}
			fmt.Printf("  [%s] %.1f BPM  conf %.2f\n",
				beat.Tactus.State, beat.Tactus.BPM, beat.Tactus.Confidence)
		}
	}
}

// micSource adapts a malgo capture device to the tracker's hop
// interface. The device callback stays allocation-free; analysis
// happens on the ReadHop caller's goroutine.
type micSource struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	analyzer *spectral.Analyzer

	rate      int
	hopSize   int
	frameSize int
	verbose   bool

	chunks chan []float64

	mu       sync.Mutex
	window   []float64
	pos      uint64
	overflow bool
	started  bool
}

func newMicSource(rate, hopSize, frameSize int, deviceName string, analyzer *spectral.Analyzer, verbose bool) (*micSource, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	s := &micSource{
		ctx:       mctx,
		analyzer:  analyzer,
		rate:      rate,
		hopSize:   hopSize,
		frameSize: frameSize,
		verbose:   verbose,
		chunks:    make(chan []float64, chunkQueueLen),
		window:    make([]float64, 0, frameSize*2),
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(rate)
	cfg.Alsa.NoMMap = 1

	if deviceName != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err == nil {
			for _, info := range infos {
				if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(deviceName)) {
					cfg.Capture.DeviceID = info.ID.Pointer()
					if verbose {
						log.Printf("Selected device: %s", info.Name())
					}
					break
				}
			}
		}
	}

	callbacks := malgo.DeviceCallbacks{Data: s.onFrames}
	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	s.device = device
	return s, nil
}

// onFrames runs on the device thread. It copies the samples and hands
// them to the analysis loop; a full queue marks an overflow and drops
// the chunk.
func (s *micSource) onFrames(_, input []byte, frameCount uint32) {
	if len(input) == 0 {
		return
	}
	in := unsafe.Slice((*float32)(unsafe.Pointer(&input[0])), int(frameCount))
	chunk := make([]float64, len(in))
	for i, v := range in {
		chunk[i] = float64(v)
	}
	select {
	case s.chunks <- chunk:
	default:
		s.mu.Lock()
		s.overflow = true
		s.mu.Unlock()
	}
}

// Start begins capture.
func (s *micSource) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

// ReadHop blocks until one hop of audio has been captured and
// analyzed. Faults are classified so the tracker can skip transient
// ones.
func (s *micSource) ReadHop(ctx context.Context) (tempotracker.Hop, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return tempotracker.Hop{}, tempotracker.NewCaptureError(tempotracker.FaultNotInitialized, nil)
	}
	if s.overflow {
		s.overflow = false
		s.mu.Unlock()
		return tempotracker.Hop{}, tempotracker.NewCaptureError(tempotracker.FaultOverflow, nil)
	}
	s.mu.Unlock()

	deadline := time.NewTimer(readTimeout)
	defer deadline.Stop()

	for len(s.window) < s.frameSize {
		select {
		case <-ctx.Done():
			return tempotracker.Hop{}, ctx.Err()
		case <-deadline.C:
			return tempotracker.Hop{}, tempotracker.NewCaptureError(tempotracker.FaultTimeout, nil)
		case chunk, ok := <-s.chunks:
			if !ok {
				return tempotracker.Hop{}, tempotracker.NewCaptureError(tempotracker.FaultRead, errors.New("capture channel closed"))
			}
			s.window = append(s.window, chunk...)
		}
	}

	bands, rms, err := s.analyzer.Analyze(s.window[:s.frameSize])
	if err != nil {
		return tempotracker.Hop{}, tempotracker.NewCaptureError(tempotracker.FaultRead, err)
	}

	hop := tempotracker.Hop{
		Bands: bands,
		RMS:   rms,
		T: tempotracker.AudioTime{
			SampleIndex: s.pos,
			WallClockMs: uint32(s.pos * msPerSec / uint64(s.rate)),
		},
	}
	s.pos += uint64(s.hopSize)
	s.window = s.window[s.hopSize:]
	return hop, nil
}

// Close stops the device and releases the audio context.
func (s *micSource) Close() {
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
}
