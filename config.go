package tempotracker

import "fmt"

// StageSelection enables or disables the later pipeline stages at
// construction time. The novelty stage always runs; a disabled stage
// simply stops the chain there, so a caller can run novelty-only
// analysis or skip the beat clock.
type StageSelection struct {
	EnableResonator bool
	EnableTactus    bool
	EnableBeatClock bool
}

// AllStages enables the full pipeline.
func AllStages() StageSelection {
	return StageSelection{EnableResonator: true, EnableTactus: true, EnableBeatClock: true}
}

// Config holds everything needed to build a Tracker.
type Config struct {
	// SampleRate is the audio sample rate in Hz that AudioTime
	// sample indices are measured against.
	SampleRate int

	// HopSize is the number of samples per hop. One hop produces one
	// band-energy frame and one call to ProcessHop.
	HopSize int

	Pipeline PipelineTuning
	Contract ContractTuning
	Stages   StageSelection
}

// DefaultConfig returns a full-pipeline configuration for the given
// sample rate and hop size, with all tuning at defaults.
func DefaultConfig(sampleRate, hopSize int) Config {
	return Config{
		SampleRate: sampleRate,
		HopSize:    hopSize,
		Pipeline:   DefaultPipelineTuning(),
		Contract:   DefaultContractTuning(),
		Stages:     AllStages(),
	}
}

// Validate checks the configuration. All failures wrap
// ErrInvalidConfig.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.HopSize <= 0 {
		return fmt.Errorf("%w: hop size must be positive, got %d", ErrInvalidConfig, c.HopSize)
	}
	if c.HopSize > c.SampleRate {
		return fmt.Errorf("%w: hop size %d exceeds sample rate %d", ErrInvalidConfig, c.HopSize, c.SampleRate)
	}
	if c.Stages.EnableTactus && !c.Stages.EnableResonator {
		return fmt.Errorf("%w: tactus stage requires the resonator stage", ErrInvalidConfig)
	}
	if c.Stages.EnableBeatClock && !c.Stages.EnableTactus {
		return fmt.Errorf("%w: beat clock stage requires the tactus stage", ErrInvalidConfig)
	}
	return nil
}
