package tempotracker

import (
	"errors"
	"fmt"
)

// Common errors returned by the tracker.
var (
	// ErrInvalidConfig indicates invalid configuration parameters.
	ErrInvalidConfig = errors.New("invalid tracker configuration")

	// ErrPaused indicates the tracker is paused and not accepting hops.
	ErrPaused = errors.New("tracker is paused")

	// ErrNotInitialized indicates the capture collaborator has not been
	// initialized; the current pipeline iteration cannot proceed.
	ErrNotInitialized = errors.New("capture not initialized")
)

// CaptureFault classifies errors raised at the capture boundary.
type CaptureFault int

const (
	// FaultNotInitialized is fatal to the current iteration and
	// requires external re-initialization.
	FaultNotInitialized CaptureFault = iota

	// FaultTimeout means the bounded capture read elapsed.
	FaultTimeout

	// FaultRead means the device read failed.
	FaultRead

	// FaultOverflow means the capture buffer overflowed and samples
	// were dropped.
	FaultOverflow
)

// String returns the fault class name.
func (f CaptureFault) String() string {
	switch f {
	case FaultNotInitialized:
		return "not_initialized"
	case FaultTimeout:
		return "timeout"
	case FaultRead:
		return "read_error"
	case FaultOverflow:
		return "buffer_overflow"
	default:
		return "unknown"
	}
}

// CaptureError wraps a capture-boundary failure with its class.
// Transient faults skip the current hop; prior published outputs are
// retained unchanged.
type CaptureError struct {
	Fault CaptureFault
	Err   error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture fault: %s", e.Fault)
	}
	return fmt.Sprintf("capture fault: %s: %v", e.Fault, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CaptureError) Unwrap() error {
	if e.Fault == FaultNotInitialized {
		return ErrNotInitialized
	}
	return e.Err
}

// Transient reports whether the fault allows the pipeline to continue
// with the next hop.
func (e *CaptureError) Transient() bool {
	return e.Fault != FaultNotInitialized
}

// NewCaptureError builds a classified capture error.
func NewCaptureError(fault CaptureFault, cause error) *CaptureError {
	return &CaptureError{Fault: fault, Err: cause}
}
