package adc

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultRawMax is the full-scale reading of a 12-bit converter.
	DefaultRawMax = 4095
	// Unavailable marks a sample without a calibrated voltage.
	Unavailable = -1
)

var (
	// ErrHardwareFault is returned when acquisition fails. It is not retried.
	ErrHardwareFault = errors.New("adc hardware fault")
	ErrNotOpen       = errors.New("source not open")
	ErrAlreadyOpen   = errors.New("source already open")
)

// Source delivers raw readings, one per ReadRaw call.
type Source interface {
	Open() error
	Close() error
	// ReadRaw blocks until a reading is available. Errors wrap ErrHardwareFault
	// or the context error.
	ReadRaw(ctx context.Context) (int, error)
}

// Ensure Serial implements Source.
var _ Source = (*Serial)(nil)

// Ensure Mock implements Source.
var _ Source = (*Mock)(nil)

// Sample is one acquisition: a raw reading and, when calibration succeeded,
// the calibrated voltage.
type Sample struct {
	Timestamp  time.Time
	Raw        int
	Millivolts int // Unavailable when calibration failed
}

// Calibrated reports whether Millivolts holds a real value.
func (s Sample) Calibrated() bool {
	return s.Millivolts >= 0
}
