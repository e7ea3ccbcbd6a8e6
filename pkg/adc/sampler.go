package adc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/adcbench/pkg/calib"
)

// Sampler acquires one Sample per call: a raw reading, optionally averaged
// over several conversions, and its calibrated voltage.
type Sampler struct {
	src        Source
	cal        calib.Calibrator
	rawMax     int
	oversample int
	log        logrus.FieldLogger
	now        func() time.Time
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithOversample averages n consecutive readings per sample.
func WithOversample(n int) SamplerOption {
	return func(s *Sampler) {
		if n > 0 {
			s.oversample = n
		}
	}
}

// WithSamplerRawMax sets the full-scale reading used for clamping.
func WithSamplerRawMax(max int) SamplerOption {
	return func(s *Sampler) {
		if max > 0 {
			s.rawMax = max
		}
	}
}

// WithSamplerLogger sets the logger.
func WithSamplerLogger(l logrus.FieldLogger) SamplerOption {
	return func(s *Sampler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSampler creates a Sampler. A nil calibrator means calibration is
// unavailable and every sample carries the Unavailable sentinel.
func NewSampler(src Source, cal calib.Calibrator, opts ...SamplerOption) *Sampler {
	if cal == nil {
		cal = calib.None{}
	}

	s := &Sampler{
		src:        src,
		cal:        cal,
		rawMax:     DefaultRawMax,
		oversample: 1,
		log:        logrus.StandardLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire reads and calibrates one sample. Acquisition errors are returned
// as is and must be treated as fatal; calibration errors are not errors here,
// they only turn Millivolts into Unavailable.
func (s *Sampler) Acquire(ctx context.Context) (Sample, error) {
	raw, err := s.readRaw(ctx)
	if err != nil {
		return Sample{}, err
	}

	mv, err := s.cal.Millivolts(raw)
	if err != nil || mv < 0 {
		if err != nil && !errors.Is(err, calib.ErrUnavailable) {
			s.log.WithError(err).WithField("raw", raw).Debug("calibration failed")
		}
		mv = Unavailable
	}

	return Sample{
		Timestamp:  s.now(),
		Raw:        raw,
		Millivolts: mv,
	}, nil
}

// readRaw averages the configured number of readings, rounding to nearest.
func (s *Sampler) readRaw(ctx context.Context) (int, error) {
	var sum int
	for i := 0; i < s.oversample; i++ {
		raw, err := s.src.ReadRaw(ctx)
		if err != nil {
			return 0, fmt.Errorf("read %d/%d: %w", i+1, s.oversample, err)
		}
		sum += raw
	}

	avg := (sum + s.oversample/2) / s.oversample
	return min(max(avg, 0), s.rawMax), nil
}
