package adc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/adcbench/pkg/calib"
)

// scriptedSource returns readings from a fixed list, then fails.
type scriptedSource struct {
	readings []int
	err      error
}

func (s *scriptedSource) Open() error  { return nil }
func (s *scriptedSource) Close() error { return nil }

func (s *scriptedSource) ReadRaw(context.Context) (int, error) {
	if len(s.readings) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, ErrHardwareFault
	}
	r := s.readings[0]
	s.readings = s.readings[1:]
	return r, nil
}

type failingCalibrator struct{ err error }

func (f failingCalibrator) Millivolts(int) (int, error) { return 0, f.err }

func TestSampler_Acquire(t *testing.T) {
	lin, err := calib.NewLinear(4095, 3300)
	require.NoError(t, err)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSampler(&scriptedSource{readings: []int{2048}}, lin, WithClock(func() time.Time { return ts }))

	got, err := s.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Sample{Timestamp: ts, Raw: 2048, Millivolts: 1650}, got)
	assert.True(t, got.Calibrated())
}

func TestSampler_Uncalibrated(t *testing.T) {
	tests := []struct {
		name string
		cal  calib.Calibrator
	}{
		{name: "nil calibrator", cal: nil},
		{name: "none scheme", cal: calib.None{}},
		{name: "calibration error", cal: failingCalibrator{err: errors.New("out of curve")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSampler(&scriptedSource{readings: []int{100}}, tt.cal)
			got, err := s.Acquire(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 100, got.Raw)
			assert.Equal(t, Unavailable, got.Millivolts)
			assert.False(t, got.Calibrated())
		})
	}
}

func TestSampler_Oversample(t *testing.T) {
	s := NewSampler(&scriptedSource{readings: []int{100, 101, 101, 101}}, nil, WithOversample(4))

	got, err := s.Acquire(context.Background())
	require.NoError(t, err)
	// 403/4 = 100.75 rounds to 101
	assert.Equal(t, 101, got.Raw)
}

func TestSampler_ClampsRaw(t *testing.T) {
	s := NewSampler(&scriptedSource{readings: []int{1500}}, nil, WithSamplerRawMax(1023))

	got, err := s.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1023, got.Raw)
}

func TestSampler_HardwareFault(t *testing.T) {
	s := NewSampler(&scriptedSource{readings: []int{1}}, nil, WithOversample(2))

	_, err := s.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrHardwareFault)
}

func TestSampler_WithMock(t *testing.T) {
	m := NewMock(MockConfig{Steps: 4})
	require.NoError(t, m.Open())
	defer m.Close()

	lin, err := calib.NewLinear(4095, 3300)
	require.NoError(t, err)
	s := NewSampler(m, lin)

	want := []Sample{
		{Raw: 0, Millivolts: 0},
		{Raw: 2047, Millivolts: 1650},
		{Raw: 4095, Millivolts: 3300},
	}
	for _, w := range want {
		got, err := s.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, w.Raw, got.Raw)
		assert.Equal(t, w.Millivolts, got.Millivolts)
	}
}
