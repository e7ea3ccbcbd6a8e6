package poly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoltage(t *testing.T) {
	p := Default()

	assert.InDelta(t, 0.154238, p.Voltage(0), 1e-9)
	assert.InDelta(t, 3.168108, p.Voltage(100), 1e-6)
	assert.InDelta(t, 2.207051, p.Voltage(50), 1e-6)
}

func TestPercentFromMillivolts_Sentinel(t *testing.T) {
	p := Default()

	assert.Equal(t, 0.0, p.PercentFromMillivolts(-1))
	assert.Equal(t, 0.0, p.PercentFromMillivolts(-1000))
}

func TestPercentFromMillivolts_RangeAndOrder(t *testing.T) {
	p := Default()

	prev := -1.0
	for mv := 0; mv <= 3300; mv++ {
		got := p.PercentFromMillivolts(mv)
		require.GreaterOrEqual(t, got, 0.0, "mv=%d", mv)
		require.LessOrEqual(t, got, 100.0, "mv=%d", mv)
		require.GreaterOrEqual(t, got, prev, "not monotonic at mv=%d", mv)
		prev = got
	}
}

func TestPercentFromMillivolts_Convergence(t *testing.T) {
	p := Default()

	tests := []struct {
		name string
		mv   int
		want float64 // approximate percent
	}{
		{name: "bottom of curve", mv: 154, want: 0},
		{name: "1 V", mv: 1000, want: 23.54},
		{name: "mid scale", mv: 1650, want: 39.06},
		{name: "3 V", mv: 3000, want: 71.92},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct := p.PercentFromMillivolts(tt.mv)
			assert.InDelta(t, tt.want, pct, 0.01)
			// 154 mV sits just below f(0), so the root clamps to 0 and the
			// residual is f(0) - 0.154.
			tolerance := 1e-5
			if tt.mv == 154 {
				tolerance = 3e-4
			}
			assert.InDelta(t, float64(tt.mv)/1000.0, p.Voltage(pct), tolerance)
		})
	}
}

func TestPercentFromMillivolts_OutOfRange(t *testing.T) {
	p := Default()

	// Above f(100) the bisection keeps raising lo.
	assert.InDelta(t, 100.0, p.PercentFromMillivolts(5000), 1e-9)
	assert.LessOrEqual(t, p.PercentFromMillivolts(5000), 100.0)
	// Below f(0) it keeps lowering hi.
	assert.InDelta(t, 0.0, p.PercentFromMillivolts(0), 1e-9)
	assert.GreaterOrEqual(t, p.PercentFromMillivolts(0), 0.0)
}

func TestNew(t *testing.T) {
	p, err := New(DefaultCoefficients[:])
	require.NoError(t, err)
	assert.Equal(t, DefaultIterations, p.Iterations())
	assert.Equal(t, DefaultCoefficients[:], p.Coefficients())

	p, err = New(DefaultCoefficients[:], WithIterations(60))
	require.NoError(t, err)
	assert.Equal(t, 60, p.Iterations())

	p, err = New(DefaultCoefficients[:], WithIterations(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultIterations, p.Iterations())
}

func TestNew_Invalid(t *testing.T) {
	_, err := New([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrCoefficients)

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrCoefficients)
}

func TestCoefficients_Copy(t *testing.T) {
	p := Default()
	c := p.Coefficients()
	c[0] = 42

	assert.Equal(t, DefaultCoefficients[0], p.Coefficients()[0])
}

func TestVerifyMonotonic(t *testing.T) {
	// The reference curve's local dip near 90% is within tolerance.
	require.NoError(t, Default().VerifyMonotonic())

	// Linear ramp 0..3.3 V.
	linear, err := New([]float64{0, 0.033, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.NoError(t, linear.VerifyMonotonic())
	assert.InDelta(t, 50.0, linear.PercentFromMillivolts(1650), 1e-6)

	// Falling curve cannot be bisected with the undershoot rule.
	falling, err := New([]float64{3.3, -0.033, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.ErrorIs(t, falling.VerifyMonotonic(), ErrNotMonotonic)
}

func TestVerifyMonotonic_RejectsValley(t *testing.T) {
	// f(0)=0.5, f(25)=-0.125, f(100)=5.5: rises overall but has a deep valley.
	valley, err := New([]float64{0.5, -0.05, 0.001, 0, 0, 0})
	require.NoError(t, err)
	require.Less(t, valley.Voltage(0), valley.Voltage(100))

	err = valley.VerifyMonotonic()
	assert.ErrorIs(t, err, ErrNotMonotonic)
}

func TestVerifyMonotonic_Tolerance(t *testing.T) {
	// A shallow dip just under the tolerance passes, a deeper one does not.
	tests := []struct {
		name  string
		depth float64
		ok    bool
	}{
		{name: "within tolerance", depth: MonotonicTolerance / 2, ok: true},
		{name: "beyond tolerance", depth: MonotonicTolerance * 2, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(dipCubic(tt.depth))
			require.NoError(t, err)
			err = p.VerifyMonotonic()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrNotMonotonic)
			}
		})
	}
}

func TestIterationsAffectResolution(t *testing.T) {
	coarse, err := New(DefaultCoefficients[:], WithIterations(4))
	require.NoError(t, err)

	// 4 halvings leave a 6.25% bracket; the result is its midpoint.
	got := coarse.PercentFromMillivolts(1650)
	assert.InDelta(t, 39.06, got, 3.2)
	assert.NotEqual(t, Default().PercentFromMillivolts(1650), got)
}

// dipCubic returns a cubic with f'(x) = k(x-40)(x-60): rising, a local
// maximum at 40%, a minimum at 60% that lies depth volts lower, then rising.
func dipCubic(depth float64) []float64 {
	k := depth * 3 / 4000
	return []float64{0, 2400 * k, -50 * k, k / 3, 0, 0}
}

func BenchmarkPercentFromMillivolts(b *testing.B) {
	p := Default()
	for i := 0; i < b.N; i++ {
		_ = p.PercentFromMillivolts(i % 3301)
	}
}
