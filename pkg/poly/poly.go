package poly

import (
	"errors"
	"fmt"
	"math"
)

const (
	// Degree is the degree of the transfer polynomial.
	Degree = 5
	// DefaultIterations is the fixed bisection budget. 100/2^40 is far below
	// any useful percent resolution and keeps evaluation time constant.
	DefaultIterations = 40

	// MonotonicSteps is the grid size used by VerifyMonotonic.
	MonotonicSteps = 10000
	// MonotonicTolerance is the largest drop of f, in volts, that
	// VerifyMonotonic accepts.
	MonotonicTolerance = 0.02

	// Percent range searched by the bisection.
	minPercent = 0.0
	maxPercent = 100.0
)

var (
	ErrCoefficients = errors.New("invalid coefficients")
	ErrNotMonotonic = errors.New("curve is not monotonic")
)

// DefaultCoefficients is the reference sensor curve V = f(%), lowest degree first.
var DefaultCoefficients = [Degree + 1]float64{
	1.54238e-01,
	6.39597e-02,
	-2.77445e-03,
	9.13377e-05,
	-1.13065e-06,
	4.60897e-09,
}

// Polynomial maps a percentage to volts and inverts that mapping by bisection.
// It is immutable after construction and safe for concurrent use.
type Polynomial struct {
	c          [Degree + 1]float64
	iterations int
}

// Option configures a Polynomial.
type Option func(*Polynomial)

// WithIterations overrides the bisection budget. Values below 1 are ignored.
func WithIterations(n int) Option {
	return func(p *Polynomial) {
		if n > 0 {
			p.iterations = n
		}
	}
}

// New creates a Polynomial from coefficients ordered c0..c5.
func New(coeffs []float64, opts ...Option) (*Polynomial, error) {
	if len(coeffs) != Degree+1 {
		return nil, fmt.Errorf("%w: expected %d coefficients, got %d", ErrCoefficients, Degree+1, len(coeffs))
	}

	p := &Polynomial{iterations: DefaultIterations}
	for i, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: c%d is not finite", ErrCoefficients, i)
		}
		p.c[i] = c
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Default returns the reference polynomial with the default iteration budget.
func Default() *Polynomial {
	return &Polynomial{c: DefaultCoefficients, iterations: DefaultIterations}
}

// Coefficients returns a copy of the coefficients, lowest degree first.
func (p *Polynomial) Coefficients() []float64 {
	out := make([]float64, len(p.c))
	copy(out, p.c[:])
	return out
}

// Iterations returns the bisection budget.
func (p *Polynomial) Iterations() int {
	return p.iterations
}

// Voltage evaluates f(percent) in volts using Horner's scheme.
func (p *Polynomial) Voltage(percent float64) float64 {
	v := p.c[Degree]
	for i := Degree - 1; i >= 0; i-- {
		v = v*percent + p.c[i]
	}
	return v
}

// PercentFromMillivolts inverts f for the given voltage in millivolts.
// Negative input is the "calibration unavailable" sentinel and yields 0.
// The result is always within [0, 100].
func (p *Polynomial) PercentFromMillivolts(mv int) float64 {
	if mv < 0 {
		return 0
	}

	target := float64(mv) / 1000.0
	lo, hi := minPercent, maxPercent
	for i := 0; i < p.iterations; i++ {
		mid := 0.5 * (lo + hi)
		if p.Voltage(mid) < target {
			lo = mid
		} else {
			hi = mid
		}
	}

	return clamp(0.5*(lo+hi), minPercent, maxPercent)
}

// VerifyMonotonic checks that f rises over [0, 100]: f(0) <= f(100) and, on
// a grid of MonotonicSteps points, f never falls more than MonotonicTolerance
// below its running maximum. Bisection returns a meaningful root only when
// this holds, so it must pass for any substituted coefficient set.
//
// The reference curve dips about 16 mV between 82% and 91%, inside the
// tolerance.
func (p *Polynomial) VerifyMonotonic() error {
	lo, hi := p.Voltage(minPercent), p.Voltage(maxPercent)
	if lo > hi {
		return fmt.Errorf("%w: f(0)=%g > f(100)=%g", ErrNotMonotonic, lo, hi)
	}

	peak, peakAt := lo, minPercent
	for i := 1; i <= MonotonicSteps; i++ {
		x := maxPercent * float64(i) / MonotonicSteps
		v := p.Voltage(x)
		if v > peak {
			peak, peakAt = v, x
			continue
		}
		if peak-v > MonotonicTolerance {
			return fmt.Errorf("%w: f(%.2f)=%g falls %.3g V below f(%.2f)=%g",
				ErrNotMonotonic, x, v, peak-v, peakAt, peak)
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
