// Package calib converts raw ADC readings to millivolts.
//
// A calibration scheme is chosen once at startup with Probe. Schemes that
// cannot be built report ErrUnavailable, after which the caller either runs
// without calibration or substitutes the linear transfer, as a deployment
// policy.
package calib

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chewxy/math32"
)

// ErrUnavailable is returned when calibration is not possible.
var ErrUnavailable = errors.New("calibration unavailable")

// Calibrator converts a raw reading to millivolts.
type Calibrator interface {
	Millivolts(raw int) (int, error)
}

// Scheme names a calibration strategy.
type Scheme string

const (
	SchemeNone   Scheme = "none"
	SchemeLinear Scheme = "linear"
	SchemePoints Scheme = "points"
)

// ParseScheme parses a scheme name. The empty string selects SchemeNone.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case SchemeNone, "":
		return SchemeNone, nil
	case SchemeLinear:
		return SchemeLinear, nil
	case SchemePoints:
		return SchemePoints, nil
	default:
		return "", fmt.Errorf("unknown calibration scheme %q", s)
	}
}

// Point is a single (raw, millivolts) calibration point.
type Point struct {
	Raw        int
	Millivolts int
}

// Params carries what the schemes need.
type Params struct {
	Scheme   Scheme
	Fallback Scheme
	RawMax   int
	VRefMV   int
	Points   []Point
}

// Probe builds the configured scheme. If it cannot be built, the fallback
// scheme is tried; the returned error then wraps ErrUnavailable so the caller
// can report degraded calibration while still using the returned Calibrator.
func Probe(p Params) (Calibrator, error) {
	c, err := build(p.Scheme, p)
	if err == nil {
		return c, nil
	}

	fb := p.Fallback
	if fb == "" || fb == p.Scheme {
		fb = SchemeNone
	}
	c, fbErr := build(fb, p)
	if fbErr != nil {
		c = None{}
	}

	return c, fmt.Errorf("%s scheme: %w", p.Scheme, err)
}

func build(s Scheme, p Params) (Calibrator, error) {
	switch s {
	case SchemeLinear:
		return NewLinear(p.RawMax, p.VRefMV)
	case SchemePoints:
		return NewPoints(p.Points)
	case SchemeNone, "":
		return None{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown scheme %q", ErrUnavailable, s)
	}
}

// None is the scheme used when no calibration exists.
type None struct{}

// Millivolts always fails with ErrUnavailable.
func (None) Millivolts(int) (int, error) {
	return 0, ErrUnavailable
}

// Linear is the ideal transfer raw/rawMax*vref, rounded half up. It is
// computed in single precision, the way the firmware does it.
type Linear struct {
	rawMax float32
	vref   float32
}

// NewLinear creates a linear calibration.
func NewLinear(rawMax, vrefMV int) (*Linear, error) {
	if rawMax <= 0 || vrefMV <= 0 {
		return nil, fmt.Errorf("%w: raw max %d, vref %d mV", ErrUnavailable, rawMax, vrefMV)
	}
	return &Linear{rawMax: float32(rawMax), vref: float32(vrefMV)}, nil
}

// Millivolts converts raw to millivolts. Raw values outside [0, rawMax] are
// clamped first.
func (l *Linear) Millivolts(raw int) (int, error) {
	r := math32.Max(0, math32.Min(float32(raw), l.rawMax))
	return int(math32.Floor(r/l.rawMax*l.vref + 0.5)), nil
}

// Points interpolates linearly between calibration points measured on the
// device. Readings outside the measured span extrapolate from the nearest
// segment and are floored at 0 mV.
type Points struct {
	pts []Point
}

// NewPoints creates a piecewise-linear calibration. It needs at least two
// points with distinct raw values.
func NewPoints(points []Point) (*Points, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points, got %d", ErrUnavailable, len(points))
	}

	pts := make([]Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Raw < pts[j].Raw })

	for i := 1; i < len(pts); i++ {
		if pts[i].Raw == pts[i-1].Raw {
			return nil, fmt.Errorf("%w: duplicate raw value %d", ErrUnavailable, pts[i].Raw)
		}
	}

	return &Points{pts: pts}, nil
}

// Millivolts converts raw to millivolts.
func (c *Points) Millivolts(raw int) (int, error) {
	i := sort.Search(len(c.pts), func(i int) bool { return c.pts[i].Raw >= raw })
	switch {
	case i == 0:
		i = 1
	case i == len(c.pts):
		i = len(c.pts) - 1
	}

	a, b := c.pts[i-1], c.pts[i]
	mv := float64(a.Millivolts) + float64(raw-a.Raw)*float64(b.Millivolts-a.Millivolts)/float64(b.Raw-a.Raw)
	if mv < 0 {
		mv = 0
	}
	return int(mv + 0.5), nil
}
