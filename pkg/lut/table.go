package lut

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidTable = errors.New("invalid lookup table")

// IndexMode selects which sample field indexes the table.
type IndexMode int

const (
	// IndexRaw indexes the table by the raw ADC reading.
	IndexRaw IndexMode = iota
	// IndexMillivolts indexes the table by the calibrated millivolt value.
	IndexMillivolts
)

// String returns the configuration name of the mode.
func (m IndexMode) String() string {
	switch m {
	case IndexRaw:
		return "raw"
	case IndexMillivolts:
		return "mv"
	default:
		return fmt.Sprintf("IndexMode(%d)", int(m))
	}
}

// ParseIndexMode parses "raw" or "mv" (also "millivolts").
func ParseIndexMode(s string) (IndexMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw":
		return IndexRaw, nil
	case "mv", "millivolts":
		return IndexMillivolts, nil
	default:
		return 0, fmt.Errorf("%w: unknown index mode %q", ErrInvalidTable, s)
	}
}

// Scale is the fixed-point scale of table entries.
type Scale int

const (
	// ScaleWhole means entries are whole percent.
	ScaleWhole Scale = 1
	// ScaleTenths means entries are tenths of a percent.
	ScaleTenths Scale = 10
)

// Valid reports whether s is a supported scale.
func (s Scale) Valid() bool {
	return s == ScaleWhole || s == ScaleTenths
}

// Table is a read-only lookup table mapping an index to a fixed-point percent.
type Table struct {
	values []int
	scale  Scale
	index  IndexMode
}

// New creates a Table. The values slice is copied.
func New(values []int, scale Scale, index IndexMode) (*Table, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no values", ErrInvalidTable)
	}
	if !scale.Valid() {
		return nil, fmt.Errorf("%w: scale must be 1 or 10, got %d", ErrInvalidTable, scale)
	}
	if index != IndexRaw && index != IndexMillivolts {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTable, index)
	}

	v := make([]int, len(values))
	copy(v, values)

	return &Table{values: v, scale: scale, index: index}, nil
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.values) }

// Scale returns the fixed-point scale.
func (t *Table) Scale() Scale { return t.scale }

// IndexMode returns the index mode.
func (t *Table) IndexMode() IndexMode { return t.index }

// Value returns the entry at the clamped index.
func (t *Table) Value(idx int) int {
	return t.values[t.clampIndex(idx)]
}

// PercentFromSample looks up the percentage for a sample. The index is taken
// from mv or raw depending on the table's index mode and is clamped to the
// table bounds, so the sentinel mv (-1) maps to the first entry.
func (t *Table) PercentFromSample(raw, mv int) float64 {
	idx := raw
	if t.index == IndexMillivolts {
		idx = mv
	}

	v := t.values[t.clampIndex(idx)]

	var pct float64
	if t.scale == ScaleWhole {
		pct = float64(v)
	} else {
		pct = float64(v) / float64(t.scale)
	}

	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

func (t *Table) clampIndex(idx int) int {
	if idx < 0 {
		return 0
	}
	if idx >= len(t.values) {
		return len(t.values) - 1
	}
	return idx
}

// Percenter converts millivolts to a percentage. *poly.Polynomial satisfies it.
type Percenter interface {
	PercentFromMillivolts(mv int) float64
}

// FromPolynomial precomputes a table from an analytic conversion.
//
// Millivolt-indexed tables get one entry per millivolt in [0, vrefMV].
// Raw-indexed tables get rawMax+1 entries; each raw value is first mapped to
// millivolts through the ideal linear transfer raw/rawMax*vrefMV.
func FromPolynomial(p Percenter, index IndexMode, scale Scale, vrefMV, rawMax int) (*Table, error) {
	if vrefMV <= 0 || rawMax <= 0 {
		return nil, fmt.Errorf("%w: vref and raw max must be positive", ErrInvalidTable)
	}

	var values []int
	switch index {
	case IndexMillivolts:
		values = make([]int, vrefMV+1)
		for mv := range values {
			values[mv] = toFixed(p.PercentFromMillivolts(mv), scale)
		}
	case IndexRaw:
		values = make([]int, rawMax+1)
		for raw := range values {
			mv := int(float64(raw)/float64(rawMax)*float64(vrefMV) + 0.5)
			values[raw] = toFixed(p.PercentFromMillivolts(mv), scale)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTable, index)
	}

	return New(values, scale, index)
}

func toFixed(pct float64, scale Scale) int {
	return int(math.Round(pct * float64(scale)))
}
