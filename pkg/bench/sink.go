package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Sink receives every cycle result.
type Sink interface {
	Emit(r Result) error
}

// ConsoleSink prints one human-readable line per cycle.
type ConsoleSink struct {
	w      io.Writer
	faster *color.Color
	mu     sync.Mutex
}

// NewConsoleSink creates a console sink. With colored set the faster
// estimator's timing is highlighted.
func NewConsoleSink(w io.Writer, colored bool) *ConsoleSink {
	c := color.New(color.Bold, color.FgGreen)
	if colored {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return &ConsoleSink{w: w, faster: c}
}

// Emit writes the result line.
func (s *ConsoleSink) Emit(r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintln(s.w, s.format(r))
	return err
}

func (s *ConsoleSink) format(r Result) string {
	mv := "n/a"
	if r.Calibrated() {
		mv = fmt.Sprintf("%d", r.Millivolts)
	}

	polyUS := fmt.Sprintf("%d us", r.PolyElapsed.Microseconds())
	lutUS := fmt.Sprintf("%d us", r.LUTElapsed.Microseconds())
	switch {
	case r.PolyElapsed < r.LUTElapsed:
		polyUS = s.faster.Sprint(polyUS)
	case r.LUTElapsed < r.PolyElapsed:
		lutUS = s.faster.Sprint(lutUS)
	}

	return fmt.Sprintf("raw=%4d mv=%4s | poly=%.1f%% (%s) | LUT=%.1f%% (%s)",
		r.Raw, mv, r.PolyPercent, polyUS, r.LUTPercent, lutUS)
}

// JSONSink writes one JSON object per line.
type JSONSink struct {
	enc *json.Encoder
	mu  sync.Mutex
}

// NewJSONSink creates a JSON lines sink.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

// Emit encodes the result followed by a newline.
func (s *JSONSink) Emit(r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enc.Encode(r)
}
