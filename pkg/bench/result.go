package bench

import "time"

// Estimator names used in logs, metrics and summaries.
const (
	EstimatorPoly = "poly"
	EstimatorLUT  = "lut"
	Tie           = "tie"
)

// Result is the outcome of one cycle.
type Result struct {
	Cycle       int           `json:"cycle"`
	Timestamp   time.Time     `json:"timestamp"`
	Raw         int           `json:"raw"`
	Millivolts  int           `json:"mv"`
	PolyPercent float64       `json:"poly_percent"`
	PolyElapsed time.Duration `json:"poly_elapsed_ns"`
	LUTPercent  float64       `json:"lut_percent"`
	LUTElapsed  time.Duration `json:"lut_elapsed_ns"`
}

// Calibrated reports whether the cycle had a calibrated voltage.
func (r Result) Calibrated() bool {
	return r.Millivolts >= 0
}

// Stats aggregates the elapsed times of one estimator.
type Stats struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min_ns"`
	Max   time.Duration `json:"max_ns"`
	Mean  time.Duration `json:"mean_ns"`

	total time.Duration
}

func (s *Stats) add(d time.Duration) {
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Count++
	s.total += d
	s.Mean = s.total / time.Duration(s.Count)
}

// Summary aggregates all cycles of a run.
type Summary struct {
	RunID        string `json:"run_id"`
	Cycles       int    `json:"cycles"`
	Uncalibrated int    `json:"uncalibrated"`
	Poly         Stats  `json:"poly"`
	LUT          Stats  `json:"lut"`
}

func (s *Summary) add(r Result) {
	s.Cycles++
	if !r.Calibrated() {
		s.Uncalibrated++
	}
	s.Poly.add(r.PolyElapsed)
	s.LUT.add(r.LUTElapsed)
}

// Winner names the estimator with the lower mean elapsed time, or Tie.
func (s Summary) Winner() string {
	switch {
	case s.Poly.Mean < s.LUT.Mean:
		return EstimatorPoly
	case s.LUT.Mean < s.Poly.Mean:
		return EstimatorLUT
	default:
		return Tie
	}
}
