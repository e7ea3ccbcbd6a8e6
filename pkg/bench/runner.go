// Package bench drives the sampling loop and compares the two percentage
// estimators on every cycle.
package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/itohio/adcbench/pkg/adc"
)

// DefaultInterval is the pause between cycles.
const DefaultInterval = 200 * time.Millisecond

// Acquirer produces one sample per cycle. *adc.Sampler satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context) (adc.Sample, error)
}

// PolyEstimator converts millivolts to percent. *poly.Polynomial satisfies it.
type PolyEstimator interface {
	PercentFromMillivolts(mv int) float64
}

// TableEstimator looks a sample up in a table. *lut.Table satisfies it.
type TableEstimator interface {
	PercentFromSample(raw, mv int) float64
}

// Recorder receives per-cycle measurements. *metrics.Manager satisfies it.
type Recorder interface {
	RecordSample(raw, mv int)
	RecordEstimate(estimator string, percent float64, elapsed time.Duration)
}

// Runner owns the sampling loop.
type Runner struct {
	id        string
	sampler   Acquirer
	poly      PolyEstimator
	table     TableEstimator
	sinks     []Sink
	recorder  Recorder
	log       logrus.FieldLogger
	clock     Clock
	interval  time.Duration
	maxCycles int
	parallel  bool

	mu      sync.RWMutex
	latest  *Result
	summary Summary
}

// Option configures a Runner.
type Option func(*Runner)

// WithSinks adds result sinks.
func WithSinks(sinks ...Sink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithInterval sets the pause between cycles. Zero runs back to back.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.interval = d
		}
	}
}

// WithMaxCycles stops the loop after n cycles. Zero runs until cancelled.
func WithMaxCycles(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.maxCycles = n
		}
	}
}

// WithParallel evaluates both estimators concurrently.
func WithParallel(enabled bool) Option {
	return func(r *Runner) {
		r.parallel = enabled
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.id = id
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(sampler Acquirer, p PolyEstimator, t TableEstimator, opts ...Option) *Runner {
	r := &Runner{
		id:       uuid.NewString(),
		sampler:  sampler,
		poly:     p,
		table:    t,
		log:      logrus.StandardLogger(),
		clock:    RealClock(),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.summary.RunID = r.id
	return r
}

// ID returns the run id.
func (r *Runner) ID() string {
	return r.id
}

// Run loops until ctx is cancelled, MaxCycles is reached or acquisition
// fails. Cancellation is not an error; an acquisition failure is returned
// and ends the run.
func (r *Runner) Run(ctx context.Context) error {
	log := r.log.WithField("run_id", r.id)
	log.WithFields(logrus.Fields{
		"interval":   r.interval,
		"max_cycles": r.maxCycles,
		"parallel":   r.parallel,
	}).Info("benchmark started")

	for cycle := 1; ; cycle++ {
		if ctx.Err() != nil {
			log.WithField("cycles", cycle-1).Info("benchmark stopped")
			return nil
		}

		s, err := r.sampler.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				log.WithField("cycles", cycle-1).Info("benchmark stopped")
				return nil
			}
			log.WithError(err).WithField("cycle", cycle).Error("acquisition failed")
			return fmt.Errorf("cycle %d: %w", cycle, err)
		}

		res := r.evaluate(cycle, s)
		r.publish(log, res)

		if r.maxCycles > 0 && cycle >= r.maxCycles {
			log.WithField("cycles", cycle).Info("benchmark finished")
			return nil
		}

		select {
		case <-ctx.Done():
			log.WithField("cycles", cycle).Info("benchmark stopped")
			return nil
		case <-r.clock.After(r.interval):
		}
	}
}

// evaluate runs both estimators on s, each bracketed by its own measurement.
func (r *Runner) evaluate(cycle int, s adc.Sample) Result {
	res := Result{
		Cycle:      cycle,
		Timestamp:  s.Timestamp,
		Raw:        s.Raw,
		Millivolts: s.Millivolts,
	}

	polyFn := func() float64 { return r.poly.PercentFromMillivolts(s.Millivolts) }
	lutFn := func() float64 { return r.table.PercentFromSample(s.Raw, s.Millivolts) }

	if !r.parallel {
		res.PolyPercent, res.PolyElapsed = Time(r.clock, polyFn)
		res.LUTPercent, res.LUTElapsed = Time(r.clock, lutFn)
		return res
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.PolyPercent, res.PolyElapsed = Time(r.clock, polyFn)
	}()
	go func() {
		defer wg.Done()
		res.LUTPercent, res.LUTElapsed = Time(r.clock, lutFn)
	}()
	wg.Wait()

	return res
}

func (r *Runner) publish(log logrus.FieldLogger, res Result) {
	r.mu.Lock()
	r.latest = &res
	r.summary.add(res)
	r.mu.Unlock()

	if r.recorder != nil {
		r.recorder.RecordSample(res.Raw, res.Millivolts)
		r.recorder.RecordEstimate(EstimatorPoly, res.PolyPercent, res.PolyElapsed)
		r.recorder.RecordEstimate(EstimatorLUT, res.LUTPercent, res.LUTElapsed)
	}

	log.WithFields(logrus.Fields{
		"cycle":        res.Cycle,
		"raw":          res.Raw,
		"mv":           res.Millivolts,
		"poly_percent": res.PolyPercent,
		"poly_elapsed": res.PolyElapsed,
		"lut_percent":  res.LUTPercent,
		"lut_elapsed":  res.LUTElapsed,
	}).Debug("cycle")

	for _, sink := range r.sinks {
		if err := sink.Emit(res); err != nil {
			log.WithError(err).WithField("cycle", res.Cycle).Warn("sink failed")
		}
	}
}

// Latest returns the most recent result, if any.
func (r *Runner) Latest() (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.latest == nil {
		return Result{}, false
	}
	return *r.latest, true
}

// Summary returns a snapshot of the aggregated statistics.
func (r *Runner) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.summary
}
