package bench

import "time"

// Clock supplies time to the loop. Tests replace it to make timings and
// waits deterministic.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock {
	return realClock{}
}

// Time runs fn and measures it with clock. The measurement brackets fn only.
func Time[T any](clock Clock, fn func() T) (T, time.Duration) {
	start := clock.Now()
	v := fn()
	return v, clock.Now().Sub(start)
}
