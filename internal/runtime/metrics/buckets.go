// Package metrics defines the Prometheus instrumentation shared by the
// executor registry and the ReqRep services, along with the TimerBuckets
// histogram configuration.
package metrics

import (
	"fmt"
	"time"
)

// TimerBuckets holds the histogram bucket boundaries used to time request
// processing. Boundaries are strictly increasing positive durations. The
// zero value is invalid; construct via NewTimerBuckets or
// ExponentialTimerBuckets.
type TimerBuckets struct {
	buckets []time.Duration
}

// NewTimerBuckets validates the given boundaries and returns TimerBuckets.
func NewTimerBuckets(buckets ...time.Duration) (TimerBuckets, error) {
	if len(buckets) == 0 {
		return TimerBuckets{}, fmt.Errorf("timer buckets must not be empty")
	}
	for i, b := range buckets {
		if b <= 0 {
			return TimerBuckets{}, fmt.Errorf("timer bucket %d is not positive: %s", i, b)
		}
		if i > 0 && buckets[i-1] >= b {
			return TimerBuckets{}, fmt.Errorf("timer buckets must be strictly increasing: bucket %d (%s) >= bucket %d (%s)", i-1, buckets[i-1], i, b)
		}
	}
	out := make([]time.Duration, len(buckets))
	copy(out, buckets)
	return TimerBuckets{buckets: out}, nil
}

// ExponentialTimerBuckets generates count boundaries starting at start,
// each factor times the previous one. factor must be > 1.
func ExponentialTimerBuckets(start time.Duration, factor float64, count int) (TimerBuckets, error) {
	if start <= 0 {
		return TimerBuckets{}, fmt.Errorf("start duration is not positive: %s", start)
	}
	if factor <= 1 {
		return TimerBuckets{}, fmt.Errorf("factor must be greater than 1: %v", factor)
	}
	if count < 1 {
		return TimerBuckets{}, fmt.Errorf("count must be at least 1: %d", count)
	}
	buckets := make([]time.Duration, count)
	next := float64(start)
	for i := range buckets {
		buckets[i] = time.Duration(next)
		next *= factor
	}
	return TimerBuckets{buckets: buckets}, nil
}

// Durations returns a copy of the bucket boundaries.
func (tb TimerBuckets) Durations() []time.Duration {
	out := make([]time.Duration, len(tb.buckets))
	copy(out, tb.buckets)
	return out
}

// Seconds returns the boundaries as Prometheus histogram upper bounds.
func (tb TimerBuckets) Seconds() []float64 {
	out := make([]float64, len(tb.buckets))
	for i, b := range tb.buckets {
		out[i] = b.Seconds()
	}
	return out
}

// IsZero reports whether the TimerBuckets were never constructed.
func (tb TimerBuckets) IsZero() bool { return len(tb.buckets) == 0 }

func (tb TimerBuckets) String() string {
	return fmt.Sprintf("TimerBuckets%v", tb.buckets)
}
