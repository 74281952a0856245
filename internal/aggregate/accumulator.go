// Package aggregate reduces per-tick sensor samples into one summary record per
// fixed wall-clock window.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNonFinite is returned for NaN or infinite sample values.
	ErrNonFinite = errors.New("sample value is not a finite number")
	// ErrUnknownMetric is returned for samples of a metric that was never registered.
	ErrUnknownMetric = errors.New("unknown metric")
)

// Kind selects how the samples of a metric are reduced.
type Kind int

const (
	// KindMean is an arithmetic mean.
	KindMean Kind = iota
	// KindTotal is a plain sum, e.g. rain gauge pulses.
	KindTotal
	// KindFlow is a pulse count over elapsed time. It also tracks the peak rate.
	KindFlow
	// KindAngle is a circular mean of directions given in degrees.
	KindAngle
)

func (k Kind) String() string {
	switch k {
	case KindMean:
		return "mean"
	case KindTotal:
		return "total"
	case KindFlow:
		return "flow"
	case KindAngle:
		return "angle"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sample is one raw value produced by a sensor during a tick. Elapsed is only used by
// flow metrics and holds the time over which Value pulses were counted.
type Sample struct {
	Metric  string
	Value   float64
	Elapsed time.Duration
}

type series struct {
	kind    Kind
	count   int
	sum     float64
	seconds float64
	peak    float64
	sinSum  float64
	cosSum  float64
}

func (s *series) reset() {
	*s = series{kind: s.kind}
}

// Accumulator holds the running state of one window. It is owned by the sampling loop
// and is not safe for concurrent use.
type Accumulator struct {
	series map[string]*series
}

// NewAccumulator creates an accumulator for the given metric kinds.
func NewAccumulator(metrics map[string]Kind) *Accumulator {
	a := &Accumulator{series: make(map[string]*series, len(metrics))}
	for name, kind := range metrics {
		a.series[name] = &series{kind: kind}
	}
	return a
}

// Add folds one sample into the current window.
func (a *Accumulator) Add(s Sample) error {
	ser, ok := a.series[s.Metric]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMetric, s.Metric)
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return fmt.Errorf("%s: %w", s.Metric, ErrNonFinite)
	}

	switch ser.kind {
	case KindMean, KindTotal:
		ser.sum += s.Value
	case KindFlow:
		if s.Elapsed <= 0 {
			return fmt.Errorf("%s: flow sample needs a positive elapsed time, got %v", s.Metric, s.Elapsed)
		}
		secs := s.Elapsed.Seconds()
		ser.sum += s.Value
		ser.seconds += secs
		if rate := s.Value / secs; rate > ser.peak {
			ser.peak = rate
		}
	case KindAngle:
		rad := s.Value * math.Pi / 180
		ser.sinSum += math.Sin(rad)
		ser.cosSum += math.Cos(rad)
	}
	ser.count++
	return nil
}

// Count returns the number of samples folded into metric this window.
func (a *Accumulator) Count(metric string) int {
	if s, ok := a.series[metric]; ok {
		return s.count
	}
	return 0
}

// Mean returns sum/count for a mean metric.
func (a *Accumulator) Mean(metric string) (float64, bool) {
	s, ok := a.series[metric]
	if !ok || s.count == 0 {
		return 0, false
	}
	return s.sum / float64(s.count), true
}

// Total returns the sum of all samples of a metric.
func (a *Accumulator) Total(metric string) (float64, bool) {
	s, ok := a.series[metric]
	if !ok || s.count == 0 {
		return 0, false
	}
	return s.sum, true
}

// Rate returns pulses per second over the whole window for a flow metric.
func (a *Accumulator) Rate(metric string) (float64, bool) {
	s, ok := a.series[metric]
	if !ok || s.count == 0 || s.seconds <= 0 {
		return 0, false
	}
	return s.sum / s.seconds, true
}

// Peak returns the highest per-sample rate seen for a flow metric.
func (a *Accumulator) Peak(metric string) (float64, bool) {
	s, ok := a.series[metric]
	if !ok || s.count == 0 {
		return 0, false
	}
	return s.peak, true
}

// Angle returns the circular mean of an angle metric in degrees, normalized into [0, 360).
func (a *Accumulator) Angle(metric string) (float64, bool) {
	s, ok := a.series[metric]
	if !ok || s.count == 0 {
		return 0, false
	}
	return CircularMean(s.sinSum, s.cosSum), true
}

// Reset empties every series.
func (a *Accumulator) Reset() {
	for _, s := range a.series {
		s.reset()
	}
}

// CircularMean converts summed sine and cosine components back into a direction in
// degrees within [0, 360).
func CircularMean(sinSum, cosSum float64) float64 {
	deg := math.Atan2(sinSum, cosSum) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
