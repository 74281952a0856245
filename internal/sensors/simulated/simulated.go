// Package simulated provides seedable stand-ins for the station's peripherals
// so the sampling loop can run without hardware.
package simulated

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Clock returns the current time
type Clock func() time.Time

type source struct {
	mu    sync.Mutex
	rng   *rand.Rand
	clock Clock
}

func newSource(seed int64, clock Clock) source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if clock == nil {
		clock = time.Now
	}
	return source{rng: rand.New(rand.NewSource(seed)), clock: clock}
}

// PulseCounter produces pulses at a noisy mean rate
type PulseCounter struct {
	source
	rate float64
	last time.Time
}

// NewPulseCounter counts around rate pulses per second
func NewPulseCounter(seed int64, rate float64, clock Clock) *PulseCounter {
	p := &PulseCounter{source: newSource(seed, clock), rate: rate}
	p.last = p.clock()
	return p
}

// Read returns the pulses since the previous Read
func (p *PulseCounter) Read() (uint64, time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	elapsed := now.Sub(p.last)
	p.last = now
	if elapsed <= 0 || p.rate <= 0 {
		return 0, elapsed, nil
	}

	mean := p.rate * elapsed.Seconds()
	n := math.Round(mean * (1 + 0.3*p.rng.NormFloat64()))
	if n < 0 {
		n = 0
	}
	return uint64(n), elapsed, nil
}

// ADC returns counts that jitter around a set of levels
type ADC struct {
	source
	levels []int
	jitter int
	max    int
	hold   int
	idx    int
}

// NewADC returns an ADC that dwells on one of levels at a time and moves to a
// neighbouring level now and then. jitter bounds the noise added to each read.
func NewADC(seed int64, levels []int, jitter, max int) *ADC {
	a := &ADC{source: newSource(seed, nil), levels: levels, jitter: jitter, max: max}
	if len(levels) > 0 {
		a.idx = a.rng.Intn(len(levels))
	}
	return a
}

func (a *ADC) Read(_ context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.levels) == 0 {
		return 0, nil
	}

	if a.hold <= 0 {
		a.idx = (a.idx + a.rng.Intn(3) - 1 + len(a.levels)) % len(a.levels)
		a.hold = 3 + a.rng.Intn(10)
	}
	a.hold--

	v := a.levels[a.idx]
	if a.jitter > 0 {
		v += a.rng.Intn(2*a.jitter+1) - a.jitter
	}
	if v < 0 {
		v = 0
	}
	if v > a.max {
		v = a.max
	}
	return v, nil
}

// Wave is a daily sinusoid with noise, used for temperature, pressure and humidity
type Wave struct {
	source
	mean, amplitude, noise float64
	min, max               float64
	peakHour               float64
}

// NewWave returns values around mean, highest at peakHour local time, clamped to [min, max]
func NewWave(seed int64, mean, amplitude, noise, peakHour, min, max float64, clock Clock) *Wave {
	return &Wave{
		source:    newSource(seed, clock),
		mean:      mean,
		amplitude: amplitude,
		noise:     noise,
		peakHour:  peakHour,
		min:       min,
		max:       max,
	}
}

func (w *Wave) Read(_ context.Context) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock()
	hour := float64(now.Hour()) + float64(now.Minute())/60 + float64(now.Second())/3600
	v := w.mean + w.amplitude*math.Cos(2*math.Pi*(hour-w.peakHour)/24) + w.noise*w.rng.NormFloat64()
	return math.Max(w.min, math.Min(w.max, v)), nil
}

// Thermometer simulates outdoor air temperature in degrees Celsius
func Thermometer(seed int64, clock Clock) *Wave {
	return NewWave(seed, 12, 6, 0.2, 15, -40, 60, clock)
}

// Barometer simulates pressure in hPa
func Barometer(seed int64, clock Clock) *Wave {
	return NewWave(seed, 1013, 2, 0.3, 10, 950, 1060, clock)
}

// Hygrometer simulates relative humidity in %RH
func Hygrometer(seed int64, clock Clock) *Wave {
	return NewWave(seed, 70, 15, 1, 4, 0, 100, clock)
}
