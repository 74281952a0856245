// Package sensors adapts hardware and simulated peripherals to the samples
// consumed by the window aggregator.
package sensors

import (
	"context"
	"fmt"
	"time"

	"github.com/chrissnell/pistation/internal/aggregate"
)

// MCP3427 full-scale count and reference voltage
const (
	ADCMax  = 32767
	ADCVRef = 2.048
)

// Sensor is sampled once per tick. A sensor that has nothing to report
// returns no samples and no error.
type Sensor interface {
	Name() string
	Sample(ctx context.Context) ([]aggregate.Sample, error)
}

// PulseSource counts pulses. Read returns the pulses seen since the previous
// Read and the time that covered.
type PulseSource interface {
	Read() (count uint64, elapsed time.Duration, err error)
}

// ADC returns a raw conversion result
type ADC interface {
	Read(ctx context.Context) (int, error)
}

// Reader returns one calibrated value
type Reader interface {
	Read(ctx context.Context) (float64, error)
}

// Anemometer reports wind pulses with the interval they were counted over
type Anemometer struct {
	name string
	src  PulseSource
}

func NewAnemometer(name string, src PulseSource) *Anemometer {
	return &Anemometer{name: name, src: src}
}

func (a *Anemometer) Name() string { return a.name }

func (a *Anemometer) Sample(_ context.Context) ([]aggregate.Sample, error) {
	count, elapsed, err := a.src.Read()
	if err != nil {
		return nil, err
	}
	if elapsed <= 0 {
		return nil, nil
	}
	return []aggregate.Sample{{Metric: aggregate.MetricWind, Value: float64(count), Elapsed: elapsed}}, nil
}

// RainGauge reports tipping-bucket pulses
type RainGauge struct {
	name string
	src  PulseSource
}

func NewRainGauge(name string, src PulseSource) *RainGauge {
	return &RainGauge{name: name, src: src}
}

func (r *RainGauge) Name() string { return r.name }

func (r *RainGauge) Sample(_ context.Context) ([]aggregate.Sample, error) {
	count, _, err := r.src.Read()
	if err != nil {
		return nil, err
	}
	return []aggregate.Sample{{Metric: aggregate.MetricRain, Value: float64(count)}}, nil
}

// Gauge reports a single mean-aggregated value such as a temperature,
// pressure or humidity
type Gauge struct {
	name   string
	metric string
	src    Reader
}

func NewGauge(name, metric string, src Reader) *Gauge {
	return &Gauge{name: name, metric: metric, src: src}
}

func (g *Gauge) Name() string { return g.name }

func (g *Gauge) Sample(ctx context.Context) ([]aggregate.Sample, error) {
	v, err := g.src.Read(ctx)
	if err != nil {
		return nil, err
	}
	return []aggregate.Sample{{Metric: g.metric, Value: v}}, nil
}

// AirQuality converts the gas sensor ADC into an index where 100 is clean air
type AirQuality struct {
	name string
	adc  ADC
}

func NewAirQuality(name string, adc ADC) *AirQuality {
	return &AirQuality{name: name, adc: adc}
}

func (a *AirQuality) Name() string { return a.name }

func (a *AirQuality) Sample(ctx context.Context) ([]aggregate.Sample, error) {
	raw, err := a.adc.Read(ctx)
	if err != nil {
		return nil, err
	}
	if raw < 0 || raw > ADCMax {
		return nil, fmt.Errorf("air quality ADC value %d out of range", raw)
	}
	return []aggregate.Sample{{Metric: aggregate.MetricAirQuality, Value: AirQualityIndex(raw)}}, nil
}

// AirQualityIndex maps a raw ADC count onto 0..100
func AirQualityIndex(raw int) float64 {
	return 100 * (1 - float64(raw)/ADCMax)
}

// WindVane reads the vane ADC and reports the matching direction
type WindVane struct {
	name  string
	adc   ADC
	table *VaneTable
}

func NewWindVane(name string, adc ADC, table *VaneTable) *WindVane {
	return &WindVane{name: name, adc: adc, table: table}
}

func (v *WindVane) Name() string { return v.name }

// Sample returns no sample when the ADC value falls outside every band
func (v *WindVane) Sample(ctx context.Context) ([]aggregate.Sample, error) {
	raw, err := v.adc.Read(ctx)
	if err != nil {
		return nil, err
	}
	angle, ok := v.table.Angle(raw)
	if !ok {
		return nil, nil
	}
	return []aggregate.Sample{{Metric: aggregate.MetricWindDirection, Value: angle}}, nil
}
