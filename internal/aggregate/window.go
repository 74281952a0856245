package aggregate

import (
	"fmt"
	"time"

	"github.com/chrissnell/pistation/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Metric names fed by the sampling loop.
const (
	MetricRain          = "rain"
	MetricWind          = "wind"
	MetricWindDirection = "wind-direction"
	MetricAirQuality    = "air-quality"
	MetricPressure      = "pressure"
	MetricHumidity      = "humidity"
)

// TemperatureMetric returns the metric name of a temperature channel.
func TemperatureMetric(channel string) string {
	return "temperature/" + channel
}

// Calibration converts pulse counts into physical units. Non-positive factors mean
// "not calibrated" and make the derived fields report the sentinel.
type Calibration struct {
	PulsesToWindSpeed float64
	PulsesToMM        float64
}

// TemperatureChannel names one temperature input and the column role it fills.
type TemperatureChannel struct {
	Name string
	Role string
}

// Aggregator detects window boundaries and turns a finished window into a Reading.
type Aggregator struct {
	acc         *Accumulator
	windowMins  int
	calibration Calibration
	channels    []TemperatureChannel
	lastBucket  int
	primed      bool
	newID       func() string
	logger      *zap.SugaredLogger
}

// NewAggregator creates an aggregator with windows of the given length. The window
// must be a whole number of minutes that divides a day.
func NewAggregator(window time.Duration, cal Calibration, channels []TemperatureChannel, logger *zap.SugaredLogger) (*Aggregator, error) {
	if window < time.Minute || window%time.Minute != 0 {
		return nil, fmt.Errorf("window must be a whole number of minutes, got %v", window)
	}
	mins := int(window / time.Minute)
	if (24*60)%mins != 0 {
		return nil, fmt.Errorf("window of %d minutes does not divide a day", mins)
	}

	metrics := map[string]Kind{
		MetricRain:          KindTotal,
		MetricWind:          KindFlow,
		MetricWindDirection: KindAngle,
		MetricAirQuality:    KindMean,
		MetricPressure:      KindMean,
		MetricHumidity:      KindMean,
	}
	seen := make(map[string]bool, len(channels))
	for _, c := range channels {
		if c.Name == "" {
			return nil, fmt.Errorf("temperature channel needs a name")
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate temperature channel %q", c.Name)
		}
		seen[c.Name] = true
		metrics[TemperatureMetric(c.Name)] = KindMean
	}

	return &Aggregator{
		acc:         NewAccumulator(metrics),
		windowMins:  mins,
		calibration: cal,
		channels:    channels,
		lastBucket:  -1,
		newID:       uuid.NewString,
		logger:      logger,
	}, nil
}

// Add folds a sample into the open window.
func (g *Aggregator) Add(s Sample) error {
	return g.acc.Add(s)
}

// Bucket returns the index of the window that contains t in local wall-clock time.
func (g *Aggregator) Bucket(t time.Time) int {
	return (t.Hour()*60 + t.Minute()) / g.windowMins
}

// Tick is called once per sampling tick. It returns a Reading when now has crossed a
// window boundary. The first boundary after start only discards the partial window
// collected since start, since rates computed from it would be biased low.
func (g *Aggregator) Tick(now time.Time) (types.Reading, bool) {
	b := g.Bucket(now)
	if g.lastBucket < 0 {
		g.lastBucket = b
		return types.Reading{}, false
	}
	if b == g.lastBucket {
		return types.Reading{}, false
	}
	g.lastBucket = b

	if !g.primed {
		g.primed = true
		g.acc.Reset()
		g.logger.Infof("first window boundary at %v, discarding partial window", now.Format(time.RFC3339))
		return types.Reading{}, false
	}
	return g.Flush(now), true
}

// Flush finalizes the open window into a Reading and resets the accumulator.
func (g *Aggregator) Flush(now time.Time) types.Reading {
	r := types.Reading{
		UUID:          g.newID(),
		Timestamp:     now.Truncate(time.Second),
		RainTotal:     types.Sentinel,
		WindSpeed:     types.Sentinel,
		WindGust:      types.Sentinel,
		AirQuality:    valueOr(g.acc.Mean(MetricAirQuality)),
		Pressure:      valueOr(g.acc.Mean(MetricPressure)),
		Humidity:      valueOr(g.acc.Mean(MetricHumidity)),
		WindDirection: valueOr(g.acc.Angle(MetricWindDirection)),
	}

	if pulses, ok := g.acc.Total(MetricRain); ok && g.calibration.PulsesToMM > 0 {
		r.RainTotal = pulses * g.calibration.PulsesToMM
	}
	if scale := g.calibration.PulsesToWindSpeed; scale > 0 {
		if rate, ok := g.acc.Rate(MetricWind); ok {
			r.WindSpeed = rate * scale
		}
		if peak, ok := g.acc.Peak(MetricWind); ok {
			r.WindGust = peak * scale
		}
	}

	if len(g.channels) > 0 {
		r.Temperatures = make([]types.Temperature, len(g.channels))
		for i, c := range g.channels {
			r.Temperatures[i] = types.Temperature{
				Name:  c.Name,
				Role:  c.Role,
				Value: valueOr(g.acc.Mean(TemperatureMetric(c.Name))),
			}
		}
	}

	g.acc.Reset()
	return r
}

func valueOr(v float64, ok bool) float64 {
	if !ok {
		return types.Sentinel
	}
	return v
}
