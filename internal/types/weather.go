// Package types holds the records that flow between the sampling loop and the persistence path.
package types

import (
	"time"
)

// Sentinel marks a metric that had no contributing samples in a window. Consumers must
// treat it as "no data", never as a physical value.
const Sentinel = -1000.0

// Temperature roles map a channel onto a fixed database column.
const (
	RoleAmbient = "ambient"
	RoleGround  = "ground"
)

// Temperature is one calibrated temperature channel of a Reading.
type Temperature struct {
	Name  string
	Role  string
	Value float64
}

// Reading is the finalized summary of one aggregation window. It is created once by the
// window aggregator and never modified afterwards.
type Reading struct {
	UUID          string
	Timestamp     time.Time
	RainTotal     float64 // mm
	WindSpeed     float64
	WindGust      float64
	AirQuality    float64 // 0-100
	Temperatures  []Temperature
	Pressure      float64 // hPa
	Humidity      float64 // %RH
	WindDirection float64 // degrees, [0, 360)
}

// Fields returns the numeric values of the reading in record order: rain, mean wind,
// peak wind, air quality, each temperature channel, pressure, humidity, wind direction.
func (r Reading) Fields() []float64 {
	f := make([]float64, 0, 7+len(r.Temperatures))
	f = append(f, r.RainTotal, r.WindSpeed, r.WindGust, r.AirQuality)
	for _, t := range r.Temperatures {
		f = append(f, t.Value)
	}
	return append(f, r.Pressure, r.Humidity, r.WindDirection)
}

// TemperatureFor returns the value of the first channel with the given role, or the
// sentinel if no channel carries that role.
func (r Reading) TemperatureFor(role string) float64 {
	for _, t := range r.Temperatures {
		if t.Role == role {
			return t.Value
		}
	}
	return Sentinel
}

// IsSentinel reports whether v is the "no data" marker.
func IsSentinel(v float64) bool {
	return v == Sentinel
}

// LogLine is one row of the backend log table.
type LogLine struct {
	Time   time.Time
	Level  string
	Source string
	Text   string
}
