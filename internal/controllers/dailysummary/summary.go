package dailysummary

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/pistation/internal/database"
	"github.com/chrissnell/pistation/internal/types"
)

// Range is the extremes of one quantity over the day
type Range struct {
	Min, Max float64
	OK       bool
}

// Summary describes one local day of readings
type Summary struct {
	Date        string
	Samples     int
	Temperature Range
	Humidity    Range
	Pressure    Range
	MeanWind    float64
	MaxGust     float64
	Rain        float64
	HasWind     bool
	HasGust     bool
	HasRain     bool
}

// Summarize reduces a day of rows, ignoring sentinel values
func Summarize(date string, rows []database.WeatherMeasurement) Summary {
	var temp, hum, pres, wind, gust, rain []float64
	for _, r := range rows {
		temp = appendValue(temp, r.AmbientTemperature)
		hum = appendValue(hum, r.Humidity)
		pres = appendValue(pres, r.AirPressure)
		wind = appendValue(wind, r.WindSpeed)
		gust = appendValue(gust, r.WindGustSpeed)
		rain = appendValue(rain, r.Rainfall)
	}

	s := Summary{
		Date:        date,
		Samples:     len(rows),
		Temperature: rangeOf(temp),
		Humidity:    rangeOf(hum),
		Pressure:    rangeOf(pres),
	}
	if len(wind) > 0 {
		s.MeanWind, s.HasWind = stat.Mean(wind, nil), true
	}
	if len(gust) > 0 {
		s.MaxGust, s.HasGust = floats.Max(gust), true
	}
	if len(rain) > 0 {
		s.Rain, s.HasRain = floats.Sum(rain), true
	}
	return s
}

func appendValue(vs []float64, v float64) []float64 {
	if types.IsSentinel(v) {
		return vs
	}
	return append(vs, v)
}

func rangeOf(vs []float64) Range {
	if len(vs) == 0 {
		return Range{}
	}
	return Range{Min: floats.Min(vs), Max: floats.Max(vs), OK: true}
}

// Text renders the summary as a single short post
func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report for %s:", s.Date)
	b.WriteString(" temp " + s.Temperature.String())
	b.WriteString(" humidity " + s.Humidity.String())
	b.WriteString(" pressure " + s.Pressure.String())
	b.WriteString(" wind " + optional(s.MeanWind, s.HasWind))
	b.WriteString(" gust " + optional(s.MaxGust, s.HasGust))
	b.WriteString(" rain " + optional(s.Rain, s.HasRain))
	fmt.Fprintf(&b, " samples %d #piweather", s.Samples)
	return b.String()
}

func (r Range) String() string {
	if !r.OK {
		return "n/a"
	}
	return fmt.Sprintf("%.1f/%.1f", r.Min, r.Max)
}

func optional(v float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", v)
}
