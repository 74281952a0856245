package database

import (
	"time"

	"github.com/chrissnell/pistation/internal/types"
)

// WeatherMeasurement is one aggregated window as stored in the database.
// RemoteID stays NULL until the reading has been uploaded.
type WeatherMeasurement struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement;column:ID"`
	UUID               string    `gorm:"column:UUID;size:36;uniqueIndex"`
	Created            time.Time `gorm:"column:CREATED;not null;index"`
	AmbientTemperature float64   `gorm:"column:AMBIENT_TEMPERATURE"`
	GroundTemperature  float64   `gorm:"column:GROUND_TEMPERATURE"`
	AirQuality         float64   `gorm:"column:AIR_QUALITY"`
	AirPressure        float64   `gorm:"column:AIR_PRESSURE"`
	Humidity           float64   `gorm:"column:HUMIDITY"`
	WindDirection      float64   `gorm:"column:WIND_DIRECTION"`
	WindSpeed          float64   `gorm:"column:WIND_SPEED"`
	WindGustSpeed      float64   `gorm:"column:WIND_GUST_SPEED"`
	Rainfall           float64   `gorm:"column:RAINFALL"`
	RemoteID           *int64    `gorm:"column:REMOTE_ID;index"`
}

// TableName specifies the table name for WeatherMeasurement
func (WeatherMeasurement) TableName() string {
	return "WEATHER_MEASUREMENT"
}

// LogEntry is one line of the station log
type LogEntry struct {
	ID      int64     `gorm:"primaryKey;autoIncrement;column:ID"`
	Created time.Time `gorm:"column:CREATED;not null;index"`
	Level   string    `gorm:"column:LEVEL;size:16"`
	Source  string    `gorm:"column:SOURCE;size:255"`
	Text    string    `gorm:"column:TEXT;type:text"`
}

// TableName specifies the table name for LogEntry
func (LogEntry) TableName() string {
	return "LOG"
}

// MeasurementFromReading maps a reading onto the table columns. Temperature
// channels are placed by role; a missing role stores the sentinel. CREATED is
// stored in UTC.
func MeasurementFromReading(r types.Reading) *WeatherMeasurement {
	return &WeatherMeasurement{
		UUID:               r.UUID,
		Created:            r.Timestamp.UTC(),
		AmbientTemperature: r.TemperatureFor(types.RoleAmbient),
		GroundTemperature:  r.TemperatureFor(types.RoleGround),
		AirQuality:         r.AirQuality,
		AirPressure:        r.Pressure,
		Humidity:           r.Humidity,
		WindDirection:      r.WindDirection,
		WindSpeed:          r.WindSpeed,
		WindGustSpeed:      r.WindGust,
		Rainfall:           r.RainTotal,
	}
}

// LogEntryFromLine converts one line of log text into a row
func LogEntryFromLine(l types.LogLine, text string) *LogEntry {
	source := l.Source
	if len(source) > 255 {
		source = source[:255]
	}
	return &LogEntry{
		Created: l.Time.UTC(),
		Level:   l.Level,
		Source:  source,
		Text:    text,
	}
}
