// Package config loads the station settings and the hot-reloadable credentials file.
package config

import (
	"fmt"
	"time"
)

// ConfigProvider defines the interface for station configuration sources
type ConfigProvider interface {
	LoadConfig() (*ConfigData, error)
}

// ConfigData represents the complete station configuration
type ConfigData struct {
	Station     StationData      `json:"station"`
	Calibration CalibrationData  `json:"calibration"`
	WindVane    WindVaneData     `json:"wind_vane,omitempty"`
	Sensors     []SensorData     `json:"sensors"`
	Controllers []ControllerData `json:"controllers,omitempty"`
}

// StationData holds settings of the sampling loop and the persistence path
type StationData struct {
	Name            string        `json:"name"`
	Window          time.Duration `json:"window"`
	Tick            time.Duration `json:"tick"`
	DataFile        string        `json:"data_file,omitempty"`
	CredentialsFile string        `json:"credentials_file"`
	BacklogCapacity int           `json:"backlog_capacity"`
	ProbeTimeout    time.Duration `json:"probe_timeout"`
}

// CalibrationData converts pulse counts into physical units
type CalibrationData struct {
	PulsesToWindSpeed float64 `json:"pulses_to_wind_speed"`
	PulsesToMM        float64 `json:"pulses_to_mm"`
}

// WindVaneData describes the resistor ladder of the wind vane
type WindVaneData struct {
	Vin        float64         `json:"vin"`
	VDivider   int             `json:"vdivider"`
	Directions []DirectionData `json:"directions"`
}

// DirectionData is one vane position
type DirectionData struct {
	Dir   string  `json:"dir"`
	Angle float64 `json:"angle"`
	Ohms  int     `json:"ohms"`
}

// SensorData configures one sensor
type SensorData struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Role   string `json:"role,omitempty"`
	Device string `json:"device,omitempty"`
	Seed   int64  `json:"seed,omitempty"`
}

// ControllerData configures one background worker
type ControllerData struct {
	Type           string        `json:"type"`
	UploadInterval time.Duration `json:"upload_interval,omitempty"`
	ListenAddr     string        `json:"listen_addr,omitempty"`
}

// Defaults used when the settings file leaves a value out
const (
	DefaultWindow          = 10 * time.Minute
	DefaultTick            = 10 * time.Second
	DefaultBacklogCapacity = 1000
	DefaultProbeTimeout    = time.Second
	DefaultUploadInterval  = time.Hour
	DefaultListenAddr      = "127.0.0.1:8080"
)

// ApplyDefaults fills in unset values
func (c *ConfigData) ApplyDefaults() {
	if c.Station.Name == "" {
		c.Station.Name = "pistation"
	}
	if c.Station.Window == 0 {
		c.Station.Window = DefaultWindow
	}
	if c.Station.Tick == 0 {
		c.Station.Tick = DefaultTick
	}
	if c.Station.BacklogCapacity == 0 {
		c.Station.BacklogCapacity = DefaultBacklogCapacity
	}
	if c.Station.ProbeTimeout == 0 {
		c.Station.ProbeTimeout = DefaultProbeTimeout
	}
	for i := range c.Controllers {
		switch c.Controllers[i].Type {
		case "cloudupload":
			if c.Controllers[i].UploadInterval == 0 {
				c.Controllers[i].UploadInterval = DefaultUploadInterval
			}
		case "status":
			if c.Controllers[i].ListenAddr == "" {
				c.Controllers[i].ListenAddr = DefaultListenAddr
			}
		}
	}
}

// Validate checks the configuration for required fields and valid values
func (c *ConfigData) Validate() error {
	if c.Station.CredentialsFile == "" {
		return fmt.Errorf("station.credentials is required")
	}
	if c.Station.Tick <= 0 {
		return fmt.Errorf("station.tick must be positive")
	}
	if c.Station.Window < time.Minute || c.Station.Window%time.Minute != 0 {
		return fmt.Errorf("station.window must be a whole number of minutes, got %v", c.Station.Window)
	}
	if (24*time.Hour)%c.Station.Window != 0 {
		return fmt.Errorf("station.window %v does not divide a day", c.Station.Window)
	}
	if c.Station.Tick >= c.Station.Window {
		return fmt.Errorf("station.tick must be shorter than station.window")
	}
	if c.Station.BacklogCapacity < 1 {
		return fmt.Errorf("station.backlog-capacity must be at least 1")
	}
	if c.Station.ProbeTimeout <= 0 {
		return fmt.Errorf("station.probe-timeout must be positive")
	}

	names := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.Name == "" {
			return fmt.Errorf("sensor[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("sensor[%d] %q: duplicate name", i, s.Name)
		}
		names[s.Name] = true
		if s.Type == "" {
			return fmt.Errorf("sensor[%d] %q: type is required", i, s.Name)
		}
		switch s.Role {
		case "", "ambient", "ground":
		default:
			return fmt.Errorf("sensor[%d] %q: role must be 'ambient' or 'ground', got %q", i, s.Name, s.Role)
		}
	}

	for i, d := range c.WindVane.Directions {
		if d.Ohms <= 0 {
			return fmt.Errorf("wind-vane.directions[%d] %q: ohms must be positive", i, d.Dir)
		}
		if d.Angle < 0 || d.Angle >= 360 {
			return fmt.Errorf("wind-vane.directions[%d] %q: angle must be in [0, 360)", i, d.Dir)
		}
	}

	for i, cc := range c.Controllers {
		switch cc.Type {
		case "cloudupload":
			if cc.UploadInterval <= 0 {
				return fmt.Errorf("controllers[%d]: upload-interval must be positive", i)
			}
		case "dailysummary", "status":
		default:
			return fmt.Errorf("controllers[%d]: unknown controller type %q", i, cc.Type)
		}
	}

	return nil
}
