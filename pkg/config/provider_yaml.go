package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// StationYAML mirrors StationData with YAML tags. Durations are strings such as "10m".
type StationYAML struct {
	Name            string `yaml:"name,omitempty"`
	Window          string `yaml:"window,omitempty"`
	Tick            string `yaml:"tick,omitempty"`
	DataFile        string `yaml:"data-file,omitempty"`
	CredentialsFile string `yaml:"credentials,omitempty"`
	BacklogCapacity int    `yaml:"backlog-capacity,omitempty"`
	ProbeTimeout    string `yaml:"probe-timeout,omitempty"`
}

type CalibrationYAML struct {
	PulsesToWindSpeed float64 `yaml:"pulses-to-wind-speed"`
	PulsesToMM        float64 `yaml:"pulses-to-mm"`
}

type WindVaneYAML struct {
	Vin        float64         `yaml:"vin"`
	VDivider   int             `yaml:"vdivider"`
	Directions []DirectionYAML `yaml:"directions"`
}

type DirectionYAML struct {
	Dir   string  `yaml:"dir"`
	Angle float64 `yaml:"angle"`
	Ohms  int     `yaml:"ohms"`
}

type SensorYAML struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Role   string `yaml:"role,omitempty"`
	Device string `yaml:"device,omitempty"`
	Seed   int64  `yaml:"seed,omitempty"`
}

type ControllerYAML struct {
	Type           string `yaml:"type"`
	UploadInterval string `yaml:"upload-interval,omitempty"`
	ListenAddr     string `yaml:"listen-addr,omitempty"`
}

// LoadConfig loads, defaults and validates the configuration from the YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}
	return ParseYAML(cfgFile)
}

// ParseYAML converts YAML settings into ConfigData
func ParseYAML(data []byte) (*ConfigData, error) {
	var yamlConfig struct {
		Station     StationYAML      `yaml:"station"`
		Calibration CalibrationYAML  `yaml:"calibration"`
		WindVane    WindVaneYAML     `yaml:"wind-vane,omitempty"`
		Sensors     []SensorYAML     `yaml:"sensors"`
		Controllers []ControllerYAML `yaml:"controllers,omitempty"`
	}

	if err := yaml.UnmarshalStrict(data, &yamlConfig); err != nil {
		return nil, err
	}

	config := &ConfigData{
		Station: StationData{
			Name:            yamlConfig.Station.Name,
			DataFile:        yamlConfig.Station.DataFile,
			CredentialsFile: yamlConfig.Station.CredentialsFile,
			BacklogCapacity: yamlConfig.Station.BacklogCapacity,
		},
		Calibration: CalibrationData{
			PulsesToWindSpeed: yamlConfig.Calibration.PulsesToWindSpeed,
			PulsesToMM:        yamlConfig.Calibration.PulsesToMM,
		},
		WindVane: WindVaneData{
			Vin:      yamlConfig.WindVane.Vin,
			VDivider: yamlConfig.WindVane.VDivider,
		},
		Sensors:     make([]SensorData, len(yamlConfig.Sensors)),
		Controllers: make([]ControllerData, len(yamlConfig.Controllers)),
	}

	var err error
	if config.Station.Window, err = parseDuration("station.window", yamlConfig.Station.Window); err != nil {
		return nil, err
	}
	if config.Station.Tick, err = parseDuration("station.tick", yamlConfig.Station.Tick); err != nil {
		return nil, err
	}
	if config.Station.ProbeTimeout, err = parseDuration("station.probe-timeout", yamlConfig.Station.ProbeTimeout); err != nil {
		return nil, err
	}

	for _, d := range yamlConfig.WindVane.Directions {
		config.WindVane.Directions = append(config.WindVane.Directions, DirectionData{
			Dir:   d.Dir,
			Angle: d.Angle,
			Ohms:  d.Ohms,
		})
	}

	for i, s := range yamlConfig.Sensors {
		config.Sensors[i] = SensorData{
			Name:   s.Name,
			Type:   s.Type,
			Role:   s.Role,
			Device: s.Device,
			Seed:   s.Seed,
		}
	}

	for i, c := range yamlConfig.Controllers {
		config.Controllers[i] = ControllerData{
			Type:       c.Type,
			ListenAddr: c.ListenAddr,
		}
		name := fmt.Sprintf("controllers[%d].upload-interval", i)
		if config.Controllers[i].UploadInterval, err = parseDuration(name, c.UploadInterval); err != nil {
			return nil, err
		}
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// parseDuration returns zero for an empty value so that defaults can apply
func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}
