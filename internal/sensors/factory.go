package sensors

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chrissnell/pistation/internal/aggregate"
	"github.com/chrissnell/pistation/internal/sensors/onewire"
	"github.com/chrissnell/pistation/internal/sensors/simulated"
	"github.com/chrissnell/pistation/pkg/config"
)

// Sensor types accepted in the settings file
const (
	TypeDS18B20              = "ds18b20"
	TypeSimulatedThermometer = "simulated-thermometer"
	TypeSimulatedBarometer   = "simulated-barometer"
	TypeSimulatedHygrometer  = "simulated-hygrometer"
	TypeSimulatedAnemometer  = "simulated-anemometer"
	TypeSimulatedRainGauge   = "simulated-rain-gauge"
	TypeSimulatedVane        = "simulated-vane"
	TypeSimulatedAirQuality  = "simulated-air-quality"
)

// Set is the outcome of building the configured sensors
type Set struct {
	Sensors  []Sensor
	Channels []aggregate.TemperatureChannel
}

// Build creates every configured sensor. A peripheral that fails to start is
// logged and left out; temperature channels are registered either way so the
// missing probe reports sentinels. Unknown types and an unusable vane table
// are configuration errors.
func Build(cfg *config.ConfigData, clock simulated.Clock, logger *zap.SugaredLogger) (*Set, error) {
	set := &Set{}

	var table *VaneTable
	for _, sc := range cfg.Sensors {
		if sc.Type == TypeSimulatedVane {
			dirs := make([]Direction, len(cfg.WindVane.Directions))
			for i, d := range cfg.WindVane.Directions {
				dirs[i] = Direction{Name: d.Dir, Angle: d.Angle, Ohms: d.Ohms}
			}
			var err error
			table, err = NewVaneTable(cfg.WindVane.Vin, cfg.WindVane.VDivider, dirs)
			if err != nil {
				return nil, fmt.Errorf("wind-vane: %w", err)
			}
			break
		}
	}

	for _, sc := range cfg.Sensors {
		var s Sensor

		switch sc.Type {
		case TypeDS18B20:
			set.Channels = append(set.Channels, aggregate.TemperatureChannel{Name: sc.Name, Role: sc.Role})
			th, err := onewire.Discover(sc.Device)
			if err != nil {
				logger.Warnw("sensor disabled", "sensor", sc.Name, "error", err)
				continue
			}
			logger.Infow("DS18B20 found", "sensor", sc.Name, "path", th.Path())
			s = NewGauge(sc.Name, aggregate.TemperatureMetric(sc.Name), th)
		case TypeSimulatedThermometer:
			set.Channels = append(set.Channels, aggregate.TemperatureChannel{Name: sc.Name, Role: sc.Role})
			s = NewGauge(sc.Name, aggregate.TemperatureMetric(sc.Name), simulated.Thermometer(sc.Seed, clock))
		case TypeSimulatedBarometer:
			s = NewGauge(sc.Name, aggregate.MetricPressure, simulated.Barometer(sc.Seed, clock))
		case TypeSimulatedHygrometer:
			s = NewGauge(sc.Name, aggregate.MetricHumidity, simulated.Hygrometer(sc.Seed, clock))
		case TypeSimulatedAnemometer:
			s = NewAnemometer(sc.Name, simulated.NewPulseCounter(sc.Seed, 1.5, clock))
		case TypeSimulatedRainGauge:
			s = NewRainGauge(sc.Name, simulated.NewPulseCounter(sc.Seed, 0.002, clock))
		case TypeSimulatedVane:
			s = NewWindVane(sc.Name, simulated.NewADC(sc.Seed, table.Centers(), 20, ADCMax), table)
		case TypeSimulatedAirQuality:
			s = NewAirQuality(sc.Name, simulated.NewADC(sc.Seed, []int{3000, 4000, 6000}, 200, ADCMax))
		default:
			return nil, fmt.Errorf("sensor %q: unknown type %q", sc.Name, sc.Type)
		}

		set.Sensors = append(set.Sensors, s)
	}

	return set, nil
}
